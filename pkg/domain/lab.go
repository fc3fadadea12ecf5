package domain

import (
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/labfleet/labfleet/pkg/types"
)

// NewLabRecord projects a Service-side lab seen for the first time
func NewLabRecord(workerID string, lab types.ServiceLab, now time.Time) *types.LabRecord {
	return &types.LabRecord{
		ID:                uuid.New().String(),
		WorkerID:          workerID,
		LabID:             lab.ID,
		Title:             lab.Title,
		Description:       lab.Description,
		Notes:             lab.Notes,
		State:             lab.State,
		Owner:             types.Owner{Username: lab.Owner, FullName: lab.OwnerName},
		NodeCount:         lab.NodeCount,
		LinkCount:         lab.LinkCount,
		Groups:            lab.Groups,
		CreatedOnService:  lab.Created,
		ModifiedOnService: lab.Modified,
		FirstSeenAt:       now,
		LastSyncedAt:      now,
	}
}

// UpdateLabRecord folds a fresh Service observation into an existing record.
// It returns true when any tracked field changed; only then is an operation
// history entry appended. LastSyncedAt advances either way.
func UpdateLabRecord(rec *types.LabRecord, lab types.ServiceLab, now time.Time) bool {
	changed := map[string]types.FieldChange{}
	prevState := rec.State

	diff := func(field string, old, new interface{}) {
		if !reflect.DeepEqual(old, new) {
			changed[field] = types.FieldChange{Old: old, New: new}
		}
	}
	diff("title", rec.Title, lab.Title)
	diff("description", rec.Description, lab.Description)
	diff("notes", rec.Notes, lab.Notes)
	diff("state", rec.State, lab.State)
	diff("owner", rec.Owner.Username, lab.Owner)
	diff("node_count", rec.NodeCount, lab.NodeCount)
	diff("link_count", rec.LinkCount, lab.LinkCount)
	diff("groups", rec.Groups, lab.Groups)

	rec.LastSyncedAt = now
	if len(changed) == 0 {
		return false
	}

	rec.Title = lab.Title
	rec.Description = lab.Description
	rec.Notes = lab.Notes
	rec.State = lab.State
	rec.Owner = types.Owner{Username: lab.Owner, FullName: lab.OwnerName}
	rec.NodeCount = lab.NodeCount
	rec.LinkCount = lab.LinkCount
	rec.Groups = lab.Groups
	rec.ModifiedOnService = lab.Modified

	rec.OperationHistory = append(rec.OperationHistory, types.LabOperation{
		Timestamp:     now,
		PreviousState: prevState,
		NewState:      lab.State,
		ChangedFields: changed,
	})
	if len(rec.OperationHistory) > types.MaxLabOperations {
		rec.OperationHistory = rec.OperationHistory[len(rec.OperationHistory)-types.MaxLabOperations:]
	}
	return true
}
