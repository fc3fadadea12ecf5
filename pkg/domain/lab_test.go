package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/labfleet/labfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceLab() types.ServiceLab {
	return types.ServiceLab{
		ID:        "lab-1",
		Title:     "BGP topology",
		State:     "STARTED",
		Owner:     "alice",
		OwnerName: "Alice A",
		NodeCount: 4,
		LinkCount: 5,
		Groups:    []string{"net"},
	}
}

func TestNewLabRecord(t *testing.T) {
	now := time.Now()
	rec := NewLabRecord("w-1", serviceLab(), now)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "w-1", rec.WorkerID)
	assert.Equal(t, "lab-1", rec.LabID)
	assert.Equal(t, "BGP topology", rec.Title)
	assert.Equal(t, "alice", rec.Owner.Username)
	assert.Equal(t, now, rec.FirstSeenAt)
	assert.Equal(t, now, rec.LastSyncedAt)
	assert.Empty(t, rec.OperationHistory)
}

func TestUpdateLabRecordNoChange(t *testing.T) {
	now := time.Now()
	rec := NewLabRecord("w-1", serviceLab(), now)

	later := now.Add(time.Minute)
	changed := UpdateLabRecord(rec, serviceLab(), later)

	assert.False(t, changed)
	assert.Empty(t, rec.OperationHistory, "unchanged syncs must not append history")
	assert.Equal(t, later, rec.LastSyncedAt, "last_synced_at advances even without changes")
}

func TestUpdateLabRecordTracksDiffs(t *testing.T) {
	now := time.Now()
	rec := NewLabRecord("w-1", serviceLab(), now)

	updated := serviceLab()
	updated.State = "STOPPED"
	updated.NodeCount = 6

	changed := UpdateLabRecord(rec, updated, now.Add(time.Minute))
	assert.True(t, changed)
	assert.Equal(t, "STOPPED", rec.State)
	assert.Equal(t, 6, rec.NodeCount)

	require.Len(t, rec.OperationHistory, 1)
	op := rec.OperationHistory[0]
	assert.Equal(t, "STARTED", op.PreviousState)
	assert.Equal(t, "STOPPED", op.NewState)
	assert.Contains(t, op.ChangedFields, "state")
	assert.Contains(t, op.ChangedFields, "node_count")
	assert.NotContains(t, op.ChangedFields, "title")
	assert.Equal(t, 4, op.ChangedFields["node_count"].Old)
	assert.Equal(t, 6, op.ChangedFields["node_count"].New)
}

func TestOperationHistoryBounded(t *testing.T) {
	now := time.Now()
	rec := NewLabRecord("w-1", serviceLab(), now)

	for i := 0; i < types.MaxLabOperations+20; i++ {
		lab := serviceLab()
		lab.Title = fmt.Sprintf("title-%d", i)
		UpdateLabRecord(rec, lab, now.Add(time.Duration(i+1)*time.Second))
	}

	require.Len(t, rec.OperationHistory, types.MaxLabOperations)

	// oldest entries were evicted and timestamps stay ordered
	assert.Equal(t, "title-19", rec.OperationHistory[0].ChangedFields["title"].Old)
	for i := 1; i < len(rec.OperationHistory); i++ {
		assert.False(t, rec.OperationHistory[i].Timestamp.Before(rec.OperationHistory[i-1].Timestamp))
	}
}
