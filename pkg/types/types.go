package types

import (
	"time"
)

// WorkerStatus represents the lifecycle state of a managed worker VM
type WorkerStatus string

const (
	WorkerStatusPending     WorkerStatus = "pending"
	WorkerStatusProvisioned WorkerStatus = "provisioned"
	WorkerStatusRunning     WorkerStatus = "running"
	WorkerStatusStopping    WorkerStatus = "stopping"
	WorkerStatusStopped     WorkerStatus = "stopped"
	WorkerStatusStarting    WorkerStatus = "starting"
	WorkerStatusTerminating WorkerStatus = "terminating"
	WorkerStatusTerminated  WorkerStatus = "terminated"
	WorkerStatusFailed      WorkerStatus = "failed"
	WorkerStatusImported    WorkerStatus = "imported"
)

// Terminal reports whether the status admits no further transitions
func (s WorkerStatus) Terminal() bool {
	return s == WorkerStatusTerminated
}

// Active reports whether a worker in this status should be reconciled
func (s WorkerStatus) Active() bool {
	return s != WorkerStatusTerminated && s != WorkerStatusFailed
}

// ServiceStatus represents the observed availability of the Service on a worker
type ServiceStatus string

const (
	ServiceStatusUnknown     ServiceStatus = "unknown"
	ServiceStatusUnavailable ServiceStatus = "unavailable"
	ServiceStatusAvailable   ServiceStatus = "available"
	ServiceStatusError       ServiceStatus = "error"
	ServiceStatusDegraded    ServiceStatus = "degraded"
)

// CloudHealth is the metric slot fed by the cloud API (describe status)
type CloudHealth struct {
	InstanceState string    `json:"instance_state"`
	SystemStatus  string    `json:"system_status"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// CloudUtilization is the metric slot fed by the cloud metrics API
type CloudUtilization struct {
	CPUPercent         float64   `json:"cpu_percent"`
	MemoryPercent      float64   `json:"memory_percent"`
	DetailedMonitoring bool      `json:"detailed_monitoring"`
	LastCollectedAt    time.Time `json:"last_collected_at"`
}

// ServiceState is the metric slot fed by the Service API on the worker
type ServiceState struct {
	Status ServiceStatus `json:"status"`
	// Degraded marks a reachable Service whose health document is invalid or
	// that reports not-ready; the status stays available
	Degraded     bool                   `json:"degraded"`
	Version      string                 `json:"version"`
	Ready        bool                   `json:"ready"`
	LabsCount    int                    `json:"labs_count"`
	LastSyncedAt time.Time              `json:"last_synced_at"`
	SystemInfo   map[string]interface{} `json:"system_info,omitempty"`
	HealthInfo   map[string]interface{} `json:"health_info,omitempty"`
	LicenseInfo  map[string]interface{} `json:"license_info,omitempty"`
}

// Worker is the central aggregate: one per managed VM hosting the Service.
// The id is assigned by the control plane and is independent of the cloud
// instance id, which becomes immutable once first assigned.
type Worker struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	Region    string    `json:"region"`

	CloudInstanceID string            `json:"cloud_instance_id,omitempty"`
	InstanceType    string            `json:"instance_type,omitempty"`
	ImageID         string            `json:"image_id,omitempty"`
	ImageName       string            `json:"image_name,omitempty"`
	PublicAddress   string            `json:"public_address,omitempty"`
	PrivateAddress  string            `json:"private_address,omitempty"`
	Subnet          string            `json:"subnet,omitempty"`
	SecurityGroups  []string          `json:"security_groups,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`

	Status WorkerStatus `json:"status"`

	CloudHealth      CloudHealth      `json:"cloud_health"`
	CloudUtilization CloudUtilization `json:"cloud_utilization"`
	Service          ServiceState     `json:"service"`

	IdleDetectionEnabled bool      `json:"idle_detection_enabled"`
	LastActivityAt       time.Time `json:"last_activity_at,omitempty"`
	IdleSince            time.Time `json:"idle_since,omitempty"`
	PausedBySystem       bool      `json:"paused_by_system"`
}

// Owner identifies the Service-side owner of a lab
type Owner struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

// FieldChange records one field diff inside a lab operation entry
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// LabOperation is one entry in a lab record's bounded operation history
type LabOperation struct {
	Timestamp     time.Time              `json:"timestamp"`
	PreviousState string                 `json:"previous_state"`
	NewState      string                 `json:"new_state"`
	ChangedFields map[string]FieldChange `json:"changed_fields,omitempty"`
}

// MaxLabOperations bounds the operation history ring on a lab record
const MaxLabOperations = 50

// LabRecord is the local projection of a Service-side lab, one per
// (worker_id, lab_id) pair
type LabRecord struct {
	ID          string `json:"id"`
	WorkerID    string `json:"worker_id"`
	LabID       string `json:"lab_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	State       string `json:"state"`
	Owner       Owner  `json:"owner"`
	NodeCount   int    `json:"node_count"`
	LinkCount   int    `json:"link_count"`

	Groups []string `json:"groups,omitempty"`

	CreatedOnService  time.Time `json:"created_on_service,omitempty"`
	ModifiedOnService time.Time `json:"modified_on_service,omitempty"`

	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSyncedAt time.Time `json:"last_synced_at"`

	OperationHistory []LabOperation `json:"operation_history,omitempty"`
}

// ServiceLab is a lab as reported by the Service API on a worker
type ServiceLab struct {
	ID          string    `json:"id"`
	Title       string    `json:"lab_title"`
	Description string    `json:"lab_description"`
	Notes       string    `json:"lab_notes"`
	State       string    `json:"state"`
	Owner       string    `json:"owner"`
	OwnerName   string    `json:"owner_fullname"`
	NodeCount   int       `json:"node_count"`
	LinkCount   int       `json:"link_count"`
	Groups      []string  `json:"groups"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

// VMFacts describes a cloud instance as reported by the cloud API
type VMFacts struct {
	InstanceID     string            `json:"instance_id"`
	InstanceType   string            `json:"instance_type"`
	ImageID        string            `json:"image_id"`
	ImageName      string            `json:"image_name,omitempty"`
	State          string            `json:"state"`
	PublicAddress  string            `json:"public_address,omitempty"`
	PrivateAddress string            `json:"private_address,omitempty"`
	Subnet         string            `json:"subnet,omitempty"`
	SecurityGroups []string          `json:"security_groups,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	LaunchedAt     time.Time         `json:"launched_at,omitempty"`
}
