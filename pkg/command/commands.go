package command

// Command names double as the `command` label on the dispatch metric
const (
	NameCreateWorker           = "create_worker"
	NameImportWorker           = "import_worker"
	NameBulkImportWorkers      = "bulk_import_workers"
	NameStartWorker            = "start_worker"
	NameStopWorker             = "stop_worker"
	NameTerminateWorker        = "terminate_worker"
	NameUpdateWorkerTags       = "update_worker_tags"
	NameSyncWorkerCloudMetrics = "sync_worker_cloud_metrics"
	NameSyncWorkerServiceData  = "sync_worker_service_data"
	NameRefreshWorkerLabs      = "refresh_worker_labs"
	NameDeleteLab              = "delete_lab"
	NameSetIdleDetection       = "set_idle_detection"
	NameDetectWorkerIdle       = "detect_worker_idle"
	NameRefreshWorker          = "refresh_worker"
)

// CreateWorker launches a new VM and registers it as a worker (the
// provisioning saga)
type CreateWorker struct {
	Name               string            `json:"name" validate:"required"`
	Region             string            `json:"region" validate:"required"`
	InstanceType       string            `json:"instance_type" validate:"required"`
	ImageID            string            `json:"image_id" validate:"required_without=ImageName"`
	ImageName          string            `json:"image_name"`
	SubnetID           string            `json:"subnet_id"`
	SecurityGroupIDs   []string          `json:"security_group_ids"`
	KeyName            string            `json:"key_name"`
	UserData           string            `json:"user_data"`
	CreatedBy          string            `json:"created_by"`
	Tags               map[string]string `json:"tags"`
	DetailedMonitoring bool              `json:"detailed_monitoring"`
}

func (CreateWorker) CommandName() string { return NameCreateWorker }

// ImportWorker adopts an already-running cloud instance as a worker
type ImportWorker struct {
	Region     string `json:"region" validate:"required"`
	InstanceID string `json:"instance_id" validate:"required"`
	Name       string `json:"name"`
	CreatedBy  string `json:"created_by"`
}

func (ImportWorker) CommandName() string { return NameImportWorker }

// BulkImportWorkers discovers instances launched from an image and imports
// every one not already managed
type BulkImportWorkers struct {
	Region    string `json:"region" validate:"required"`
	ImageID   string `json:"image_id" validate:"required_without=ImageName"`
	ImageName string `json:"image_name"`
	CreatedBy string `json:"created_by"`
}

func (BulkImportWorkers) CommandName() string { return NameBulkImportWorkers }

// BulkImportSummary reports the outcome per discovered instance
type BulkImportSummary struct {
	Imported []string          `json:"imported"`
	Skipped  []string          `json:"skipped"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// StartWorker starts the worker's VM
type StartWorker struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

func (StartWorker) CommandName() string { return NameStartWorker }
func (c StartWorker) WorkerKey() string { return c.WorkerID }

// StopWorker stops the worker's VM; PausedBySystem marks idle-detector stops
type StopWorker struct {
	WorkerID       string `json:"worker_id" validate:"required"`
	PausedBySystem bool   `json:"paused_by_system"`
}

func (StopWorker) CommandName() string { return NameStopWorker }
func (c StopWorker) WorkerKey() string { return c.WorkerID }

// TerminateWorker tears the VM down; the record is deleted once the cloud
// confirms the instance is gone
type TerminateWorker struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

func (TerminateWorker) CommandName() string { return NameTerminateWorker }
func (c TerminateWorker) WorkerKey() string { return c.WorkerID }

// UpdateWorkerTags replaces the cloud tags on the instance and the record
type UpdateWorkerTags struct {
	WorkerID string            `json:"worker_id" validate:"required"`
	Tags     map[string]string `json:"tags" validate:"required"`
}

func (UpdateWorkerTags) CommandName() string { return NameUpdateWorkerTags }
func (c UpdateWorkerTags) WorkerKey() string { return c.WorkerID }

// SyncWorkerCloudMetrics refreshes the cloud health and utilization slots
type SyncWorkerCloudMetrics struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

func (SyncWorkerCloudMetrics) CommandName() string { return NameSyncWorkerCloudMetrics }
func (c SyncWorkerCloudMetrics) WorkerKey() string { return c.WorkerID }

// SyncWorkerServiceData refreshes the Service metric slot
type SyncWorkerServiceData struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

func (SyncWorkerServiceData) CommandName() string { return NameSyncWorkerServiceData }
func (c SyncWorkerServiceData) WorkerKey() string { return c.WorkerID }

// RefreshWorkerLabs reconciles the local lab records against the Service
type RefreshWorkerLabs struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

func (RefreshWorkerLabs) CommandName() string { return NameRefreshWorkerLabs }
func (c RefreshWorkerLabs) WorkerKey() string { return c.WorkerID }

// LabsRefreshSummary reports one reconciliation pass
type LabsRefreshSummary struct {
	Created int  `json:"created"`
	Updated int  `json:"updated"`
	Removed int  `json:"removed"`
	Skipped bool `json:"skipped,omitempty"`
}

// DeleteLab removes a lab on the Service first, then the local record
type DeleteLab struct {
	WorkerID string `json:"worker_id" validate:"required"`
	LabID    string `json:"lab_id" validate:"required"`
}

func (DeleteLab) CommandName() string { return NameDeleteLab }
func (c DeleteLab) WorkerKey() string { return c.WorkerID }

// SetIdleDetection flips the auto-pause opt-in for a worker
type SetIdleDetection struct {
	WorkerID string `json:"worker_id" validate:"required"`
	Enabled  bool   `json:"enabled"`
}

func (SetIdleDetection) CommandName() string { return NameSetIdleDetection }
func (c SetIdleDetection) WorkerKey() string { return c.WorkerID }

// DetectWorkerIdle evaluates the idle window and auto-pauses when it expires
type DetectWorkerIdle struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

func (DetectWorkerIdle) CommandName() string { return NameDetectWorkerIdle }
func (c DetectWorkerIdle) WorkerKey() string { return c.WorkerID }

// RefreshWorker is the manual composition: cloud metrics, then service data,
// then labs when the worker is eligible
type RefreshWorker struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

func (RefreshWorker) CommandName() string { return NameRefreshWorker }
func (c RefreshWorker) WorkerKey() string { return c.WorkerID }
