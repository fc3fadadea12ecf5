package cloud

import (
	"context"
	"time"

	"github.com/labfleet/labfleet/pkg/types"
)

// RunSpec describes the VM to launch for a new worker
type RunSpec struct {
	Name             string
	InstanceType     string
	ImageID          string
	SubnetID         string
	SecurityGroupIDs []string
	KeyName          string
	UserData         string
	Tags             map[string]string
}

// InstanceStatus carries the two status details the cloud reports per VM
type InstanceStatus struct {
	InstanceState string
	SystemStatus  string
}

// Utilization is a point-in-time resource usage reading
type Utilization struct {
	CPUPercent    float64
	MemoryPercent float64
}

// API is the port to the cloud provider. Implementations must bound every
// call with a timeout, translate provider errors into the Kind taxonomy, and
// retry Throttled/Transient failures internally with backoff and jitter.
type API interface {
	DescribeImageIDs(ctx context.Context, region, namePattern string) ([]string, error)
	ListInstances(ctx context.Context, region string, filters map[string][]string) ([]types.VMFacts, error)
	DescribeInstance(ctx context.Context, region, instanceID string) (*types.VMFacts, error)
	DescribeStatus(ctx context.Context, region, instanceID string) (*InstanceStatus, error)
	RunInstance(ctx context.Context, region string, spec RunSpec) (string, error)
	StartInstance(ctx context.Context, region, instanceID string) error
	StopInstance(ctx context.Context, region, instanceID string) error
	TerminateInstance(ctx context.Context, region, instanceID string) error
	SetTags(ctx context.Context, region, instanceID string, tags map[string]string) error
	SetDetailedMonitoring(ctx context.Context, region, instanceID string, enabled bool) error
	GetUtilization(ctx context.Context, region, instanceID string, window time.Duration) (*Utilization, error)
}
