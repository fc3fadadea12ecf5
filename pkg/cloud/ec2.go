package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/labfleet/labfleet/pkg/log"
	"github.com/labfleet/labfleet/pkg/types"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	maxAttempts = 3
	retryDelay  = 500 * time.Millisecond
)

// Options tunes the EC2 adapter
type Options struct {
	OpTimeout      time.Duration // control-plane calls, default 15s
	MetricsTimeout time.Duration // CloudWatch reads, default 60s
}

func (o *Options) defaults() {
	if o.OpTimeout == 0 {
		o.OpTimeout = 15 * time.Second
	}
	if o.MetricsTimeout == 0 {
		o.MetricsTimeout = 60 * time.Second
	}
}

// regionClients bundles the per-region SDK clients
type regionClients struct {
	ec2 *ec2.Client
	cw  *cloudwatch.Client
}

// EC2Adapter implements API against AWS EC2 and CloudWatch
type EC2Adapter struct {
	opts    Options
	clients *gocache.Cache // region -> *regionClients
	logger  zerolog.Logger
}

// NewEC2Adapter creates the adapter. Clients are built lazily per region and
// cached; credentials come from the default AWS provider chain.
func NewEC2Adapter(opts Options) *EC2Adapter {
	opts.defaults()
	return &EC2Adapter{
		opts:    opts,
		clients: gocache.New(gocache.NoExpiration, 0),
		logger:  log.WithComponent("cloud"),
	}
}

func (a *EC2Adapter) clientsFor(ctx context.Context, region string) (*regionClients, error) {
	if c, ok := a.clients.Get(region); ok {
		return c.(*regionClients), nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config for %s: %w", region, err)
	}
	c := &regionClients{
		ec2: ec2.NewFromConfig(cfg),
		cw:  cloudwatch.NewFromConfig(cfg),
	}
	a.clients.SetDefault(region, c)
	return c, nil
}

// do runs one adapter call with the per-call timeout and internal retry on
// Throttled/Transient kinds
func (a *EC2Adapter) do(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return wrap(op, fn(callCtx))
		},
		retry.Attempts(maxAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			kind := KindOf(err)
			return kind == KindThrottled || kind == KindTransient
		}),
	)
	if err != nil {
		a.logger.Debug().Err(err).Str("op", op).Msg("cloud call failed")
	}
	return err
}

// DescribeImageIDs resolves an image name pattern to image ids
func (a *EC2Adapter) DescribeImageIDs(ctx context.Context, region, namePattern string) ([]string, error) {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = a.do(ctx, "DescribeImageIDs", a.opts.OpTimeout, func(ctx context.Context) error {
		out, err := c.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{
			Filters: []ec2types.Filter{{Name: aws.String("name"), Values: []string{namePattern}}},
		})
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, img := range out.Images {
			ids = append(ids, aws.ToString(img.ImageId))
		}
		return nil
	})
	return ids, err
}

// ListInstances lists non-terminated instances matching the given filters
func (a *EC2Adapter) ListInstances(ctx context.Context, region string, filters map[string][]string) ([]types.VMFacts, error) {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return nil, err
	}
	input := &ec2.DescribeInstancesInput{}
	for name, values := range filters {
		input.Filters = append(input.Filters, ec2types.Filter{Name: aws.String(name), Values: values})
	}

	var facts []types.VMFacts
	err = a.do(ctx, "ListInstances", a.opts.OpTimeout, func(ctx context.Context) error {
		facts = facts[:0]
		paginator := ec2.NewDescribeInstancesPaginator(c.ec2, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, res := range page.Reservations {
				for _, inst := range res.Instances {
					facts = append(facts, instanceFacts(inst))
				}
			}
		}
		return nil
	})
	return facts, err
}

// DescribeInstance fetches one instance by id
func (a *EC2Adapter) DescribeInstance(ctx context.Context, region, instanceID string) (*types.VMFacts, error) {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return nil, err
	}
	var facts *types.VMFacts
	err = a.do(ctx, "DescribeInstance", a.opts.OpTimeout, func(ctx context.Context) error {
		out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			return err
		}
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				f := instanceFacts(inst)
				facts = &f
				return nil
			}
		}
		return &Error{Kind: KindNotFound, Op: "DescribeInstance", Err: fmt.Errorf("instance %s not found", instanceID)}
	})
	return facts, err
}

// DescribeStatus reads the instance-state and system-status details
func (a *EC2Adapter) DescribeStatus(ctx context.Context, region, instanceID string) (*InstanceStatus, error) {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return nil, err
	}
	var status *InstanceStatus
	err = a.do(ctx, "DescribeStatus", a.opts.OpTimeout, func(ctx context.Context) error {
		out, err := c.ec2.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
			InstanceIds:         []string{instanceID},
			IncludeAllInstances: aws.Bool(true),
		})
		if err != nil {
			return err
		}
		if len(out.InstanceStatuses) == 0 {
			return &Error{Kind: KindNotFound, Op: "DescribeStatus", Err: fmt.Errorf("no status for %s", instanceID)}
		}
		st := out.InstanceStatuses[0]
		status = &InstanceStatus{
			InstanceState: string(st.InstanceState.Name),
			SystemStatus:  string(st.SystemStatus.Status),
		}
		return nil
	})
	return status, err
}

// RunInstance launches the VM described by spec and returns its instance id
func (a *EC2Adapter) RunInstance(ctx context.Context, region string, spec RunSpec) (string, error) {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return "", err
	}

	tags := []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(spec.Name)}}
	for k, v := range spec.Tags {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(spec.ImageID),
		InstanceType: ec2types.InstanceType(spec.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         tags,
		}},
	}
	if spec.SubnetID != "" {
		input.SubnetId = aws.String(spec.SubnetID)
	}
	if len(spec.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = spec.SecurityGroupIDs
	}
	if spec.KeyName != "" {
		input.KeyName = aws.String(spec.KeyName)
	}
	if spec.UserData != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(spec.UserData)))
	}

	var instanceID string
	err = a.do(ctx, "RunInstance", a.opts.OpTimeout, func(ctx context.Context) error {
		out, err := c.ec2.RunInstances(ctx, input)
		if err != nil {
			return err
		}
		if len(out.Instances) == 0 {
			return &Error{Kind: KindOther, Op: "RunInstance", Err: fmt.Errorf("no instance returned")}
		}
		instanceID = aws.ToString(out.Instances[0].InstanceId)
		return nil
	})
	return instanceID, err
}

// StartInstance starts a stopped instance
func (a *EC2Adapter) StartInstance(ctx context.Context, region, instanceID string) error {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return err
	}
	return a.do(ctx, "StartInstance", a.opts.OpTimeout, func(ctx context.Context) error {
		_, err := c.ec2.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{instanceID}})
		return err
	})
}

// StopInstance stops a running instance
func (a *EC2Adapter) StopInstance(ctx context.Context, region, instanceID string) error {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return err
	}
	return a.do(ctx, "StopInstance", a.opts.OpTimeout, func(ctx context.Context) error {
		_, err := c.ec2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{instanceID}})
		return err
	})
}

// TerminateInstance terminates an instance
func (a *EC2Adapter) TerminateInstance(ctx context.Context, region, instanceID string) error {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return err
	}
	return a.do(ctx, "TerminateInstance", a.opts.OpTimeout, func(ctx context.Context) error {
		_, err := c.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{instanceID}})
		return err
	})
}

// SetTags creates or replaces tags on an instance
func (a *EC2Adapter) SetTags(ctx context.Context, region, instanceID string, tags map[string]string) error {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return err
	}
	var ec2Tags []ec2types.Tag
	for k, v := range tags {
		ec2Tags = append(ec2Tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return a.do(ctx, "SetTags", a.opts.OpTimeout, func(ctx context.Context) error {
		_, err := c.ec2.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{instanceID},
			Tags:      ec2Tags,
		})
		return err
	})
}

// SetDetailedMonitoring toggles 1-minute CloudWatch monitoring
func (a *EC2Adapter) SetDetailedMonitoring(ctx context.Context, region, instanceID string, enabled bool) error {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return err
	}
	return a.do(ctx, "SetDetailedMonitoring", a.opts.OpTimeout, func(ctx context.Context) error {
		if enabled {
			_, err := c.ec2.MonitorInstances(ctx, &ec2.MonitorInstancesInput{InstanceIds: []string{instanceID}})
			return err
		}
		_, err := c.ec2.UnmonitorInstances(ctx, &ec2.UnmonitorInstancesInput{InstanceIds: []string{instanceID}})
		return err
	})
}

func instanceFacts(inst ec2types.Instance) types.VMFacts {
	facts := types.VMFacts{
		InstanceID:     aws.ToString(inst.InstanceId),
		InstanceType:   string(inst.InstanceType),
		ImageID:        aws.ToString(inst.ImageId),
		PublicAddress:  aws.ToString(inst.PublicIpAddress),
		PrivateAddress: aws.ToString(inst.PrivateIpAddress),
		Subnet:         aws.ToString(inst.SubnetId),
		LaunchedAt:     aws.ToTime(inst.LaunchTime),
		Tags:           map[string]string{},
	}
	if inst.State != nil {
		facts.State = string(inst.State.Name)
	}
	for _, sg := range inst.SecurityGroups {
		facts.SecurityGroups = append(facts.SecurityGroups, aws.ToString(sg.GroupId))
	}
	for _, tag := range inst.Tags {
		facts.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return facts
}
