package command

import (
	"context"
	"fmt"

	"github.com/labfleet/labfleet/pkg/cloud"
	"github.com/labfleet/labfleet/pkg/domain"
)

// CreateWorker runs the provisioning saga: the worker record is persisted as
// pending before the cloud call so a crash leaves a visible stub, then the
// instance launch either promotes it to provisioned or marks it failed. When
// the launch errors after the cloud handed out an instance id, the instance
// is terminated as compensation; a failed compensation is logged with the
// orphaned id and the original error still wins.
func (h *Handlers) CreateWorker(ctx context.Context, cmd Command) Result {
	c := cmd.(*CreateWorker)
	now := h.now()

	imageID := c.ImageID
	if imageID == "" {
		ids, err := h.cloud.DescribeImageIDs(ctx, c.Region, c.ImageName)
		if err != nil {
			return FailedDependency(string(cloud.KindOf(err)), "image lookup failed: %v", err)
		}
		if len(ids) == 0 {
			return NotFound("no image matching %q in %s", c.ImageName, c.Region)
		}
		imageID = ids[0]
	}

	a := domain.NewWorker(domain.NewWorkerParams{
		Name:         c.Name,
		Region:       c.Region,
		InstanceType: c.InstanceType,
		ImageID:      imageID,
		ImageName:    c.ImageName,
		CreatedBy:    c.CreatedBy,
		Tags:         c.Tags,
	}, now)
	if err := h.persist(a, false); err != nil {
		return Internal(err)
	}

	logger := h.logger.With().Str("worker_id", a.Worker.ID).Str("region", c.Region).Logger()

	tags := map[string]string{"Name": c.Name}
	for k, v := range c.Tags {
		tags[k] = v
	}
	instanceID, err := h.cloud.RunInstance(ctx, c.Region, cloud.RunSpec{
		Name:             c.Name,
		InstanceType:     c.InstanceType,
		ImageID:          imageID,
		SubnetID:         c.SubnetID,
		SecurityGroupIDs: c.SecurityGroupIDs,
		KeyName:          c.KeyName,
		UserData:         c.UserData,
		Tags:             tags,
	})
	if err != nil {
		if ferr := a.ProvisionFailed(err.Error(), h.now()); ferr != nil {
			return Internal(ferr)
		}
		if perr := h.persist(a, true); perr != nil {
			logger.Error().Err(perr).Msg("failed to persist provisioning failure")
		}
		if instanceID != "" {
			if terr := h.cloud.TerminateInstance(ctx, c.Region, instanceID); terr != nil {
				logger.Error().Err(terr).
					Str("cloud_instance_id", instanceID).
					Msg("compensation failed, instance may be orphaned")
			}
		}
		return FailedDependency(string(cloud.KindOf(err)), "instance launch failed: %v", err)
	}

	if err := a.Provisioned(instanceID, h.now()); err != nil {
		return Internal(err)
	}

	if c.DetailedMonitoring {
		if err := h.cloud.SetDetailedMonitoring(ctx, c.Region, instanceID, true); err != nil {
			logger.Warn().Err(err).Msg("enabling detailed monitoring failed")
		} else {
			util := a.Worker.CloudUtilization
			util.DetailedMonitoring = true
			util.LastCollectedAt = h.now()
			a.RecordCloudUtilization(util)
		}
	}

	if err := h.persist(a, true); err != nil {
		return Internal(fmt.Errorf("instance %s launched but persist failed: %w", instanceID, err))
	}
	logger.Info().Str("cloud_instance_id", instanceID).Msg("worker provisioned")
	return OK(a.Worker)
}
