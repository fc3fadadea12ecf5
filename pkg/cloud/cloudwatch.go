package cloud

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// GetUtilization reads the latest CPU and memory usage over the given window.
// CPU comes from the AWS/EC2 namespace; memory needs the CloudWatch agent on
// the instance (CWAgent namespace) and reads as 0 when absent.
func (a *EC2Adapter) GetUtilization(ctx context.Context, region, instanceID string, window time.Duration) (*Utilization, error) {
	c, err := a.clientsFor(ctx, region)
	if err != nil {
		return nil, err
	}

	dim := []cwtypes.Dimension{{Name: aws.String("InstanceId"), Value: aws.String(instanceID)}}
	period := int32(300)
	queries := []cwtypes.MetricDataQuery{
		{
			Id: aws.String("cpu"),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String("AWS/EC2"),
					MetricName: aws.String("CPUUtilization"),
					Dimensions: dim,
				},
				Period: aws.Int32(period),
				Stat:   aws.String("Average"),
			},
		},
		{
			Id: aws.String("mem"),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String("CWAgent"),
					MetricName: aws.String("mem_used_percent"),
					Dimensions: dim,
				},
				Period: aws.Int32(period),
				Stat:   aws.String("Average"),
			},
		},
	}

	var util *Utilization
	err = a.do(ctx, "GetUtilization", a.opts.MetricsTimeout, func(ctx context.Context) error {
		now := time.Now()
		out, err := c.cw.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
			StartTime:         aws.Time(now.Add(-window)),
			EndTime:           aws.Time(now),
			MetricDataQueries: queries,
			ScanBy:            cwtypes.ScanByTimestampDescending,
		})
		if err != nil {
			return err
		}
		u := &Utilization{}
		for _, result := range out.MetricDataResults {
			if len(result.Values) == 0 {
				continue
			}
			switch aws.ToString(result.Id) {
			case "cpu":
				u.CPUPercent = result.Values[0]
			case "mem":
				u.MemoryPercent = result.Values[0]
			}
		}
		util = u
		return nil
	})
	return util, err
}
