package telemetry

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"delaywatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Recorder = (*CloudWatch)(nil)

// CloudWatch emits each observation as a PutMetricData call. Used on
// Lambda, where nothing scrapes /metrics.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatch publishes to namespace, or types.MetricNamespace when empty.
func NewCloudWatch(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatch {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatch) RecordRun(ctx context.Context, status types.JobStatus, duration time.Duration) {
	m.put(ctx,
		count(types.MetricMonitorRun, dim(types.DimOutcome, string(status))),
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricMonitorRunSeconds),
			Value:      aws.Float64(duration.Seconds()),
			Unit:       cwtypes.StandardUnitSeconds,
		},
	)
}

func (m *CloudWatch) RecordSiteOutcome(ctx context.Context, outcome string, code types.ErrorCode) {
	dims := []cwtypes.Dimension{dim(types.DimOutcome, outcome)}
	if code != "" {
		dims = append(dims, dim(types.DimErrorCode, string(code)))
	}
	m.put(ctx, count(types.MetricSiteOutcome, dims...))
}

func (m *CloudWatch) RecordTransition(ctx context.Context, transition string) {
	m.put(ctx, count(types.MetricDelayTransition, dim(types.DimTransition, transition)))
}

func (m *CloudWatch) RecordUpstream(ctx context.Context, status int, elapsed time.Duration, err error) {
	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricUpstreamLatency),
		Value:      aws.Float64(float64(elapsed.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	}}
	if err != nil {
		data = append(data, count(types.MetricUpstreamFailure, dim(types.DimOutcome, statusClass(status))))
	}
	m.put(ctx, data...)
}

func (m *CloudWatch) RecordDelivery(ctx context.Context, sink string, err error) {
	name := types.MetricDeliverySuccess
	if err != nil {
		name = types.MetricDeliveryFailed
	}
	m.put(ctx, count(name, dim(types.DimSink, sink)))
}

func (m *CloudWatch) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to put metric data",
			"error", err.Error(),
			"metric", aws.ToString(data[0].MetricName),
		)
	}
}

func count(name string, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
