package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// OutcomeMetricName is the CloudWatch metric counting reconciliation outcomes.
const OutcomeMetricName = "ReconciliationOutcome"

// Metrics publishes reconciliation counters to CloudWatch.
type Metrics struct {
	CW        CloudWatchAPI
	Namespace string
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics emitter for the given namespace.
func NewMetrics(cw CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{CW: cw, Namespace: namespace, nowFunc: time.Now}
}

// RecordOutcome adds one to ReconciliationOutcome, dimensioned by outcome kind and reason.
func (m *Metrics) RecordOutcome(ctx context.Context, kind, reason string) error {
	dims := []cwtypes.Dimension{
		{Name: sdkaws.String("Outcome"), Value: sdkaws.String(kind)},
	}
	if reason != "" {
		dims = append(dims, cwtypes.Dimension{Name: sdkaws.String("Reason"), Value: sdkaws.String(reason)})
	}
	_, err := m.CW.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.Namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(OutcomeMetricName),
				Dimensions: dims,
				Timestamp:  sdkaws.Time(m.nowFunc()),
				Unit:       cwtypes.StandardUnitCount,
				Value:      sdkaws.Float64(1),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
