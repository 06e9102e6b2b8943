// Package metrics publishes reconciliation gauges and counters to CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	awsx "github.com/imrishuroy/go-refund-reconciler/internal/aws"
	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
	"github.com/imrishuroy/go-refund-reconciler/internal/reconcile"
)

// Metric names.
const (
	MetricRecordsAll      = "RecordsAll"
	MetricRecordsActive   = "RecordsActive"
	MetricEventsApplied   = "EventsApplied"
	MetricEventsIgnored   = "EventsIgnored"
	MetricEventsStale     = "EventsStale"
	MetricEventsUnknown   = "EventsUnknown"
	MetricEventsMalformed = "EventsMalformed"
)

const defaultInterval = time.Minute

// StatsSource returns the current engine stats. (*reconcile.Engine).Stats
// satisfies it.
type StatsSource func() reconcile.Stats

// Publisher periodically pushes stats to CloudWatch. Event counters are
// sent as deltas since the previous push.
type Publisher struct {
	cw        awsx.CloudWatchAPI
	namespace string
	interval  time.Duration
	source    StatsSource
	log       *zap.Logger
	now       func() time.Time

	last reconcile.Stats
}

// NewPublisher returns a Publisher for namespace. interval <= 0 means one minute.
func NewPublisher(cw awsx.CloudWatchAPI, namespace string, interval time.Duration, source StatsSource, log *zap.Logger) *Publisher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Publisher{
		cw:        cw,
		namespace: namespace,
		interval:  interval,
		source:    source,
		log:       logger.OrNop(log),
		now:       time.Now,
	}
}

// Run publishes every interval until ctx is done. Failed pushes are logged
// and retried on the next tick.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Publish(ctx); err != nil {
				p.log.Warn("publish metrics failed", zap.Error(err))
			}
		}
	}
}

// Publish sends one batch of datums.
func (p *Publisher) Publish(ctx context.Context) error {
	stats := p.source()
	ts := p.now()

	datums := []cwtypes.MetricDatum{
		datum(MetricRecordsAll, float64(stats.All), ts),
		datum(MetricRecordsActive, float64(stats.Active), ts),
		datum(MetricEventsApplied, float64(stats.Applied-p.last.Applied), ts),
		datum(MetricEventsIgnored, float64(stats.Ignored-p.last.Ignored), ts),
		datum(MetricEventsStale, float64(stats.Stale-p.last.Stale), ts),
		datum(MetricEventsUnknown, float64(stats.Unknown-p.last.Unknown), ts),
		datum(MetricEventsMalformed, float64(stats.Malformed-p.last.Malformed), ts),
	}

	_, err := p.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: datums,
	})
	if err != nil {
		return err
	}
	p.last = stats
	return nil
}

func datum(name string, value float64, ts time.Time) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(ts),
	}
}
