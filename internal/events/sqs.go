package events

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/aws"
	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
)

// SQS long-poll defaults.
const (
	DefaultBatchSize   int32 = 10
	DefaultWaitSeconds int32 = 20
	DefaultRetryDelay        = 2 * time.Second
)

// SQSChannel is a Channel fed by an SQS queue. Messages are decoded at the
// boundary and delivered one at a time in receive order. Delivered and
// malformed messages are deleted; messages left undelivered because the
// subscription closed stay on the queue for the next consumer.
type SQSChannel struct {
	queue       *aws.Queue
	log         *zap.Logger
	batchSize   int32
	waitSeconds int32
	retryDelay  time.Duration
}

// NewSQSChannel returns a channel polling queue.
func NewSQSChannel(queue *aws.Queue, log *zap.Logger) *SQSChannel {
	return &SQSChannel{
		queue:       queue,
		log:         logger.OrNop(log),
		batchSize:   DefaultBatchSize,
		waitSeconds: DefaultWaitSeconds,
		retryDelay:  DefaultRetryDelay,
	}
}

// WithPolling overrides the long-poll parameters.
func (c *SQSChannel) WithPolling(batchSize, waitSeconds int32, retryDelay time.Duration) *SQSChannel {
	c.batchSize = batchSize
	c.waitSeconds = waitSeconds
	c.retryDelay = retryDelay
	return c
}

// Subscribe starts a polling loop that runs until the subscription is
// closed or ctx is done.
func (c *SQSChannel) Subscribe(ctx context.Context, h Handlers) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pollCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(h, cancel)
	go c.poll(pollCtx, sub)
	return sub, nil
}

func (c *SQSChannel) poll(ctx context.Context, sub *Subscription) {
	defer sub.end()
	log := c.log.With(zap.String("subscription", sub.ID()), zap.String("queue", c.queue.QueueURL))
	log.Info("sqs event channel started")

	for ctx.Err() == nil {
		msgs, err := c.queue.Receive(ctx, c.batchSize, c.waitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("sqs receive failed, retrying", zap.Error(err), zap.Duration("delay", c.retryDelay))
			select {
			case <-ctx.Done():
			case <-time.After(c.retryDelay):
			}
			continue
		}

		for _, m := range msgs {
			id := sdkaws.ToString(m.MessageId)
			ev, err := Decode([]byte(sdkaws.ToString(m.Body)))
			if err != nil {
				log.Warn("rejected malformed push payload", zap.String("message_id", id), zap.Error(err))
				sub.reject(err)
				c.ack(ctx, log, m.ReceiptHandle)
				continue
			}
			ev.MessageID = id
			if sent, ok := aws.SentAt(m); ok {
				log.Debug("sqs event received", zap.String("message_id", id), zap.Duration("queue_lag", time.Since(sent)))
			}
			if !sub.deliver(ev) {
				log.Info("sqs event channel stopped")
				return
			}
			c.ack(ctx, log, m.ReceiptHandle)
		}
	}
	log.Info("sqs event channel stopped")
}

func (c *SQSChannel) ack(ctx context.Context, log *zap.Logger, handle *string) {
	if handle == nil {
		return
	}
	if err := c.queue.Ack(ctx, *handle); err != nil {
		// redelivery is harmless: merges are idempotent
		log.Warn("sqs ack failed", zap.Error(err))
	}
}
