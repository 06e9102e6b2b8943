package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	refundevents "github.com/imrishuroy/go-refund-reconciler/internal/events"
	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
)

const webhookPath = "/events/refund-payments"

// errWebhookRejected marks a push the console API refused with a 4xx.
// Redelivering it would not help.
var errWebhookRejected = errors.New("webhook rejected payload")

// Forwarder delivers one wire payload to a console instance.
type Forwarder interface {
	Forward(ctx context.Context, body []byte) error
}

// WebhookForwarder posts payloads to the console's webhook endpoint.
type WebhookForwarder struct {
	http *resty.Client
}

// NewWebhookForwarder returns a forwarder for the console at baseURL.
func NewWebhookForwarder(baseURL string, timeout time.Duration) *WebhookForwarder {
	return &WebhookForwarder{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
	}
}

func (f *WebhookForwarder) Forward(ctx context.Context, body []byte) error {
	resp, err := f.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(webhookPath)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() >= 400 && resp.StatusCode() < 500:
		return fmt.Errorf("%w: status %d", errWebhookRejected, resp.StatusCode())
	default:
		return fmt.Errorf("post webhook: status %d", resp.StatusCode())
	}
}

// Processor relays refund-payment events from an SQS batch to the console.
type Processor struct {
	forward Forwarder
	log     *zap.Logger
}

// NewProcessor creates a relay processor.
func NewProcessor(forward Forwarder, log *zap.Logger) *Processor {
	return &Processor{forward: forward, log: logger.OrNop(log)}
}

// Handle validates and forwards every message. Malformed or rejected
// payloads are dropped; transient failures are reported back as batch item
// failures so only those messages are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, msg := range ev.Records {
		log := p.log.With(zap.String("message_id", msg.MessageId))

		decoded, err := refundevents.Decode([]byte(msg.Body))
		if err != nil {
			log.Warn("dropping malformed refund event", zap.Error(err))
			continue
		}
		log = log.With(zap.String("id", decoded.Record.ID), zap.String("event", string(decoded.Kind)))

		err = p.forward.Forward(ctx, []byte(msg.Body))
		switch {
		case err == nil:
			log.Debug("relayed refund event")
		case errors.Is(err, errWebhookRejected):
			log.Warn("console rejected refund event", zap.Error(err))
		default:
			log.Error("relay failed", zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
		}
	}
	return resp, nil
}
