package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
)

func main() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	zlog, err := logger.New(level)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	target := os.Getenv("CONSOLE_URL")
	if target == "" {
		zlog.Fatal("CONSOLE_URL is required")
	}
	p := NewProcessor(NewWebhookForwarder(target, 10*time.Second), zlog)

	// If RUN_LOCAL=true, relay a single message taken from LOCAL_SQS_BODY.
	if os.Getenv("RUN_LOCAL") == "true" {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"event":"refund-payment-created","data":{"id":"local-refund-1","orderId":"local-order-1","status":"begin","clientValidated":false}}`
		}
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			zlog.Fatal("local relay failed", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
