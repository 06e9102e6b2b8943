package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Queue wraps an SQS client and a queue URL.
type Queue struct {
	SQS      SQSAPI
	QueueURL string
}

// NewQueue returns a Queue bound to a queue URL.
func NewQueue(sqsClient SQSAPI, queueURL string) *Queue {
	return &Queue{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Receive long-polls the queue for up to max messages, waiting at most
// waitSeconds for the first one to arrive.
func (q *Queue) Receive(ctx context.Context, max, waitSeconds int32) ([]sqstypes.Message, error) {
	out, err := q.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.QueueURL,
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     waitSeconds,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameSentTimestamp,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	return out.Messages, nil
}

// Ack deletes a processed message so it is not redelivered.
func (q *Queue) Ack(ctx context.Context, receiptHandle string) error {
	_, err := q.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.QueueURL,
		ReceiptHandle: &receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SentAt returns when SQS accepted m, read from the SentTimestamp system
// attribute that Receive requests.
func SentAt(m sqstypes.Message) (time.Time, bool) {
	raw, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameSentTimestamp)]
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
