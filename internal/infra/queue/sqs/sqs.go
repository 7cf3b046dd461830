// Package sqs provides the SQS-backed queue adapter. Receipt handles map
// onto the domain's receipt tokens: Delete acknowledges a delivery and
// Requeue shortens its visibility timeout so the message redelivers after
// the requested delay.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
	"github.com/ahrav/pii-armada/pkg/common/logger"
)

// maxMessagesPerCall is the SQS ReceiveMessage ceiling. Larger batch sizes
// are satisfied by issuing multiple calls.
const maxMessagesPerCall = 10

// scanMessageBody is the wire format of a scan message.
type scanMessageBody struct {
	JobID       string    `json:"job_id"`
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	EnqueueTime time.Time `json:"enqueue_time"`
}

// Queue implements scanning.Queue on top of an SQS queue.
type Queue struct {
	client   *awssqs.Client
	queueURL string

	tracer trace.Tracer
	logger *logger.Logger
}

// NewQueue creates a Queue for the given queue URL.
func NewQueue(client *awssqs.Client, queueURL string, tracer trace.Tracer, logger *logger.Logger) *Queue {
	return &Queue{client: client, queueURL: queueURL, tracer: tracer, logger: logger}
}

// NewClient builds an SQS client from a resolved AWS config. A non-empty
// endpoint overrides the default resolver for localstack-style deployments.
func NewClient(cfg aws.Config, endpoint string) *awssqs.Client {
	return awssqs.NewFromConfig(cfg, func(o *awssqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// Receive long-polls for up to wait and returns at most max messages. SQS
// caps a single call at ten messages, so larger batches issue follow-up
// calls with no wait; the batch is whatever the queue could deliver
// immediately after the first call returns.
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]scanning.ScanMessage, error) {
	ctx, span := q.tracer.Start(ctx, "sqs.receive",
		trace.WithAttributes(attribute.Int("max_messages", max)))
	defer span.End()

	var msgs []scanning.ScanMessage
	callWait := wait
	for len(msgs) < max {
		want := max - len(msgs)
		if want > maxMessagesPerCall {
			want = maxMessagesPerCall
		}

		out, err := q.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: int32(want),
			WaitTimeSeconds:     int32(callWait / time.Second),
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "receive failed")
			return nil, fmt.Errorf("receiving messages: %w", err)
		}
		if len(out.Messages) == 0 {
			break
		}

		for _, raw := range out.Messages {
			msg, err := q.decode(raw)
			if err != nil {
				// A body we cannot parse will never become processable;
				// drop it rather than let it redeliver forever.
				q.logger.Error(ctx, "dropping malformed scan message",
					"message_id", aws.ToString(raw.MessageId),
					"error", err,
				)
				if delErr := q.Delete(ctx, aws.ToString(raw.ReceiptHandle)); delErr != nil {
					q.logger.Error(ctx, "failed to delete malformed message", "error", delErr)
				}
				continue
			}
			msgs = append(msgs, msg)
		}

		// Only the first call long-polls; follow-ups just drain what is
		// already available.
		callWait = 0
	}

	span.SetAttributes(attribute.Int("received", len(msgs)))
	span.SetStatus(codes.Ok, "received")
	return msgs, nil
}

// Delete acknowledges a delivery.
func (q *Queue) Delete(ctx context.Context, receiptToken string) error {
	ctx, span := q.tracer.Start(ctx, "sqs.delete")
	defer span.End()

	_, err := q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptToken),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("deleting message: %w", err)
	}
	span.SetStatus(codes.Ok, "deleted")
	return nil
}

// Requeue makes the delivery visible again after delay by shrinking its
// visibility timeout.
func (q *Queue) Requeue(ctx context.Context, receiptToken string, delay time.Duration) error {
	ctx, span := q.tracer.Start(ctx, "sqs.requeue",
		trace.WithAttributes(attribute.String("delay", delay.String())))
	defer span.End()

	_, err := q.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(receiptToken),
		VisibilityTimeout: int32(delay / time.Second),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "visibility change failed")
		return fmt.Errorf("requeueing message: %w", err)
	}
	span.SetStatus(codes.Ok, "requeued")
	return nil
}

func (q *Queue) decode(raw types.Message) (scanning.ScanMessage, error) {
	var body scanMessageBody
	if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &body); err != nil {
		return scanning.ScanMessage{}, fmt.Errorf("unmarshaling body: %w", err)
	}

	jobID, err := uuid.Parse(body.JobID)
	if err != nil {
		return scanning.ScanMessage{}, fmt.Errorf("parsing job id %q: %w", body.JobID, err)
	}
	if body.Bucket == "" || body.Key == "" {
		return scanning.ScanMessage{}, fmt.Errorf("message %s missing object reference", aws.ToString(raw.MessageId))
	}

	receiveCount := 1
	if v, ok := raw.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			receiveCount = n
		}
	}

	return scanning.ScanMessage{
		JobID:        jobID,
		Ref:          scanning.ObjectRef{Bucket: body.Bucket, Key: body.Key},
		EnqueueTime:  body.EnqueueTime,
		ReceiptToken: aws.ToString(raw.ReceiptHandle),
		ReceiveCount: receiveCount,
	}, nil
}
