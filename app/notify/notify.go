// Package notify publishes review-order events for operators.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"example/resume-api/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS sends each event as one JSON message, grouped by review for FIFO
// queues.
type SQS struct {
	client   sqsAPI
	queueURL string
	fifo     bool
}

func NewSQS(ctx context.Context, queueURL string) (*SQS, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SQS: %w", err)
	}
	return newSQS(sqs.NewFromConfig(awsCfg), queueURL), nil
}

func newSQS(client sqsAPI, queueURL string) *SQS {
	return &SQS{client: client, queueURL: queueURL, fifo: strings.HasSuffix(queueURL, ".fifo")}
}

func (s *SQS) Publish(ctx context.Context, ev models.ReviewEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if s.fifo {
		in.MessageGroupId = aws.String(ev.ReviewID)
		in.MessageDeduplicationId = aws.String(fmt.Sprintf("%s-%s-%d", ev.ReviewID, ev.Type, ev.At.UnixNano()))
	}
	if _, err := s.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("failed to send SQS message for review=%s: %w", ev.ReviewID, err)
	}
	return nil
}

// Log is used when no queue is configured.
type Log struct{}

func (Log) Publish(_ context.Context, ev models.ReviewEvent) error {
	log.Printf("QUEUE_URL missing in config; review event type=%s review=%s resume=%s status=%s",
		ev.Type, ev.ReviewID, ev.ResumeID, ev.Status)
	return nil
}
