package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"example/resume-api/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent []*sqs.SendMessageInput
	err  error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

var ev = models.ReviewEvent{
	Type:     models.ReviewEventRequested,
	ReviewID: "rev-1",
	ResumeID: "res-1",
	OwnerID:  "user-1",
	Status:   models.ReviewRequested,
	At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
}

func TestSQSPublishStandardQueue(t *testing.T) {
	fake := &fakeSQS{}
	s := newSQS(fake, "https://sqs.us-east-1.amazonaws.com/1/reviews")
	require.NoError(t, s.Publish(context.Background(), ev))

	require.Len(t, fake.sent, 1)
	msg := fake.sent[0]
	assert.Nil(t, msg.MessageGroupId)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(msg.MessageBody)), &got))
	assert.Equal(t, "review.requested", got["type"])
	assert.Equal(t, "rev-1", got["review_id"])
}

func TestSQSPublishFIFOQueue(t *testing.T) {
	fake := &fakeSQS{}
	s := newSQS(fake, "https://sqs.us-east-1.amazonaws.com/1/reviews.fifo")
	require.NoError(t, s.Publish(context.Background(), ev))
	assert.Equal(t, "rev-1", aws.ToString(fake.sent[0].MessageGroupId))
	assert.NotEmpty(t, aws.ToString(fake.sent[0].MessageDeduplicationId))
}

func TestSQSPublishError(t *testing.T) {
	s := newSQS(&fakeSQS{err: errors.New("throttled")}, "q")
	err := s.Publish(context.Background(), ev)
	assert.ErrorContains(t, err, "throttled")
}
