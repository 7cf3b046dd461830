package sqs

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	jobID := uuid.New()
	q := &Queue{}

	t.Run("valid message", func(t *testing.T) {
		raw := types.Message{
			MessageId:     aws.String("m1"),
			ReceiptHandle: aws.String("rh-1"),
			Body: aws.String(`{"job_id":"` + jobID.String() +
				`","bucket":"data","key":"logs/app.log","enqueue_time":"2026-08-29T10:00:00Z"}`),
			Attributes: map[string]string{
				string(types.MessageSystemAttributeNameApproximateReceiveCount): "2",
			},
		}

		msg, err := q.decode(raw)
		require.NoError(t, err)
		assert.Equal(t, jobID, msg.JobID)
		assert.Equal(t, "data", msg.Ref.Bucket)
		assert.Equal(t, "logs/app.log", msg.Ref.Key)
		assert.Equal(t, "rh-1", msg.ReceiptToken)
		assert.Equal(t, 2, msg.ReceiveCount)
		assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), msg.EnqueueTime)
	})

	t.Run("missing receive count defaults to one", func(t *testing.T) {
		raw := types.Message{
			ReceiptHandle: aws.String("rh-2"),
			Body:          aws.String(`{"job_id":"` + jobID.String() + `","bucket":"data","key":"a.txt"}`),
		}

		msg, err := q.decode(raw)
		require.NoError(t, err)
		assert.Equal(t, 1, msg.ReceiveCount)
	})

	t.Run("invalid json", func(t *testing.T) {
		raw := types.Message{Body: aws.String(`{not json`)}
		_, err := q.decode(raw)
		assert.Error(t, err)
	})

	t.Run("invalid job id", func(t *testing.T) {
		raw := types.Message{Body: aws.String(`{"job_id":"nope","bucket":"data","key":"a.txt"}`)}
		_, err := q.decode(raw)
		assert.Error(t, err)
	})

	t.Run("missing object reference", func(t *testing.T) {
		raw := types.Message{Body: aws.String(`{"job_id":"` + jobID.String() + `","bucket":"data"}`)}
		_, err := q.decode(raw)
		assert.Error(t, err)
	})
}
