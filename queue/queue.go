package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	streamName    = "JOBS"
	subjectQCRun  = "jobs.qc.run"
	jobNameQCRun  = "qc.run"
	fetchBatch    = 1
	fetchDeadline = 5 * time.Second
)

// Queue publishes and consumes background jobs over NATS JetStream. The
// stream keeps one copy per message id, so re-publishing with the same
// correlation id is idempotent.
type Queue struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// QCRunJob is the wire payload for a queued QC run.
type QCRunJob struct {
	Name          string `json:"name"`
	RunID         int64  `json:"run_id"`
	CorrelationID string `json:"correlation_id"`
}

// Connect dials NATS and ensures the jobs stream exists.
func Connect(natsURL string) (*Queue, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, eris.Wrap(err, "queue: connect nats")
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, eris.Wrap(err, "queue: jetstream context")
	}

	_, err = js.StreamInfo(streamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      streamName,
			Subjects:  []string{"jobs.>"},
			Retention: nats.WorkQueuePolicy,
		})
	}
	if err != nil {
		nc.Close()
		return nil, eris.Wrap(err, "queue: ensure stream")
	}

	return &Queue{nc: nc, js: js}, nil
}

// Close drains the connection.
func (q *Queue) Close() {
	q.nc.Close()
}

// DispatchQCRun publishes a QC run job and returns its correlation id. The
// correlation id doubles as the JetStream message id for deduplication.
func (q *Queue) DispatchQCRun(ctx context.Context, runID int64) (string, error) {
	correlationID := uuid.New().String()
	payload, err := json.Marshal(QCRunJob{
		Name:          jobNameQCRun,
		RunID:         runID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return "", eris.Wrap(err, "queue: marshal qc job")
	}

	if _, err := q.js.Publish(subjectQCRun, payload,
		nats.MsgId(correlationID),
		nats.Context(ctx),
	); err != nil {
		return "", eris.Wrap(err, "queue: publish qc job")
	}
	return correlationID, nil
}

// QCRunHandler processes one QC run job. The handler owns terminal run
// states; its error is logged, not redelivered.
type QCRunHandler func(ctx context.Context, job QCRunJob) error

// ConsumeQCRuns pulls QC run jobs until the context is cancelled. Messages
// are acked after the handler returns regardless of its error: the run row
// records failures, and blind redelivery would only repeat them.
func (q *Queue) ConsumeQCRuns(ctx context.Context, durable string, handler QCRunHandler) error {
	sub, err := q.js.PullSubscribe(subjectQCRun, durable, nats.ManualAck())
	if err != nil {
		return eris.Wrap(err, "queue: subscribe qc jobs")
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchDeadline))
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			zap.L().Warn("fetch qc jobs failed", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var job QCRunJob
			if err := json.Unmarshal(msg.Data, &job); err != nil {
				zap.L().Error("drop malformed qc job", zap.Error(err))
				msg.Ack()
				continue
			}

			if err := handler(ctx, job); err != nil {
				zap.L().Error("qc job failed",
					zap.Int64("run_id", job.RunID),
					zap.String("correlation_id", job.CorrelationID),
					zap.Error(err),
				)
			}
			msg.Ack()
		}
	}
}
