package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the job topic.
const (
	JobEvaluate            = "evaluate"
	JobMatchActuals        = "match_actuals"
	JobGeneratePredictions = "generate_predictions"
	JobHealthCheck         = "health_check"
)

// ErrUnknownJob is returned by Dispatch for an unrecognised job type.
var ErrUnknownJob = errors.New("unknown job type")

// JobMessage is the payload of a job message.
type JobMessage struct {
	JobType      string `json:"job_type"`
	Hours        int    `json:"hours,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`
}

// Dispatcher runs the job named by a message.
type Dispatcher struct {
	job    *EvaluationJob
	probe  func(ctx context.Context) error
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. probe backs health_check jobs and may
// be nil.
func NewDispatcher(job *EvaluationJob, probe func(ctx context.Context) error, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, probe: probe, logger: logger}
}

// Dispatch parses data and runs the job. It returns ErrUnknownJob for job
// types it does not handle.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parse job message: %w", err)
	}

	opts := RunOptions{Hours: msg.Hours, ModelVersion: msg.ModelVersion}
	switch msg.JobType {
	case JobEvaluate:
	case JobMatchActuals:
		opts.MatchOnly = true
	case JobGeneratePredictions:
		opts.GenerateOnly = true
	case JobHealthCheck:
		return d.healthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}

	result := d.job.RunWith(ctx, opts)
	if result.Failed() {
		return fmt.Errorf("%s failed: %s", result.Errors[0].Step, result.Errors[0].Error)
	}
	return nil
}

func (d *Dispatcher) healthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")
	if d.probe == nil {
		return nil
	}
	if err := d.probe(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Jobs are heavy; keep few in flight.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.handle(ctx, msg.ID, msg.PublishTime, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// handle runs one message and reports whether it should be acked.
func (h *PubSubHandler) handle(ctx context.Context, id string, published time.Time, data []byte) bool {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", id).
		Str("publish_time", published.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.dispatcher.Dispatch(ctx, data)
	switch {
	case errors.Is(err, ErrUnknownJob):
		// Redelivery would not help.
		logger.Warn().Err(err).Msg("dropping message")
		return true
	case err != nil:
		logger.Error().Err(err).Msg("job failed")
		return false
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}
