package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TaskRecorder counts processed tasks.
type TaskRecorder interface {
	Task(taskType string, success bool)
}

// Processor handles email tasks: it records an inbox notification on the
// first attempt and then sends the email, returning errors so asynq
// retries delivery.
type Processor struct {
	mailer  Mailer
	inbox   NotificationStore
	metrics TaskRecorder
	log     logrus.FieldLogger
}

func NewProcessor(mailer Mailer, inbox NotificationStore, metrics TaskRecorder, log logrus.FieldLogger) *Processor {
	return &Processor{mailer: mailer, inbox: inbox, metrics: metrics, log: log}
}

// Register attaches the handlers to mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskBidSelected, p.handleBidSelected)
	mux.HandleFunc(TaskProjectCompleted, p.handleProjectCompleted)
	mux.HandleFunc(TaskPasswordReset, p.handlePasswordReset)
}

// NewServer builds the asynq worker server for the email queue.
func NewServer(redis asynq.RedisConnOpt, concurrency int, log logrus.FieldLogger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueEmails: 10},
		Logger:      log,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.WithError(err).WithFields(logrus.Fields{
				"task":    task.Type(),
				"attempt": retried + 1,
				"max":     maxRetry + 1,
			}).Warn("notification task failed")
		}),
	})
}

func (p *Processor) handleBidSelected(ctx context.Context, t *asynq.Task) error {
	var pl BidSelectedPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return p.deliver(ctx, t.Type(), &Notification{
		UserID:    pl.SellerID,
		Type:      "bid_selected",
		Title:     "Your bid was selected",
		Body:      fmt.Sprintf("Your bid for %q has been selected.", pl.ProjectTitle),
		Reference: ref(pl.ProjectID),
	}, bidSelectedEmail(pl))
}

func (p *Processor) handleProjectCompleted(ctx context.Context, t *asynq.Task) error {
	var pl ProjectCompletedPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return p.deliver(ctx, t.Type(), &Notification{
		UserID:    pl.UserID,
		Type:      "project_completed",
		Title:     "Project completed",
		Body:      fmt.Sprintf("The project %q has been marked as completed.", pl.ProjectTitle),
		Reference: ref(pl.ProjectID),
	}, projectCompletedEmail(pl))
}

func (p *Processor) handlePasswordReset(ctx context.Context, t *asynq.Task) error {
	var pl PasswordResetPayload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return p.deliver(ctx, t.Type(), nil, passwordResetEmail(pl))
}

// deliver stores n (when non-nil) once and sends e.
func (p *Processor) deliver(ctx context.Context, taskType string, n *Notification, e Email) error {
	log := p.log.WithFields(logrus.Fields{"task": taskType, "to": e.To})

	if n != nil && p.inbox != nil && firstAttempt(ctx) {
		if err := p.inbox.Create(ctx, n); err != nil {
			log.WithError(err).Warn("inbox notification not stored")
		}
	}

	if err := p.mailer.Send(ctx, e); err != nil {
		p.record(taskType, false)
		return fmt.Errorf("send %s: %w", taskType, err)
	}
	p.record(taskType, true)
	log.Info("email sent")
	return nil
}

func (p *Processor) record(taskType string, ok bool) {
	if p.metrics != nil {
		p.metrics.Task(taskType, ok)
	}
}

func firstAttempt(ctx context.Context) bool {
	n, ok := asynq.GetRetryCount(ctx)
	return !ok || n == 0
}

func ref(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
