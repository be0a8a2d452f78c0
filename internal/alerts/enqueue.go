package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/bidhub/internal/marketplace"
	"github.com/sudo-init-do/bidhub/internal/user"
)

// Enqueuer is the part of *asynq.Client the queue uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue turns lifecycle notices into background email tasks.
type Queue struct {
	client   Enqueuer
	resetTTL time.Duration
	now      func() time.Time
}

func NewQueue(client Enqueuer, resetTTL time.Duration) *Queue {
	return &Queue{client: client, resetTTL: resetTTL, now: time.Now}
}

func (q *Queue) enqueue(ctx context.Context, taskType string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alerts: encode %s: %w", taskType, err)
	}
	task := asynq.NewTask(taskType, b, asynq.MaxRetry(5), asynq.Timeout(time.Minute))
	if _, err := q.client.EnqueueContext(ctx, task, asynq.Queue(QueueEmails)); err != nil {
		return fmt.Errorf("alerts: enqueue %s: %w", taskType, err)
	}
	return nil
}

// BidSelected schedules the congratulation email to the winning seller.
func (q *Queue) BidSelected(ctx context.Context, n marketplace.BidSelectedNotice) error {
	return q.enqueue(ctx, TaskBidSelected, BidSelectedPayload{
		ProjectID:    n.Project.ID,
		ProjectTitle: n.Project.Title,
		BidID:        n.Bid.ID,
		SellerID:     n.Seller.ID,
		Name:         n.Seller.Name,
		Email:        n.Seller.Email,
		SentAt:       q.now(),
	})
}

// ProjectCompleted schedules one email to the buyer and one to the seller.
func (q *Queue) ProjectCompleted(ctx context.Context, n marketplace.ProjectCompletedNotice) error {
	type recipient struct {
		u    user.User
		role string
	}
	recipients := []recipient{{n.Buyer, "buyer"}}
	if n.Seller != nil {
		recipients = append(recipients, recipient{*n.Seller, "seller"})
	}

	var errs []error
	for _, r := range recipients {
		err := q.enqueue(ctx, TaskProjectCompleted, ProjectCompletedPayload{
			ProjectID:    n.Project.ID,
			ProjectTitle: n.Project.Title,
			UserID:       r.u.ID,
			Name:         r.u.Name,
			Email:        r.u.Email,
			Role:         r.role,
			SentAt:       q.now(),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PasswordReset schedules the reset link email.
func (q *Queue) PasswordReset(ctx context.Context, u user.User, resetURL string) error {
	return q.enqueue(ctx, TaskPasswordReset, PasswordResetPayload{
		UserID:    u.ID,
		Name:      u.Name,
		Email:     u.Email,
		ResetURL:  resetURL,
		ExpiresIn: q.resetTTL,
		Requested: q.now(),
	})
}
