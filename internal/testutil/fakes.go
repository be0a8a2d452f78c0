package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/marketplace"
	"github.com/sudo-init-do/bidhub/internal/storage"
	"github.com/sudo-init-do/bidhub/internal/user"
)

// QuietLogger discards everything.
func QuietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Notifier records notices and optionally fails.
type Notifier struct {
	mu        sync.Mutex
	Selected  []marketplace.BidSelectedNotice
	Completed []marketplace.ProjectCompletedNotice
	Resets    []string
	Err       error
}

func (n *Notifier) BidSelected(_ context.Context, notice marketplace.BidSelectedNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Selected = append(n.Selected, notice)
	return n.Err
}

func (n *Notifier) ProjectCompleted(_ context.Context, notice marketplace.ProjectCompletedNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Completed = append(n.Completed, notice)
	return n.Err
}

// PasswordReset records the reset URL.
func (n *Notifier) PasswordReset(_ context.Context, _ user.User, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Resets = append(n.Resets, resetURL)
	return n.Err
}

// Uploader keeps uploaded files in memory.
type Uploader struct {
	mu    sync.Mutex
	Files []storage.File
	Err   error
}

func (u *Uploader) Upload(_ context.Context, f storage.File) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return "", u.Err
	}
	u.Files = append(u.Files, f)
	return "https://files.test/" + f.Name, nil
}

type Published struct {
	ProjectID string
	Type      string
	Data      interface{}
}

// Publisher records realtime events.
type Publisher struct {
	mu     sync.Mutex
	Events []Published
}

func (p *Publisher) Publish(projectID, eventType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, Published{ProjectID: projectID, Type: eventType, Data: data})
}

func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Type)
	}
	return out
}
