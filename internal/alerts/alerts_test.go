package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/bidhub/internal/config"
	"github.com/sudo-init-do/bidhub/internal/marketplace"
	"github.com/sudo-init-do/bidhub/internal/user"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueEmails}, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

type fakeInbox struct {
	items []Notification
}

func (f *fakeInbox) Create(_ context.Context, n *Notification) error {
	n.ID = "n1"
	f.items = append(f.items, *n)
	return nil
}

func (f *fakeInbox) List(context.Context, string) ([]Notification, error) { return f.items, nil }

func (f *fakeInbox) MarkRead(context.Context, string, string) error { return ErrNotFound }

type fakeRecorder struct {
	ok, failed int
}

func (r *fakeRecorder) Task(_ string, success bool) {
	if success {
		r.ok++
	} else {
		r.failed++
	}
}

func TestQueueBidSelected(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewQueue(enq, 30*time.Minute)

	err := q.BidSelected(context.Background(), marketplace.BidSelectedNotice{
		Project: marketplace.Project{ID: "p1", Title: "Logo"},
		Bid:     marketplace.Bid{ID: "b1"},
		Seller:  user.User{ID: "s1", Name: "Sam", Email: "sam@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskBidSelected, enq.tasks[0].Type())

	var pl BidSelectedPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &pl))
	assert.Equal(t, "Logo", pl.ProjectTitle)
	assert.Equal(t, "sam@example.com", pl.Email)
}

func TestQueueProjectCompletedOneTaskPerRecipient(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewQueue(enq, 0)
	seller := user.User{ID: "s1", Name: "Sam", Email: "sam@example.com"}

	err := q.ProjectCompleted(context.Background(), marketplace.ProjectCompletedNotice{
		Project: marketplace.Project{ID: "p1", Title: "Logo"},
		Buyer:   user.User{ID: "b1", Name: "Ada", Email: "ada@example.com"},
		Seller:  &seller,
	})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 2)

	roles := map[string]string{}
	for _, task := range enq.tasks {
		var pl ProjectCompletedPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &pl))
		roles[pl.Email] = pl.Role
	}
	assert.Equal(t, map[string]string{"ada@example.com": "buyer", "sam@example.com": "seller"}, roles)
}

func TestQueueEnqueueError(t *testing.T) {
	q := NewQueue(&fakeEnqueuer{err: errors.New("redis down")}, 0)
	err := q.PasswordReset(context.Background(), user.User{Email: "a@b.c"}, "http://x/reset")
	assert.ErrorContains(t, err, "redis down")
}

func TestProcessorStoresNotificationAndSends(t *testing.T) {
	mailer := &fakeMailer{}
	inbox := &fakeInbox{}
	rec := &fakeRecorder{}
	p := NewProcessor(mailer, inbox, rec, quiet())

	payload, _ := json.Marshal(BidSelectedPayload{ProjectID: "p1", ProjectTitle: "Logo", SellerID: "s1", Name: "Sam", Email: "sam@example.com"})
	require.NoError(t, p.handleBidSelected(context.Background(), asynq.NewTask(TaskBidSelected, payload)))

	require.Len(t, inbox.items, 1)
	assert.Equal(t, "s1", inbox.items[0].UserID)
	require.NotNil(t, inbox.items[0].Reference)
	assert.Equal(t, "p1", *inbox.items[0].Reference)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Your bid for Logo has been selected!", mailer.sent[0].Subject)
	assert.Equal(t, 1, rec.ok)
}

func TestProcessorSendFailureIsRetried(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewProcessor(&fakeMailer{err: errors.New("smtp down")}, nil, rec, quiet())

	payload, _ := json.Marshal(PasswordResetPayload{Email: "a@b.c", ResetURL: "http://x"})
	err := p.handlePasswordReset(context.Background(), asynq.NewTask(TaskPasswordReset, payload))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, 1, rec.failed)
}

func TestProcessorBadPayloadSkipsRetry(t *testing.T) {
	p := NewProcessor(&fakeMailer{}, nil, nil, quiet())
	err := p.handleProjectCompleted(context.Background(), asynq.NewTask(TaskProjectCompleted, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProjectCompletedEmailByRole(t *testing.T) {
	buyer := projectCompletedEmail(ProjectCompletedPayload{Name: "Ada", Email: "ada@example.com", ProjectTitle: "Logo", Role: "buyer"})
	assert.Equal(t, "Project Logo has been completed!", buyer.Subject)
	assert.Contains(t, buyer.Text, "leave a review for the seller")

	seller := projectCompletedEmail(ProjectCompletedPayload{Name: "Sam", ProjectTitle: "Logo", Role: "seller"})
	assert.Contains(t, seller.Text, "The buyer has accepted your deliverables.")
}

func TestTemplatesEscapeHTML(t *testing.T) {
	e := bidSelectedEmail(BidSelectedPayload{Name: "<b>Sam</b>", ProjectTitle: "A & B"})
	assert.Contains(t, e.HTML, "&lt;b&gt;Sam&lt;/b&gt;")
	assert.Contains(t, e.HTML, "A &amp; B")
}

func TestPasswordResetEmail(t *testing.T) {
	e := passwordResetEmail(PasswordResetPayload{Name: "Ada", ResetURL: "http://app/reset-password?token=t", ExpiresIn: 15 * time.Minute})
	assert.Contains(t, e.Text, "http://app/reset-password?token=t")
	assert.Contains(t, e.Text, "expires in 15 minutes")
}

func TestPlunkSend(t *testing.T) {
	var got plunkSendBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPlunk("key", srv.URL, "no-reply@bidhub.local", "", srv.Client())
	err := p.Send(context.Background(), Email{To: "a@b.c", Subject: "Hi", Text: "plain", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", got.To)
	assert.Equal(t, "<p>hi</p>", got.Body)
}

func TestPlunkSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	err := NewPlunk("bad", srv.URL, "", "", srv.Client()).Send(context.Background(), Email{To: "a@b.c"})
	assert.ErrorContains(t, err, "Invalid API key")
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(config.MailConfig{Provider: "log"}, nil, quiet())
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	m, err = NewMailer(config.MailConfig{Provider: "plunk", PlunkAPIKey: "k"}, nil, quiet())
	require.NoError(t, err)
	assert.IsType(t, &Plunk{}, m)

	_, err = NewMailer(config.MailConfig{Provider: "pigeon"}, nil, quiet())
	assert.Error(t, err)
}

func TestSMTPMessage(t *testing.T) {
	m := &SMTPMailer{From: "BidHub <no-reply@bidhub.local>", ReplyTo: "help@bidhub.local"}
	msg := string(m.message(Email{To: "a@b.c", Subject: "Hi", Text: "plain"}))
	assert.Contains(t, msg, "Reply-To: help@bidhub.local\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain")
	assert.Equal(t, "no-reply@bidhub.local", envelopeAddress(m.From))
}
