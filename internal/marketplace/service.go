package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/storage"
	"github.com/sudo-init-do/bidhub/internal/user"
)

// BidSelectedNotice tells the winning seller their bid was accepted.
type BidSelectedNotice struct {
	Project Project
	Bid     Bid
	Seller  user.User
}

// ProjectCompletedNotice goes to the buyer and, when known, the seller.
type ProjectCompletedNotice struct {
	Project Project
	Buyer   user.User
	Seller  *user.User
}

// Notifier hands notifications off for delivery. Errors are reported
// but never fail the operation that triggered them.
type Notifier interface {
	BidSelected(ctx context.Context, n BidSelectedNotice) error
	ProjectCompleted(ctx context.Context, n ProjectCompletedNotice) error
}

// Publisher pushes realtime events to clients watching a project.
type Publisher interface {
	Publish(projectID, eventType string, data interface{})
}

// Recorder counts lifecycle activity.
type Recorder interface {
	Transition(event string)
	NotificationFailed(kind string)
}

type Deps struct {
	Store    Store
	Users    user.Store
	Uploader storage.Uploader
	Notifier Notifier
	Events   Publisher
	Metrics  Recorder
	Log      logrus.FieldLogger
}

// Service runs the project lifecycle: it applies the capability gates,
// consults the transition table, and performs guarded writes.
type Service struct {
	store    Store
	users    user.Store
	uploader storage.Uploader
	notifier Notifier
	events   Publisher
	metrics  Recorder
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		users:    d.Users,
		uploader: d.Uploader,
		notifier: d.Notifier,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      d.Log,
		now:      time.Now,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		s.log = l
	}
	return s
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) loadProject(ctx context.Context, id string) (*Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Project not found")
		}
		return nil, apperr.Internal("load project", err)
	}
	return p, nil
}

// selectedSellerID returns "" when the project has no selected bid.
func (s *Service) selectedSellerID(ctx context.Context, p *Project) (string, error) {
	if p.SelectedBidID == nil {
		return "", nil
	}
	b, err := s.store.GetBid(ctx, p.ID, *p.SelectedBidID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", apperr.Internal("load selected bid", err)
	}
	return b.SellerID, nil
}

// committed records a successful lifecycle event.
func (s *Service) committed(e Event, projectID, eventType string, data interface{}) {
	s.metrics.Transition(string(e))
	s.events.Publish(projectID, eventType, data)
}

func (s *Service) notifyFailed(kind string, err error, fields logrus.Fields) {
	s.metrics.NotificationFailed(kind)
	s.log.WithError(err).WithFields(fields).Warn("notification not delivered")
}

type nopNotifier struct{}

func (nopNotifier) BidSelected(context.Context, BidSelectedNotice) error           { return nil }
func (nopNotifier) ProjectCompleted(context.Context, ProjectCompletedNotice) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, interface{}) {}

type nopRecorder struct{}

func (nopRecorder) Transition(string)         {}
func (nopRecorder) NotificationFailed(string) {}
