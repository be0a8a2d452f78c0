package marketplace

import "github.com/sudo-init-do/bidhub/internal/apperr"

// Event is a lifecycle operation on a project.
type Event string

const (
	EventCreateProject     Event = "CreateProject"
	EventUpdateProject     Event = "UpdateProject"
	EventDeleteProject     Event = "DeleteProject"
	EventPlaceBid          Event = "PlaceBid"
	EventSelectBid         Event = "SelectBid"
	EventSubmitDeliverable Event = "SubmitDeliverable"
	EventCompleteProject   Event = "CompleteProject"
	EventCreateReview      Event = "CreateReview"
)

// transition gives the state an event requires, the state it leaves the
// project in, and the message reported when the project is elsewhere.
// An empty from means the project does not exist yet; an empty to means
// the project is removed.
type transition struct {
	from     Status
	to       Status
	conflict string
}

var lifecycle = map[Event]transition{
	EventCreateProject: {
		to: StatusPending,
	},
	EventUpdateProject: {
		from:     StatusPending,
		to:       StatusPending,
		conflict: "Cannot update a project that is already in progress or completed",
	},
	EventDeleteProject: {
		from:     StatusPending,
		conflict: "Cannot delete a project that is already in progress or completed",
	},
	EventPlaceBid: {
		from:     StatusPending,
		to:       StatusPending,
		conflict: "Cannot bid on a project that is not in PENDING status",
	},
	EventSelectBid: {
		from:     StatusPending,
		to:       StatusInProgress,
		conflict: "Cannot select a bid for a project that is not in PENDING status",
	},
	EventSubmitDeliverable: {
		from:     StatusInProgress,
		to:       StatusInProgress,
		conflict: "Cannot submit deliverables for a project that is not in progress",
	},
	EventCompleteProject: {
		from:     StatusInProgress,
		to:       StatusCompleted,
		conflict: "Cannot complete a project that is not in progress",
	},
	EventCreateReview: {
		from:     StatusCompleted,
		to:       StatusCompleted,
		conflict: "Cannot review a project that is not completed",
	},
}

// CheckTransition returns a Conflict error unless the event may fire on a
// project in the current state.
func CheckTransition(e Event, current Status) error {
	t, ok := lifecycle[e]
	if !ok {
		return apperr.Internal("unknown lifecycle event "+string(e), nil)
	}
	if t.from != current {
		return apperr.Conflict(t.conflict)
	}
	return nil
}

// Target is the state the event leaves the project in.
func Target(e Event) Status {
	return lifecycle[e].to
}

// stale is the error reported when a guarded write finds the project has
// moved on since it was read.
func stale(e Event) error {
	return apperr.Conflict(lifecycle[e].conflict)
}
