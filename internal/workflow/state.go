package workflow

import (
	"errors"
	"fmt"
)

// Phase is a step of the submission state machine:
//
//	Idle → Validating → Uploading → Persisting → Done
//
// Validation failures and remote failures move straight to Done. Done
// accepts a new submission exactly like Idle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseUploading
	PhasePersisting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseUploading:
		return "uploading"
	case PhasePersisting:
		return "persisting"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// EventType names the inputs of the state machine.
type EventType int

const (
	EventSubmit EventType = iota
	EventValidated
	EventStored
	EventPersisted
	EventFailed
)

// Event drives a transition. Kind is set for EventFailed, DocumentID for
// EventPersisted.
type Event struct {
	Type       EventType
	Kind       Kind
	DocumentID string
}

// Outcome is the result a submission settled on.
type Outcome struct {
	Kind       Kind
	DocumentID string
}

func (o Outcome) Succeeded() bool {
	return o.Kind == ""
}

// State is an immutable snapshot of the state machine.
type State struct {
	phase   Phase
	outcome *Outcome
}

var ErrInvalidTransition = errors.New("workflow: invalid transition")

func (s State) Phase() Phase {
	return s.phase
}

// Uploading reports whether a submission is in flight. The submit action is
// disabled for exactly this span.
func (s State) Uploading() bool {
	return s.phase == PhaseUploading || s.phase == PhasePersisting
}

// Outcome returns the result of the last completed submission, if any.
func (s State) Outcome() (Outcome, bool) {
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// Reduce returns the state that follows s on e. s itself is never modified.
func Reduce(s State, e Event) (State, error) {
	switch {
	case e.Type == EventSubmit && (s.phase == PhaseIdle || s.phase == PhaseDone):
		return State{phase: PhaseValidating}, nil

	case e.Type == EventValidated && s.phase == PhaseValidating:
		return State{phase: PhaseUploading}, nil

	case e.Type == EventStored && s.phase == PhaseUploading:
		return State{phase: PhasePersisting}, nil

	case e.Type == EventPersisted && s.phase == PhasePersisting:
		return done(Outcome{DocumentID: e.DocumentID}), nil

	case e.Type == EventFailed && failureAllowed(s.phase, e.Kind):
		return done(Outcome{Kind: e.Kind}), nil
	}

	return s, fmt.Errorf("%w: event %d in phase %s", ErrInvalidTransition, e.Type, s.phase)
}

func done(o Outcome) State {
	return State{phase: PhaseDone, outcome: &o}
}

// failureAllowed reports whether a failure of kind k can occur in phase p.
func failureAllowed(p Phase, k Kind) bool {
	switch p {
	case PhaseValidating:
		return k == KindMissingField
	case PhaseUploading:
		return k == KindStorageWriteFailed || k == KindStorageURLResolutionFailed
	case PhasePersisting:
		return k == KindDocumentWriteFailed
	}
	return false
}
