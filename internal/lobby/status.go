package lobby

import (
	"slices"

	"github.com/flor3z/scrim-bot/internal/storage"
)

// Action is something a user can do to a lobby
type Action string

const (
	ActionJoin   Action = "join"
	ActionLeave  Action = "leave"
	ActionClose  Action = "close"
	ActionStart  Action = "start"
	ActionCancel Action = "cancel"
)

// Actions lists every lobby action in button order
var Actions = []Action{ActionJoin, ActionLeave, ActionClose, ActionStart, ActionCancel}

// transitions holds the legal status moves. Nothing leaves cancelled and
// nothing returns to open.
var transitions = map[storage.Status][]storage.Status{
	storage.StatusOpen:    {storage.StatusClosed, storage.StatusStarted, storage.StatusCancelled},
	storage.StatusClosed:  {storage.StatusStarted, storage.StatusCancelled},
	storage.StatusStarted: {storage.StatusCancelled},
}

// CanTransition reports whether a lobby may move from one status to another
func CanTransition(from, to storage.Status) bool {
	return slices.Contains(transitions[from], to)
}

// Target returns the status a host action moves the lobby to
func (a Action) Target() (storage.Status, bool) {
	switch a {
	case ActionClose:
		return storage.StatusClosed, true
	case ActionStart:
		return storage.StatusStarted, true
	case ActionCancel:
		return storage.StatusCancelled, true
	default:
		return "", false
	}
}

// HostOnly reports whether only the host may perform the action
func (a Action) HostOnly() bool {
	_, ok := a.Target()
	return ok
}

// Allowed reports whether an action is available for a lobby in the given
// status. Join and leave need an open lobby; host actions need a legal
// transition.
func Allowed(status storage.Status, a Action) bool {
	if a == ActionJoin || a == ActionLeave {
		return status == storage.StatusOpen
	}
	to, ok := a.Target()
	return ok && CanTransition(status, to)
}
