package engine

import (
	"time"
)

// Kind identifies an operator mutation.
type Kind int

const (
	AcceptDevice Kind = iota
	RejectDevice
	DeleteDevice
	AcceptFolder
	RejectFolder
	AddFolder
	ModifyFolder
	ShareFolder
	DeleteFolder
)

// String returns the kebab-case name used in notices and logs.
func (k Kind) String() string {
	switch k {
	case AcceptDevice:
		return "accept-device"
	case RejectDevice:
		return "reject-device"
	case DeleteDevice:
		return "delete-device"
	case AcceptFolder:
		return "accept-folder"
	case RejectFolder:
		return "reject-folder"
	case AddFolder:
		return "add-folder"
	case ModifyFolder:
		return "modify-folder"
	case ShareFolder:
		return "share-folder"
	case DeleteFolder:
		return "delete-folder"
	default:
		return "unknown"
	}
}

// Class groups kinds for conflict detection: at most one non-terminal action
// per (target, class) may be queued.
type Class int

const (
	ClassAccept Class = iota
	ClassReject
	ClassModify
	ClassDelete
)

// Class returns the conflict class of a kind. Add, modify and share are all
// config upserts on the same target, so they share a class.
func (k Kind) Class() Class {
	switch k {
	case AcceptDevice, AcceptFolder:
		return ClassAccept
	case RejectDevice, RejectFolder:
		return ClassReject
	case DeleteDevice, DeleteFolder:
		return ClassDelete
	default:
		return ClassModify
	}
}

// Payload carries the operator-supplied fields of an intent. Unused fields
// stay zero; which fields matter depends on the kind.
type Payload struct {
	// Name is the display name for an accepted device.
	Name string
	// Label and Path configure a folder for accept/add/modify.
	Label string
	Path  string
	// Device is the offering device for folder offers, or the device a
	// folder is being shared with.
	Device string
	// Devices is the full sharing list for add/modify folder.
	Devices []string
}

// Intent is an operator-issued mutation request.
type Intent struct {
	Kind    Kind
	Target  string
	Payload Payload
}

// observedState is the comparable shape of an action's target as last
// confirmed at submission. Supersession compares later remote state against
// it: a changed shape is a contradicting remote edit, an identical one is a
// routine re-announcement.
type observedState struct {
	label  string // folder label, device name, or offer name
	path   string // folder path, or pending device address
	shared string // sorted device IDs, space joined
}

// ActionState tracks an action's lifecycle. Confirmed and Failed are
// terminal; terminal actions leave the queue.
type ActionState int

const (
	Queued ActionState = iota
	Sent
	Confirmed
	Failed
)

// String returns the lowercase display form.
func (s ActionState) String() string {
	switch s {
	case Queued:
		return "queued"
	case Sent:
		return "sent"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Action is one operator intent in flight.
type Action struct {
	ID          uint64
	Kind        Kind
	Target      string
	Payload     Payload
	State       ActionState
	SubmittedAt time.Time
	// Seq is the model version observed at submission. A remote event
	// carrying a newer sequence that contradicts the optimistic state
	// supersedes the action.
	Seq    uint64
	Reason string

	// gen is the snapshot generation at submission; sequence numbers are
	// only comparable within one generation.
	gen uint64
	// observed is the target's confirmed shape at submission.
	observed observedState
	handle   *Handle
}

func (a *Action) terminal() bool {
	return a.State == Confirmed || a.State == Failed
}

// Outcome is the terminal result of an action.
type Outcome struct {
	State ActionState
	Err   error
}

// Handle lets the presentation layer track an action to completion.
type Handle struct {
	id      uint64
	kind    Kind
	target  string
	outcome Outcome
	done    chan struct{}
}

func newHandle(id uint64, kind Kind, target string) *Handle {
	return &Handle{id: id, kind: kind, target: target, done: make(chan struct{})}
}

// Kind returns the action's kind.
func (h *Handle) Kind() Kind { return h.kind }

// Target returns the action's target identifier.
func (h *Handle) Target() string { return h.target }

// Done is closed once the action reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome returns the terminal result. Valid only after Done is closed.
func (h *Handle) Outcome() Outcome { return h.outcome }

// resolve records the outcome and releases waiters. Called only from the
// engine goroutine, exactly once.
func (h *Handle) resolve(out Outcome) {
	h.outcome = out
	close(h.done)
}
