package pipeline

import "fmt"

// ItemState is the position of one item in the transfer state machine.
type ItemState int

// Item states, in pipeline order.
const (
	StateListed ItemState = iota
	StateDownloaded
	StateTransformed
	StateTokenIssued
	StateConfirmed
	StateRejected
	StateSourceDeleted
	StateSkippedDeletion
)

var stateNames = [...]string{
	StateListed:          "Listed",
	StateDownloaded:      "Downloaded",
	StateTransformed:     "Transformed",
	StateTokenIssued:     "TokenIssued",
	StateConfirmed:       "Confirmed",
	StateRejected:        "Rejected",
	StateSourceDeleted:   "SourceDeleted",
	StateSkippedDeletion: "SkippedDeletion",
}

func (s ItemState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("ItemState(%d)", int(s))
	}

	return stateNames[s]
}

// MarshalText renders the state by name in JSON and logs.
func (s ItemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s ItemState) Terminal() bool {
	return s == StateSourceDeleted || s == StateSkippedDeletion
}

// transitions lists the allowed successor states. Every non-terminal state
// may short-circuit to StateSkippedDeletion; only a confirmed item may reach
// StateSourceDeleted.
var transitions = map[ItemState][]ItemState{
	StateListed:      {StateDownloaded, StateSkippedDeletion},
	StateDownloaded:  {StateTransformed, StateSkippedDeletion},
	StateTransformed: {StateTokenIssued, StateSkippedDeletion},
	StateTokenIssued: {StateConfirmed, StateRejected, StateSkippedDeletion},
	StateConfirmed:   {StateSourceDeleted, StateSkippedDeletion},
	StateRejected:    {StateSkippedDeletion},
}

func canTransition(from, to ItemState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// itemTask carries one item through a batch. It is owned by a single
// goroutine at a time: its worker during prepare, the batch loop afterwards.
type itemTask struct {
	item  RemoteItem
	state ItemState

	uploadName      string
	uploadToken     string
	mediaItemID     string
	confirmed       bool
	deleteSimulated bool
	err             error
}

func newItemTask(item RemoteItem) *itemTask {
	return &itemTask{item: item, state: StateListed}
}

// advance moves the task to the next state, refusing illegal transitions.
func (t *itemTask) advance(to ItemState) error {
	if !canTransition(t.state, to) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, t.state, to, t.item.ID)
	}

	t.state = to

	if to == StateConfirmed {
		t.confirmed = true
	}

	return nil
}

// skip records err and short-circuits the task to StateSkippedDeletion.
// The first error wins.
func (t *itemTask) skip(err error) {
	if t.err == nil {
		t.err = err
	}

	if !t.state.Terminal() {
		t.state = StateSkippedDeletion
	}
}

func (t *itemTask) outcome() TransferOutcome {
	o := TransferOutcome{
		Item:            t.item,
		State:           t.state,
		Succeeded:       t.confirmed,
		MediaItemID:     t.mediaItemID,
		DeleteSimulated: t.deleteSimulated,
		Err:             t.err,
	}

	if t.err != nil {
		o.Reason = t.err.Error()
	}

	return o
}
