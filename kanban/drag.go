package kanban

import (
	"errors"
	"fmt"

	"github.com/CrowderSoup/agenda-app/agenda"
	"github.com/CrowderSoup/agenda-app/database"
)

var (
	// ErrMoveRejected is wrapped by every MoveError for a disallowed move.
	ErrMoveRejected = errors.New("move rejected")
	// ErrNotSaved is wrapped by MoveError when a valid move could not be persisted.
	ErrNotSaved = errors.New("move not saved")
	// ErrBoardUnavailable is returned when the board's sources could not be
	// read, so the move was not attempted.
	ErrBoardUnavailable = errors.New("board unavailable")

	ErrNotDragging  = errors.New("no drag in progress")
	ErrDragInFlight = errors.New("a drag is already in progress")
)

// MoveError carries the notice shown to the user.
type MoveError struct {
	Notice string
	Err    error
}

func (e *MoveError) Error() string {
	return e.Notice
}

func (e *MoveError) Unwrap() error {
	return e.Err
}

// State of a drag.
type State int

const (
	Idle State = iota
	Dragging
	DroppedValid
	DroppedInvalid
	DroppedNoop
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case DroppedValid:
		return "dropped-valid"
	case DroppedInvalid:
		return "dropped-invalid"
	case DroppedNoop:
		return "dropped-noop"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Patch is a single-row update of the item's backing table.
type Patch struct {
	Table    string       `json:"table"`
	OriginID string       `json:"originId"`
	Fields   database.Row `json:"fields"`
}

// Plan is the result of a drop.
type Plan struct {
	State State       `json:"state"`
	Item  agenda.Item `json:"item"`
	From  Position    `json:"from"`
	To    Position    `json:"to"`
	// Patch is nil for reorders within a column and for noops.
	Patch *Patch `json:"patch,omitempty"`
}

// Drag tracks one drag gesture: idle → dragging → dropped-*.
type Drag struct {
	layout Layout
	state  State
	item   agenda.Item
	from   Position
}

func NewDrag(l Layout) *Drag {
	return &Drag{layout: l}
}

func (d *Drag) State() State {
	return d.state
}

// Pick starts dragging it from position from.
func (d *Drag) Pick(it agenda.Item, from Position) error {
	if d.state == Dragging {
		return ErrDragInFlight
	}
	d.state, d.item, d.from = Dragging, it, from
	return nil
}

// Drop ends the drag at to. A rejected move returns a *MoveError and a plan
// in state DroppedInvalid.
func (d *Drag) Drop(to Position) (Plan, error) {
	if d.state != Dragging {
		return Plan{}, ErrNotDragging
	}
	p := Plan{Item: d.item, From: d.from, To: to}

	switch {
	case to.Column == d.from.Column && to.Index == d.from.Index:
		p.State = DroppedNoop
	case to.Column == d.from.Column:
		p.State = DroppedValid
	default:
		change, err := d.layout.Transition(d.item, d.from.Column, to.Column)
		if err != nil {
			d.state = DroppedInvalid
			p.State = DroppedInvalid
			return p, &MoveError{Notice: err.Error(), Err: fmt.Errorf("%w: %v", ErrMoveRejected, err)}
		}
		p.State = DroppedValid
		p.Item = change.Item
		p.Patch = &Patch{Table: d.item.Table, OriginID: d.item.OriginID, Fields: change.Fields}
	}
	d.state = p.State
	return p, nil
}

// Reset returns the drag to idle.
func (d *Drag) Reset() {
	d.state, d.item, d.from = Idle, agenda.Item{}, Position{}
}
