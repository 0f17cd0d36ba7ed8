package planner

import (
	"context"
	"errors"
	"strings"
	"sync"

	"weekplan/domain"
)

// DragState is the phase of a drag gesture.
type DragState int

const (
	DragIdle DragState = iota
	DragDragging
	DragCommitting
)

func (s DragState) String() string {
	switch s {
	case DragDragging:
		return "dragging"
	case DragCommitting:
		return "committing"
	}
	return "idle"
}

var (
	ErrDragActive  = errors.New("a drag is already in progress")
	ErrNotDragging = errors.New("no drag in progress")
	ErrInvalidDrop = errors.New("drop target must look like YYYY-MM-DD-block")
)

// DropTarget is a cell of the week grid.
type DropTarget struct {
	Date  string
	Block domain.TimeBlock
}

// ID renders the target as the grid cell identifier.
func (t DropTarget) ID() string { return t.Date + "-" + string(t.Block) }

// ParseDropTarget parses a cell identifier such as "2026-01-14-morning".
func ParseDropTarget(id string) (DropTarget, error) {
	if len(id) < len(domain.DateLayout)+2 || id[len(domain.DateLayout)] != '-' {
		return DropTarget{}, ErrInvalidDrop
	}
	date := id[:len(domain.DateLayout)]
	if err := domain.ValidateDate(date); err != nil {
		return DropTarget{}, ErrInvalidDrop
	}
	block := domain.TimeBlock(strings.ToLower(id[len(domain.DateLayout)+1:]))
	if !block.Valid() {
		return DropTarget{}, ErrInvalidDrop
	}
	return DropTarget{Date: date, Block: block}, nil
}

// Mover commits a task move.
type Mover interface {
	MoveTask(ctx context.Context, id int64, date string, block domain.TimeBlock) error
}

// Drag tracks one drag gesture at a time: idle, dragging a task, then
// committing the move once it is dropped on a different cell.
type Drag struct {
	mover Mover

	mu    sync.Mutex
	state DragState
	task  domain.Task
}

// NewDrag returns an idle drag controller.
func NewDrag(mover Mover) *Drag { return &Drag{mover: mover} }

// State returns the current phase.
func (d *Drag) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Active returns the task being dragged.
func (d *Drag) Active() (domain.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.task, d.state != DragIdle
}

// Start begins dragging task.
func (d *Drag) Start(task domain.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DragIdle {
		return ErrDragActive
	}
	d.state = DragDragging
	d.task = task
	return nil
}

// Cancel abandons the drag without moving anything.
func (d *Drag) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DragDragging {
		d.reset()
	}
}

// Drop ends the drag over target. A nil target or the task's own cell ends
// the drag without a move. It reports whether a move was committed.
func (d *Drag) Drop(ctx context.Context, target *DropTarget) (bool, error) {
	d.mu.Lock()
	if d.state != DragDragging {
		d.mu.Unlock()
		return false, ErrNotDragging
	}
	task := d.task
	if target == nil || (target.Date == task.Date && target.Block == task.TimeBlock) {
		d.reset()
		d.mu.Unlock()
		return false, nil
	}
	d.state = DragCommitting
	d.mu.Unlock()

	err := d.mover.MoveTask(ctx, task.ID, target.Date, target.Block)

	d.mu.Lock()
	d.reset()
	d.mu.Unlock()
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Drag) reset() {
	d.state = DragIdle
	d.task = domain.Task{}
}
