package coparent

import (
	"sync"
	"time"
)

// InviteSheetDelay lets the add co-parent sheet finish closing before the
// invite sheet starts opening.
const InviteSheetDelay = 300 * time.Millisecond

// Sheet is a dismissible surface owned by the UI layer.
type Sheet interface {
	Open()
	Close()
}

// SheetRef holds a Sheet that may not be mounted yet. Calls on a detached ref
// are no-ops.
type SheetRef struct {
	mu    sync.Mutex
	sheet Sheet
}

// Attach binds the mounted sheet.
func (r *SheetRef) Attach(sheet Sheet) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.sheet = sheet
	r.mu.Unlock()
}

// Detach unbinds the sheet, e.g. on unmount.
func (r *SheetRef) Detach() {
	r.Attach(nil)
}

// Open opens the sheet and reports whether one was attached.
func (r *SheetRef) Open() bool {
	sheet := r.current()
	if sheet == nil {
		return false
	}
	sheet.Open()
	return true
}

// Close closes the sheet and reports whether one was attached.
func (r *SheetRef) Close() bool {
	sheet := r.current()
	if sheet == nil {
		return false
	}
	sheet.Close()
	return true
}

func (r *SheetRef) current() Sheet {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sheet
}

// Scheduler runs fn after d and returns a function that cancels it.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// RealScheduler schedules on the runtime timer.
type RealScheduler struct{}

// AfterFunc implements Scheduler with time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

// InviteFlow sequences the add co-parent sheet (A) and the invite
// accept/decline sheet (B) so that both are never open together. The only
// forward transition is A -> B through a delayed open; B never returns to A.
type InviteFlow struct {
	AddCoParent  *SheetRef
	InviteAccept *SheetRef
	Scheduler    Scheduler
	Delay        time.Duration

	mu         sync.Mutex
	generation uint64
	scheduled  bool
	cancel     func()
}

// NewInviteFlow constructs a flow with detached refs. A nil scheduler selects
// RealScheduler.
func NewInviteFlow(scheduler Scheduler) *InviteFlow {
	if scheduler == nil {
		scheduler = RealScheduler{}
	}
	return &InviteFlow{
		AddCoParent:  &SheetRef{},
		InviteAccept: &SheetRef{},
		Scheduler:    scheduler,
		Delay:        InviteSheetDelay,
	}
}

// OpenAddCoParentSheet opens sheet A when it is mounted.
func (f *InviteFlow) OpenAddCoParentSheet() {
	f.AddCoParent.Open()
}

// HandleAddCoParentClose closes sheet A now and opens sheet B after Delay.
// A second call before the delay elapses replaces the pending open.
func (f *InviteFlow) HandleAddCoParentClose() {
	f.AddCoParent.Close()

	f.mu.Lock()
	f.stopPendingLocked()
	gen := f.generation
	f.scheduled = true
	f.mu.Unlock()

	cancel := f.Scheduler.AfterFunc(f.Delay, func() { f.openInviteSheet(gen) })

	f.mu.Lock()
	if f.scheduled && f.generation == gen {
		f.cancel = cancel
		cancel = nil
	}
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// HandleInviteAccept closes sheet B and then calls onComplete, if any.
func (f *InviteFlow) HandleInviteAccept(onComplete func()) {
	f.finish(onComplete)
}

// HandleInviteDecline closes sheet B and then calls onComplete, if any.
func (f *InviteFlow) HandleInviteDecline(onComplete func()) {
	f.finish(onComplete)
}

// Teardown cancels a pending open of sheet B. Call it when the owning screen unmounts.
func (f *InviteFlow) Teardown() {
	f.mu.Lock()
	f.stopPendingLocked()
	f.mu.Unlock()
}

// Pending reports whether an open of sheet B is scheduled.
func (f *InviteFlow) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled
}

func (f *InviteFlow) finish(onComplete func()) {
	f.Teardown()
	f.InviteAccept.Close()
	if onComplete != nil {
		onComplete()
	}
}

func (f *InviteFlow) openInviteSheet(gen uint64) {
	f.mu.Lock()
	if gen != f.generation || !f.scheduled {
		f.mu.Unlock()
		return
	}
	f.scheduled = false
	f.cancel = nil
	f.mu.Unlock()

	f.InviteAccept.Open()
}

func (f *InviteFlow) stopPendingLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.scheduled = false
	f.generation++
}
