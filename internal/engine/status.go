package engine

import "github.com/campusgate/gatelog/internal/record"

// Status returns the current connectivity and progress snapshot.
func (e *Engine) Status() record.Status {
	return e.snapshot()
}

func (e *Engine) snapshot() record.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// statusLocked builds a snapshot. Caller holds e.mu; connectivity is
// read live from the monitor, everything else from engine state.
func (e *Engine) statusLocked() record.Status {
	return record.Status{
		Online:   e.mon.Online(),
		Syncing:  e.syncing,
		LastSync: e.lastSync,
		Pending:  e.pending,
		Errors:   e.errs,
	}.Clone()
}

// Subscribe registers a status callback and returns its unsubscribe
// function. The current snapshot is delivered immediately so new
// subscribers never start blind.
func (e *Engine) Subscribe(fn func(record.Status)) func() {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	st := e.statusLocked()
	e.mu.Unlock()

	fn(st)

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// publish fans a snapshot out to all subscribers, outside the lock.
func (e *Engine) publish(st record.Status) {
	e.mu.Lock()
	subs := make([]Subscriber, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(st.Clone())
	}
}

// recordError appends to the bounded error ring, evicting the oldest
// message past the cap, and publishes the updated snapshot.
func (e *Engine) recordError(msg string) {
	e.mu.Lock()
	e.errs = append(e.errs, msg)
	if len(e.errs) > e.cfg.ErrorCap {
		e.errs = e.errs[len(e.errs)-e.cfg.ErrorCap:]
	}
	st := e.statusLocked()
	e.mu.Unlock()
	e.publish(st)
}

// Errors returns the retained sync errors, oldest first.
func (e *Engine) Errors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.errs))
	copy(out, e.errs)
	return out
}

// ClearErrors empties the error ring.
func (e *Engine) ClearErrors() {
	e.mu.Lock()
	e.errs = nil
	st := e.statusLocked()
	e.mu.Unlock()
	e.publish(st)
}
