package handler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternlabs/lantern/internal/authform"
)

// authOutcome collects the caller-contract callbacks of one form so the
// request that drove a submission can read the result after it returns.
type authOutcome struct {
	mu     sync.Mutex
	userID string
	closed bool
}

func (o *authOutcome) recordSuccess(userID string) {
	o.mu.Lock()
	o.userID = userID
	o.mu.Unlock()
}

func (o *authOutcome) recordClose() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

// snapshot returns the recorded user ID and whether the form asked to close.
func (o *authOutcome) snapshot() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.userID, o.closed
}

type formEntry struct {
	form     *authform.Form
	outcome  *authOutcome
	lastSeen time.Time
}

// FormRegistry holds live form instances keyed by opaque IDs. A form lives
// for the duration of one interaction session: it is created when the
// browser opens the auth modal, touched on every event, and swept after
// sitting idle past the TTL. Nothing is persisted.
type FormRegistry struct {
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	forms map[uuid.UUID]*formEntry

	done      chan struct{}
	closeOnce sync.Once
}

// NewFormRegistry creates a registry and starts its idle sweeper.
func NewFormRegistry(ttl, sweepInterval time.Duration, logger *slog.Logger) *FormRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}

	r := &FormRegistry{
		ttl:    ttl,
		logger: logger,
		forms:  make(map[uuid.UUID]*formEntry),
		done:   make(chan struct{}),
	}

	go r.sweep(sweepInterval)

	return r
}

// Add registers a form and returns its ID.
func (r *FormRegistry) Add(form *authform.Form, outcome *authOutcome) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	r.forms[id] = &formEntry{
		form:     form,
		outcome:  outcome,
		lastSeen: time.Now(),
	}
	r.mu.Unlock()

	return id
}

// Get returns the form and outcome for the given ID, refreshing its idle
// timer.
func (r *FormRegistry) Get(id uuid.UUID) (*authform.Form, *authOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.forms[id]
	if !ok {
		return nil, nil, false
	}
	entry.lastSeen = time.Now()
	return entry.form, entry.outcome, true
}

// Remove discards a form, typically after it signalled close.
func (r *FormRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.forms, id)
	r.mu.Unlock()
}

// Len reports how many forms are live.
func (r *FormRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

func (r *FormRegistry) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-r.ttl)
			swept := 0

			r.mu.Lock()
			for id, entry := range r.forms {
				if entry.lastSeen.Before(cutoff) {
					delete(r.forms, id)
					swept++
				}
			}
			r.mu.Unlock()

			if swept > 0 {
				r.logger.Debug("swept idle auth forms", "count", swept)
			}
		case <-r.done:
			return
		}
	}
}

// Close stops the sweeper.
func (r *FormRegistry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}
