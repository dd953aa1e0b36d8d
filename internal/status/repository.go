package status

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"mvdash/internal/client"
	"mvdash/internal/report"
)

// Repository defines the concurrency-safe contract for tracking session
// progress while simulations run.
type Repository interface {
	// Register adds a session. Registering an existing ID resets it.
	Register(id SessionID, run Run)

	// Observe applies a controller trace to its session. Traces of unknown
	// sessions register them with an empty Run.
	Observe(tr client.Trace)

	// Finish marks a session ended and attaches its summary.
	Finish(id SessionID, s report.Summary) error

	// Get returns a copy of the session.
	Get(id SessionID) (SessionState, error)

	// List returns copies of all sessions in registration order.
	List() []SessionState

	// ActiveCount returns the number of sessions that are not ended.
	ActiveCount() int
}

// ErrNotFound is returned for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// InMemoryRepository is a concurrency-safe implementation of Repository.
// Counters are kept outside the lock so scrapes never wait on a busy
// simulation.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store

	active *atomic.Int64
	traces *atomic.Uint64
}

// NewInMemoryRepository constructs a repository with an in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository over store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{
		store:  store,
		active: atomic.NewInt64(0),
		traces: atomic.NewUint64(0),
	}
}

// Register implements Repository.Register.
func (r *InMemoryRepository) Register(id SessionID, run Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(id, run)
}

// Observe implements Repository.Observe.
func (r *InMemoryRepository) Observe(tr client.Trace) {
	r.traces.Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := SessionID(tr.Session)
	st, ok := r.store.GetSession(id)
	if !ok {
		st = r.registerLocked(id, Run{})
	}
	if st.Ended {
		return
	}

	st.State = tr.State.String()
	st.Viewpoint = tr.Viewpoint
	st.Buffer = float64(tr.Buffer) / 1e6
	st.UpdatedAt = time.Now().UTC()

	switch tr.Type {
	case client.TraceSendRequest:
		st.Requests++
		if tr.Upgrade {
			st.Upgrades++
		}
	case client.TraceDownloaded:
		st.Bytes += tr.Bytes
	case client.TraceStartPlayback:
		st.Segment = tr.Segment
		st.Quality = tr.Quality
	case client.TraceBufferUnderrun:
		st.Underruns++
	case client.TraceViewpointSwitch:
		st.Switches++
	case client.TraceTerminated:
		r.endLocked(st)
	}
}

// Finish implements Repository.Finish.
func (r *InMemoryRepository) Finish(id SessionID, s report.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.store.GetSession(id)
	if !ok {
		return errors.Wrap(ErrNotFound, string(id))
	}
	r.endLocked(st)
	st.Summary = &s
	st.UpdatedAt = time.Now().UTC()
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id SessionID) (SessionState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.store.GetSession(id)
	if !ok {
		return SessionState{}, errors.Wrap(ErrNotFound, string(id))
	}
	return *st, nil
}

// List implements Repository.List.
func (r *InMemoryRepository) List() []SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.ListSessionIDs()
	out := make([]SessionState, 0, len(ids))
	for _, id := range ids {
		if st, ok := r.store.GetSession(id); ok {
			out = append(out, *st)
		}
	}
	return out
}

// ActiveCount implements Repository.ActiveCount.
func (r *InMemoryRepository) ActiveCount() int {
	return int(r.active.Load())
}

// TraceCount returns the number of traces observed.
func (r *InMemoryRepository) TraceCount() uint64 {
	return r.traces.Load()
}

// registerLocked creates or resets a session. Caller must hold r.mu in
// write mode.
func (r *InMemoryRepository) registerLocked(id SessionID, run Run) *SessionState {
	if old, ok := r.store.GetSession(id); ok && !old.Ended {
		r.active.Dec()
	}
	st := &SessionState{ID: id, Run: run, Quality: -1, UpdatedAt: time.Now().UTC()}
	r.store.SetSession(st)
	r.active.Inc()
	return st
}

// endLocked marks st ended once. Caller must hold r.mu in write mode.
func (r *InMemoryRepository) endLocked(st *SessionState) {
	if st.Ended {
		return
	}
	st.Ended = true
	r.active.Dec()
}
