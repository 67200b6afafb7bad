package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/metrics"
	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/terms"
	"go.uber.org/zap"
)

// ErrStoreUnavailable is returned when a collaborator of the store failed
var ErrStoreUnavailable = errors.New("store unavailable")

// DEFAULT_MAX_RETRIES is the number of retries after a revision conflict
const DEFAULT_MAX_RETRIES = 5

// Revision is a committed state of the store
type Revision = revisions.Revision[*State]

// Commit is what a persister receives for each new revision
type Commit struct {
	Revision    revisions.ID
	Predecessor revisions.ID
	Timestamp   time.Time
	State       *State
	// Changed are the contexts that differ from the predecessor
	Changed []contexts.Name
	// Terms are the terms created since last commit, first one has FirstTermID
	FirstTermID terms.TermID
	Terms       []terms.Term
}

// Persister saves revisions. An error aborts the commit
type Persister interface {
	SaveCommit(ctx context.Context, commit Commit) error
}

// Options configures a manager. Zero values get defaults
type Options struct {
	// MaxRetries is the number of retries after a conflict, negative means none
	MaxRetries int
	// QueueSize is the capacity of the submit queue
	QueueSize int
	Logger    *zap.SugaredLogger
	Metrics   metrics.Store
	Persister Persister
	// Dictionary contains the terms of the statements, a new one if nil
	Dictionary *terms.Dictionary
	// Timeline is a restored timeline, a new one with an empty state if nil
	Timeline *revisions.Timeline[*State]
	// SavedTerms is the last term id already persisted
	SavedTerms terms.TermID
	Clock      func() time.Time
}

// CommitObserver is called after each commit with the contexts it changed.
// Observers run in the committing goroutine, once the revision is the head
type CommitObserver func(ctx context.Context, revision *Revision, changed []contexts.Name)

// Result is the outcome of a submitted request
type Result struct {
	Revision *Revision
	Err      error
}

type request struct {
	ctx        context.Context
	operations []Operation
	result     chan Result
}

// Manager holds the timeline and applies operations on it.
// There is no global manager: build one per process and pass it around
type Manager struct {
	timeline   *revisions.Timeline[*State]
	dictionary *terms.Dictionary
	logger     *zap.SugaredLogger
	metrics    metrics.Store
	persister  Persister
	maxRetries int
	clock      func() time.Time

	// commitMutex serializes persistence and append of revisions
	commitMutex sync.Mutex
	// savedTerms is the last persisted term id, guarded by commitMutex
	savedTerms terms.TermID

	// observersMutex guards observers
	observersMutex sync.RWMutex
	observers      []CommitObserver

	// queueMutex guards closed and sends to requests
	queueMutex sync.RWMutex
	closed     bool
	requests   chan request
	stopped    chan struct{}
}

// NewManager builds a manager and starts its writer goroutine
func NewManager(options Options) *Manager {
	manager := &Manager{
		timeline:   options.Timeline,
		dictionary: options.Dictionary,
		logger:     options.Logger,
		metrics:    options.Metrics,
		persister:  options.Persister,
		maxRetries: options.MaxRetries,
		clock:      options.Clock,
		savedTerms: options.SavedTerms,
		stopped:    make(chan struct{}),
	}

	if manager.logger == nil {
		manager.logger = zap.NewNop().Sugar()
	}

	if manager.metrics == nil {
		manager.metrics = metrics.NewMetricsStore()
	}

	if manager.dictionary == nil {
		manager.dictionary = terms.NewDictionary()
	}

	if manager.clock == nil {
		manager.clock = time.Now
	}

	if manager.timeline == nil {
		manager.timeline = revisions.NewTimelineWithClock(NewState(), manager.clock)
	}

	if manager.maxRetries == 0 {
		manager.maxRetries = DEFAULT_MAX_RETRIES
	} else if manager.maxRetries < 0 {
		manager.maxRetries = 0
	}

	queueSize := options.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	manager.requests = make(chan request, queueSize)
	manager.metrics.SetHeadRevision(uint64(manager.timeline.Head().ID()))
	go manager.run()
	return manager
}

// Dictionary returns the terms dictionary of the store
func (m *Manager) Dictionary() *terms.Dictionary {
	return m.dictionary
}

// Timeline returns the revisions of the store
func (m *Manager) Timeline() *revisions.Timeline[*State] {
	return m.timeline
}

// Head returns the current revision. It never blocks
func (m *Manager) Head() *Revision {
	return m.timeline.Head()
}

// Revision returns the revision with that id, if any
func (m *Manager) Revision(id revisions.ID) (*Revision, bool) {
	return m.timeline.Get(id)
}

// Apply commits operations as a single new revision.
// On a revision conflict, it recomputes against the new head up to max retries
func (m *Manager) Apply(ctx context.Context, operations ...Operation) (*Revision, error) {
	start := time.Now()
	for _, operation := range operations {
		if err := operation.validate(); err != nil {
			m.metrics.IncFailures(operation.Kind())
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		head := m.timeline.Head()
		next, changed := head.Content().apply(operations)
		revision, err := m.commit(ctx, head, next, changed)
		if err == nil {
			m.metrics.IncCommits(len(operations))
			m.metrics.SetHeadRevision(uint64(revision.ID()))
			m.logger.Infow("revision committed",
				"revision", revision.ID(),
				"count", len(operations),
				"context", changed,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			m.notify(ctx, revision, changed)
			return revision, nil
		} else if !errors.Is(err, revisions.ErrRevisionConflict) {
			m.metrics.IncFailures("commit")
			m.logger.Errorw("commit failed", "revision", head.ID(), "error", err)
			return nil, err
		}

		m.metrics.IncConflicts()
		if attempt >= m.maxRetries {
			m.logger.Warnw("giving up after conflicts", "revision", head.ID(), "count", attempt+1)
			return nil, err
		}

		m.logger.Debugw("retrying after conflict", "revision", head.ID(), "count", attempt+1)
	}
}

// Observe adds observer to the ones called after each commit
func (m *Manager) Observe(observer CommitObserver) {
	if observer == nil {
		return
	}

	m.observersMutex.Lock()
	defer m.observersMutex.Unlock()
	m.observers = append(m.observers, observer)
}

// notify calls observers in registration order.
// Revision is committed, so observers are not cancelled with the request
func (m *Manager) notify(ctx context.Context, revision *Revision, changed []contexts.Name) {
	m.observersMutex.RLock()
	observers := slices.Clone(m.observers)
	m.observersMutex.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, observer := range observers {
		observer(detached, revision, slices.Clone(changed))
	}
}

// commit persists and appends next state after head, if head is still the head
func (m *Manager) commit(ctx context.Context, head *Revision, next *State, changed []contexts.Name) (*Revision, error) {
	m.commitMutex.Lock()
	defer m.commitMutex.Unlock()

	if m.timeline.Head() != head {
		return nil, errors.Wrapf(revisions.ErrRevisionConflict, "revision %d is not the head", head.ID())
	}

	// storage keeps microseconds
	timestamp := m.clock().UTC().Truncate(time.Microsecond)
	if timestamp.Before(head.Timestamp()) {
		timestamp = head.Timestamp()
	}

	var created []terms.Term
	if m.persister != nil {
		created = m.dictionary.Since(m.savedTerms)
		commit := Commit{
			Revision:    head.ID() + 1,
			Predecessor: head.ID(),
			Timestamp:   timestamp,
			State:       next,
			Changed:     changed,
			FirstTermID: m.savedTerms + 1,
			Terms:       created,
		}

		if err := m.persister.SaveCommit(ctx, commit); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "cannot persist revision %d", commit.Revision), ErrStoreUnavailable)
		}
	}

	revision, err := m.timeline.AppendAt(head, next, timestamp)
	if err != nil {
		return nil, err
	}

	m.savedTerms += terms.TermID(len(created))
	return revision, nil
}

// Submit queues operations for the writer goroutine.
// Returned channel receives exactly one result
func (m *Manager) Submit(ctx context.Context, operations ...Operation) <-chan Result {
	result := make(chan Result, 1)

	m.queueMutex.RLock()
	defer m.queueMutex.RUnlock()
	if m.closed {
		result <- Result{Err: errors.Wrap(ErrStoreUnavailable, "manager is closed")}
		return result
	}

	select {
	case m.requests <- request{ctx: ctx, operations: operations, result: result}:
	case <-ctx.Done():
		result <- Result{Err: ctx.Err()}
	}

	return result
}

// run applies submitted requests one at a time, until close
func (m *Manager) run() {
	defer close(m.stopped)
	for current := range m.requests {
		revision, err := m.Apply(current.ctx, current.operations...)
		current.result <- Result{Revision: revision, Err: err}
	}
}

// Close stops accepting requests, and waits for queued ones to complete
func (m *Manager) Close() {
	m.queueMutex.Lock()
	if !m.closed {
		m.closed = true
		close(m.requests)
	}

	m.queueMutex.Unlock()
	<-m.stopped
}

// LookupOptions changes lookup scope
type LookupOptions struct {
	// IncludeDescendants adds the stored descendants of each context
	IncludeDescendants bool
}

// Lookup returns the statements matching template at that revision in the contexts.
// A nil revision means the head
func (m *Manager) Lookup(ctx context.Context, names []contexts.Name, template Template, revision *Revision, options LookupOptions) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if revision == nil {
		revision = m.timeline.Head()
	} else if stored, found := m.timeline.Get(revision.ID()); !found || stored != revision {
		return nil, errors.Wrapf(ErrStoreUnavailable, "revision %d is not in this store", revision.ID())
	}

	return revision.Content().Lookup(names, template, options.IncludeDescendants), nil
}
