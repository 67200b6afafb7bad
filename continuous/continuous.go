package continuous

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/metrics"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"go.uber.org/zap"
)

// DEFAULT_HISTORY is the number of result sets kept per registered query
const DEFAULT_HISTORY = 64

const (
	SITUATION_REFRESH = "situation"
	QUERY_REFRESH     = "query"
)

var (
	// ErrInvalidDefinition is returned for situation definitions that cannot be evaluated
	ErrInvalidDefinition = errors.New("invalid situation definition")
	// ErrUnknownSituation is returned when a context has no situation definition
	ErrUnknownSituation = errors.New("unknown situation")
	// ErrInvalidQuery is returned for queries that cannot be registered
	ErrInvalidQuery = errors.New("invalid query")
	// ErrQueryExists is returned when registering a name twice
	ErrQueryExists = errors.New("query already registered")
	// ErrUnknownQuery is returned for names with no registered query
	ErrUnknownQuery = errors.New("unknown query")
)

// Options are the settings of an engine. Only Manager is mandatory
type Options struct {
	Manager *store.Manager
	// Evaluator defaults to an evaluator on Manager
	Evaluator *pattern.Evaluator
	Logger    *zap.SugaredLogger
	Metrics   metrics.Store
	// History is the number of result sets a query keeps, DEFAULT_HISTORY if not positive
	History int
}

// Engine keeps situation definitions and registered queries up to date with the store.
// It is called after each commit of the manager
type Engine struct {
	manager   *store.Manager
	evaluator *pattern.Evaluator
	logger    *zap.SugaredLogger
	metrics   metrics.Store
	history   int
	closed    atomic.Bool
	// mutex protects both maps, never held during an evaluation or a commit
	mutex      sync.RWMutex
	situations map[contexts.Name]*situation
	queries    map[string]*Handle
}

// NewEngine returns an engine observing the commits of options.Manager
func NewEngine(options Options) *Engine {
	if options.Logger == nil {
		options.Logger = zap.NewNop().Sugar()
	}

	if options.Evaluator == nil {
		options.Evaluator = pattern.NewEvaluator(options.Manager, options.Logger, options.Metrics)
	}

	if options.History <= 0 {
		options.History = DEFAULT_HISTORY
	}

	engine := &Engine{
		manager:    options.Manager,
		evaluator:  options.Evaluator,
		logger:     options.Logger,
		metrics:    options.Metrics,
		history:    options.History,
		situations: make(map[contexts.Name]*situation),
		queries:    make(map[string]*Handle),
	}

	options.Manager.Observe(engine.onCommit)
	return engine
}

// Close stops refreshes. Outputs of situations stay in the store
func (e *Engine) Close() {
	e.closed.Store(true)
}

// onCommit refreshes queries reading a changed context, then situations reading one.
// Changes of reserved contexts refresh queries only, so situations never feed each other
func (e *Engine) onCommit(ctx context.Context, revision *store.Revision, changed []contexts.Name) {
	if e.closed.Load() || len(changed) == 0 {
		return
	}

	e.mutex.RLock()
	handles := make([]*Handle, 0, len(e.queries))
	for _, handle := range e.queries {
		handles = append(handles, handle)
	}

	situations := make([]*situation, 0, len(e.situations))
	for _, current := range e.situations {
		situations = append(situations, current)
	}

	e.mutex.RUnlock()

	for _, handle := range handles {
		if handle.reads(changed) {
			e.evaluate(ctx, handle, revision)
		}
	}

	// outputs are written while their situation is locked
	userChanges := slices.DeleteFunc(slices.Clone(changed), contexts.Name.IsReserved)
	if len(userChanges) == 0 {
		return
	}

	for _, current := range situations {
		if current.reads(userChanges) {
			if err := e.refresh(ctx, current); err != nil {
				e.logger.Errorw("situation refresh failed", "context", current.definition.Context, "revision", revision.ID(), "error", err)
			}
		}
	}
}

// failed counts a failed refresh of that kind
func (e *Engine) failed(kind string) {
	if e.metrics != nil {
		e.metrics.IncFailures(kind)
	}
}

// refreshed counts a refresh of that kind
func (e *Engine) refreshed(kind string) {
	if e.metrics != nil {
		e.metrics.IncRefreshes(kind)
	}
}

// resolveBinding returns ids of values, and false if a term is not in the dictionary
func resolveBinding(values map[string]string, dictionary *terms.Dictionary) (map[string]terms.TermID, bool, error) {
	result := make(map[string]terms.TermID, len(values))
	known := true
	for name, raw := range values {
		term, err := terms.Parse(raw)
		if err != nil {
			return nil, false, err
		} else if id, found := dictionary.Lookup(term); found {
			result[name] = id
		} else {
			known = false
			result[name] = ^terms.TermID(0)
		}
	}

	return result, known, nil
}
