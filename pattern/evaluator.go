package pattern

import (
	"context"
	"iter"
	"maps"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/metrics"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
	"go.uber.org/zap"
)

// Source provides statements to match. store.Manager is a source
type Source interface {
	// Head returns the current revision
	Head() *store.Revision
	// Lookup returns statements matching template in contexts at revision
	Lookup(ctx context.Context, names []contexts.Name, template store.Template, revision *store.Revision, options store.LookupOptions) ([]store.Candidate, error)
}

// Handler receives each match. Returning false stops the evaluation
type Handler func(binding Binding, window validity.Set) bool

// Match is a complete binding and the window it holds in
type Match struct {
	Binding Binding
	Window  validity.Set
}

// Options changes the evaluation scope
type Options struct {
	// IncludeDescendants reads the stored descendants of the contexts too
	IncludeDescendants bool
}

// Evaluator matches patterns against a source
type Evaluator struct {
	source  Source
	logger  *zap.SugaredLogger
	metrics metrics.Store
	options Options
}

// NewEvaluator returns an evaluator on source. Logger and metrics may be nil
func NewEvaluator(source Source, logger *zap.SugaredLogger, metricsStore metrics.Store) *Evaluator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Evaluator{source: source, logger: logger, metrics: metricsStore}
}

// WithOptions returns an evaluator sharing source, logger and metrics, with those options
func (e *Evaluator) WithOptions(options Options) *Evaluator {
	result := *e
	result.options = options
	return &result
}

// evaluation is the state of a running evaluation
type evaluation struct {
	ctx      context.Context
	source   Source
	pattern  *Pattern
	names    []contexts.Name
	revision *store.Revision
	lookup   store.LookupOptions
	handler  Handler
	matches  int
}

// Evaluate calls handler for each binding completing binding, with its non empty window.
// Window of a match is the intersection of window and validity of each matched statement.
// A nil revision means the head, pinned for the whole evaluation.
// It returns true if at least one match was found, a nil handler stops at the first one.
// Source errors stop the evaluation, already delivered matches stay delivered
func (e *Evaluator) Evaluate(ctx context.Context, p *Pattern, binding Binding, names []contexts.Name, window validity.Set, revision *store.Revision, handler Handler) (bool, error) {
	if e == nil || e.source == nil {
		return false, errors.New("nil evaluator")
	} else if err := p.check(binding); err != nil {
		return false, err
	} else if window.IsEmpty() || len(names) == 0 {
		return false, nil
	}

	if revision == nil {
		revision = e.source.Head()
	}

	// no handler: only test if the pattern matches
	if handler == nil {
		handler = func(Binding, validity.Set) bool { return false }
	}

	start := time.Now()
	current := &evaluation{
		ctx:      ctx,
		source:   e.source,
		pattern:  p,
		names:    names,
		revision: revision,
		lookup:   store.LookupOptions{IncludeDescendants: e.options.IncludeDescendants},
		handler:  handler,
	}

	remaining := make([]int, len(p.templates))
	for index := range remaining {
		remaining[index] = index
	}

	initial := make(Binding, len(binding))
	maps.Copy(initial, binding)
	_, err := current.step(remaining, initial, window)
	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.ObserveEvaluation(duration, current.matches)
	}

	if err != nil {
		e.logger.Warnw("evaluation failed", "revision", revision.ID(), "count", current.matches, "error", err)
		return current.matches > 0, err
	}

	e.logger.Debugw("evaluation done",
		"revision", revision.ID(),
		"count", current.matches,
		"duration_ms", duration.Milliseconds(),
	)

	return current.matches > 0, nil
}

// Matches returns matches as a sequence. An error is the last element of the sequence
func (e *Evaluator) Matches(ctx context.Context, p *Pattern, binding Binding, names []contexts.Name, window validity.Set, revision *store.Revision) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		stopped := false
		_, err := e.Evaluate(ctx, p, binding, names, window, revision, func(values Binding, window validity.Set) bool {
			if !yield(Match{Binding: values, Window: window}, nil) {
				stopped = true
			}

			return !stopped
		})

		if err != nil && !stopped {
			yield(Match{}, err)
		}
	}
}

// bound returns the number of positions of template known under binding
func bound(template Template, binding Binding) int {
	result := 0
	for _, node := range template.Nodes() {
		if !node.IsVariable() {
			result++
		} else if _, found := binding[node.variable]; found {
			result++
		}
	}

	return result
}

// next returns the position in remaining of the template to evaluate first.
// It is the one with the most bound positions, first declared on ties
func next(templates []Template, remaining []int, binding Binding) int {
	result, best := 0, -1
	for position, index := range remaining {
		if value := bound(templates[index], binding); value > best {
			result, best = position, value
		}
	}

	return result
}

// query returns the store template of template under binding
func query(template Template, binding Binding) store.Template {
	var values [3]terms.TermID
	for position, node := range template.Nodes() {
		if !node.IsVariable() {
			values[position] = node.term
		} else if value, found := binding[node.variable]; found {
			values[position] = value
		}
	}

	return store.Template{Subject: values[0], Predicate: values[1], Object: values[2]}
}

// extend returns binding with variables of template set from statement.
// It returns false if a variable would get two different terms
func extend(template Template, statement store.Statement, binding Binding) (Binding, bool) {
	result := binding
	copied := false
	values := [3]terms.TermID{statement.Subject, statement.Predicate, statement.Object}
	for position, node := range template.Nodes() {
		if !node.IsVariable() {
			continue
		}

		if existing, found := result[node.variable]; found {
			if existing != values[position] {
				return nil, false
			}

			continue
		}

		if !copied {
			result = make(Binding, len(binding)+len(template.Nodes()))
			maps.Copy(result, binding)
			copied = true
		}

		result[node.variable] = values[position]
	}

	return result, true
}

// step evaluates remaining templates, it returns false when evaluation should stop
func (e *evaluation) step(remaining []int, binding Binding, window validity.Set) (bool, error) {
	if err := e.ctx.Err(); err != nil {
		return false, err
	}

	if len(remaining) == 0 {
		e.matches++
		return e.handler(maps.Clone(binding), window), nil
	}

	position := next(e.pattern.templates, remaining, binding)
	template := e.pattern.templates[remaining[position]]
	others := make([]int, 0, len(remaining)-1)
	others = append(others, remaining[:position]...)
	others = append(others, remaining[position+1:]...)

	candidates, err := e.source.Lookup(e.ctx, e.names, query(template, binding), e.revision, e.lookup)
	if err != nil {
		return false, err
	}

	for _, candidate := range candidates {
		extended, consistent := extend(template, candidate.Statement, binding)
		if !consistent {
			continue
		}

		// prune as soon as the window is empty
		restricted := window.Intersection(candidate.Validity)
		if restricted.IsEmpty() {
			continue
		}

		if goOn, err := e.step(others, extended, restricted); err != nil || !goOn {
			return false, err
		}
	}

	return true, nil
}
