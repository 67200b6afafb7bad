package continuous

import (
	"cmp"
	"context"
	"maps"
	"regexp"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/validity"
)

// queryNames are the accepted names of registered queries
var queryNames = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Query is a pattern evaluated again after each commit changing one of its contexts
type Query struct {
	Name      string
	Templates [][3]string
	// Binding sets variables, values are terms in SPARQL notation
	Binding  map[string]string
	Contexts []contexts.Name
	// Window restricts matches, an empty window means everywhere and always
	Window validity.Set
	// Descendants reads the descendants of contexts too
	Descendants bool
}

// ResultSet is the result of an evaluation at a revision
type ResultSet struct {
	Revision revisions.ID
	Found    bool
	Matches  []pattern.Match
	// Pattern names the variables of matches
	Pattern *pattern.Pattern
}

// Listener receives each new result set of a handle
type Listener func(handle *Handle, result ResultSet)

// Handle is a registered query and its last result sets
type Handle struct {
	query    Query
	listener Listener
	history  int
	// mutex protects the fields below
	mutex   sync.RWMutex
	first   revisions.ID
	last    revisions.ID
	results []ResultSet
}

// Query returns the registered query
func (h *Handle) Query() Query {
	return h.query
}

// FirstEvaluation returns the revision of the first evaluation
func (h *Handle) FirstEvaluation() revisions.ID {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.first
}

// LastEvaluation returns the revision of the last evaluation
func (h *Handle) LastEvaluation() revisions.ID {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.last
}

// ResultSetFor returns the result set valid at revision id: the last one evaluated at or before id.
// It returns false when id is before the oldest kept result set
func (h *Handle) ResultSetFor(id revisions.ID) (ResultSet, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	index, found := slices.BinarySearchFunc(h.results, id, func(result ResultSet, id revisions.ID) int {
		return cmp.Compare(result.Revision, id)
	})

	if found {
		return h.results[index], true
	} else if index == 0 {
		return ResultSet{}, false
	}

	return h.results[index-1], true
}

// Latest returns the result set of the last evaluation
func (h *Handle) Latest() (ResultSet, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if len(h.results) == 0 {
		return ResultSet{}, false
	}

	return h.results[len(h.results)-1], true
}

// reads returns true if the query reads a context of changed
func (h *Handle) reads(changed []contexts.Name) bool {
	for _, name := range changed {
		for _, read := range h.query.Contexts {
			if name == read || (h.query.Descendants && name.IsDescendantOf(read)) {
				return true
			}
		}
	}

	return false
}

// add keeps result in revision order, and drops the oldest ones over history.
// It returns false for an already known revision
func (h *Handle) add(result ResultSet) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	index, found := slices.BinarySearchFunc(h.results, result.Revision, func(current ResultSet, id revisions.ID) int {
		return cmp.Compare(current.Revision, id)
	})

	if found {
		return false
	}

	h.results = slices.Insert(h.results, index, result)
	if extra := len(h.results) - h.history; extra > 0 {
		h.results = slices.Delete(h.results, 0, extra)
	}

	if h.first == 0 || result.Revision < h.first {
		h.first = result.Revision
	}

	if result.Revision > h.last {
		h.last = result.Revision
	}

	return true
}

// Register adds a query and evaluates it at head. Listener may be nil
func (e *Engine) Register(ctx context.Context, query Query, listener Listener) (*Handle, error) {
	if !queryNames.MatchString(query.Name) {
		return nil, errors.Wrapf(ErrInvalidQuery, "invalid name %q", query.Name)
	} else if len(query.Contexts) == 0 {
		return nil, errors.Wrap(ErrInvalidQuery, "no context")
	}

	for _, name := range query.Contexts {
		if name.IsZero() {
			return nil, errors.Wrap(ErrInvalidQuery, "zero context")
		}
	}

	if _, _, err := e.compile(query); err != nil {
		return nil, err
	}

	if query.Window.IsEmpty() {
		query.Window = validity.OmnipresentSet()
	}

	query.Binding = maps.Clone(query.Binding)
	query.Contexts = slices.Clone(query.Contexts)
	handle := &Handle{query: query, listener: listener, history: e.history}

	e.mutex.Lock()
	if _, found := e.queries[query.Name]; found {
		e.mutex.Unlock()
		return nil, errors.Wrapf(ErrQueryExists, "query %s", query.Name)
	}

	e.queries[query.Name] = handle
	e.mutex.Unlock()

	if err := e.evaluate(ctx, handle, e.manager.Head()); err != nil {
		e.mutex.Lock()
		delete(e.queries, query.Name)
		e.mutex.Unlock()
		return nil, err
	}

	e.logger.Infow("query registered", "name", query.Name, "revision", handle.FirstEvaluation())
	return handle, nil
}

// Unregister removes a query. Its handle keeps its result sets
func (e *Engine) Unregister(name string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if _, found := e.queries[name]; !found {
		return errors.Wrapf(ErrUnknownQuery, "query %s", name)
	}

	delete(e.queries, name)
	e.logger.Infow("query unregistered", "name", name)
	return nil
}

// Query returns the handle of a registered query
func (e *Engine) Query(name string) (*Handle, bool) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	handle, found := e.queries[name]
	return handle, found
}

// Queries returns the handles of registered queries, by name
func (e *Engine) Queries() []*Handle {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	result := make([]*Handle, 0, len(e.queries))
	for _, name := range slices.Sorted(maps.Keys(e.queries)) {
		result = append(result, e.queries[name])
	}

	return result
}

// compile returns the pattern and binding of query against the current dictionary.
// Binding is nil when a term is unknown, nothing may match then
func (e *Engine) compile(query Query) (*pattern.Pattern, pattern.Binding, error) {
	dictionary := e.manager.Dictionary()
	p, known, err := pattern.Compile(query.Templates, dictionary)
	if err != nil {
		return nil, nil, errors.Mark(err, ErrInvalidQuery)
	}

	values, knownValues, errValues := resolveBinding(query.Binding, dictionary)
	if errValues != nil {
		return nil, nil, errors.Mark(errValues, ErrInvalidQuery)
	}

	binding, errBind := p.Bind(values)
	if errBind != nil {
		return nil, nil, errors.Mark(errBind, ErrInvalidQuery)
	} else if !known || !knownValues {
		return p, nil, nil
	}

	return p, binding, nil
}

// evaluate evaluates the query of handle at revision and keeps the result set
func (e *Engine) evaluate(ctx context.Context, handle *Handle, revision *store.Revision) error {
	query := handle.query
	p, binding, err := e.compile(query)
	if err != nil {
		e.failed(QUERY_REFRESH)
		e.logger.Errorw("query evaluation failed", "name", query.Name, "revision", revision.ID(), "error", err)
		return err
	}

	result := ResultSet{Revision: revision.ID(), Pattern: p}
	// nil binding: a term is unknown, nothing matches
	if binding != nil {
		evaluator := e.evaluator.WithOptions(pattern.Options{IncludeDescendants: query.Descendants})
		found, err := evaluator.Evaluate(ctx, p, binding, query.Contexts, query.Window, revision,
			func(values pattern.Binding, window validity.Set) bool {
				result.Matches = append(result.Matches, pattern.Match{Binding: values, Window: window})
				return true
			})

		if err != nil {
			e.failed(QUERY_REFRESH)
			e.logger.Errorw("query evaluation failed", "name", query.Name, "revision", revision.ID(), "error", err)
			return err
		}

		result.Found = found
	}

	e.refreshed(QUERY_REFRESH)
	if !handle.add(result) {
		return nil
	}

	e.logger.Debugw("query evaluated", "name", query.Name, "revision", revision.ID(), "count", len(result.Matches))
	if handle.listener != nil {
		handle.listener(handle, result)
	}

	return nil
}
