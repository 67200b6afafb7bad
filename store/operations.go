package store

import (
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/validity"
)

// ErrReservedContext is returned when users write into system managed contexts
var ErrReservedContext = errors.New("reserved context")

// ErrInvalidOperation is returned for operations that cannot apply
var ErrInvalidOperation = errors.New("invalid operation")

const (
	UPDATE_OPERATION = "update"
	INSERT_OPERATION = "insert"
	CLEAR_OPERATION  = "clear"
)

// Operation changes the content of a context
type Operation interface {
	// Target is the changed context
	Target() contexts.Name
	// Kind is the name of the operation, for logs and metrics
	Kind() string
	// validate returns an error if the operation cannot apply
	validate() error
	// applyTo changes the content of the builder
	applyTo(b *builder)
}

// Update clears [From, To) in the context, then sets statements valid within Window during [From, To).
// Statements already valid keep their validity outside [From, To)
type Update struct {
	Context    contexts.Name
	Statements []Statement
	Window     validity.Set
	From       validity.Bound
	To         validity.Bound
	// System allows writes into reserved contexts
	System bool
}

// NewUpdate returns an update on all times
func NewUpdate(context contexts.Name, window validity.Set, statements ...Statement) Update {
	return Update{
		Context:    context,
		Statements: statements,
		Window:     window,
		From:       validity.Past(),
		To:         validity.Future(),
	}
}

// Clear removes validity of all statements of the context during [From, To)
type Clear struct {
	Context contexts.Name
	From    validity.Bound
	To      validity.Bound
	// System allows writes into reserved contexts
	System bool
}

// NewClear returns a clear on all times
func NewClear(context contexts.Name) Clear {
	return Clear{Context: context, From: validity.Past(), To: validity.Future()}
}

func (u Update) Target() contexts.Name {
	return u.Context
}

func (u Update) Kind() string {
	return UPDATE_OPERATION
}

func (u Update) validate() error {
	if err := checkTarget(u.Context, u.System, u.From, u.To); err != nil {
		return err
	}

	for _, statement := range u.Statements {
		if !statement.IsValid() {
			return errors.Wrapf(ErrInvalidOperation, "statement %s has a zero term", statement)
		}
	}

	return nil
}

func (u Update) applyTo(b *builder) {
	window := u.Window.RestrictToInterval(u.From, u.To)
	if window.IsEmpty() && !b.exists(u.Context) {
		return
	}

	content := b.writable(u.Context)
	clearInterval(content, u.From, u.To)
	if window.IsEmpty() {
		return
	}

	for _, statement := range u.Statements {
		key := entry{statement: statement, validity: window}
		if existing, found := content.tree.Get(key); found {
			key.validity = existing.validity.Union(window)
		}

		content.tree.ReplaceOrInsert(key)
	}
}

// Insert adds window to the validity of statements in the context, other statements are unchanged
type Insert struct {
	Context    contexts.Name
	Statements []Statement
	Window     validity.Set
	// System allows writes into reserved contexts
	System bool
}

// NewInsert returns an insert of statements valid within window
func NewInsert(context contexts.Name, window validity.Set, statements ...Statement) Insert {
	return Insert{Context: context, Statements: statements, Window: window}
}

func (i Insert) Target() contexts.Name {
	return i.Context
}

func (i Insert) Kind() string {
	return INSERT_OPERATION
}

func (i Insert) validate() error {
	if err := checkTarget(i.Context, i.System, validity.Past(), validity.Future()); err != nil {
		return err
	}

	for _, statement := range i.Statements {
		if !statement.IsValid() {
			return errors.Wrapf(ErrInvalidOperation, "statement %s has a zero term", statement)
		}
	}

	return nil
}

func (i Insert) applyTo(b *builder) {
	if i.Window.IsEmpty() || len(i.Statements) == 0 {
		return
	}

	content := b.writable(i.Context)
	for _, statement := range i.Statements {
		key := entry{statement: statement, validity: i.Window}
		if existing, found := content.tree.Get(key); found {
			key.validity = existing.validity.Union(i.Window)
		}

		content.tree.ReplaceOrInsert(key)
	}
}

func (c Clear) Target() contexts.Name {
	return c.Context
}

func (c Clear) Kind() string {
	return CLEAR_OPERATION
}

func (c Clear) validate() error {
	return checkTarget(c.Context, c.System, c.From, c.To)
}

func (c Clear) applyTo(b *builder) {
	if !b.exists(c.Context) {
		return
	}

	clearInterval(b.writable(c.Context), c.From, c.To)
}

// checkTarget returns an error for a missing context, a user write into a reserved context, or an invalid interval
func checkTarget(context contexts.Name, system bool, from, to validity.Bound) error {
	switch {
	case context.IsZero():
		return errors.Wrap(ErrInvalidOperation, "missing context")
	case context.IsReserved() && !system:
		return errors.Wrapf(ErrReservedContext, "cannot write into %s", context)
	case !from.Before(to):
		return errors.Wrapf(validity.ErrMalformedInterval, "[%s, %s) is empty", from, to)
	}

	return nil
}

// clearInterval removes [from, to) from each validity of the index
func clearInterval(content *index, from, to validity.Bound) {
	if from.IsPast() && to.IsFuture() {
		content.tree.Clear(false)
		return
	}

	var changes []entry
	content.tree.Ascend(func(value entry) bool {
		changes = append(changes, entry{
			statement: value.statement,
			validity:  value.validity.MaskOutInterval(from, to),
		})

		return true
	})

	for _, change := range changes {
		if change.validity.IsEmpty() {
			content.tree.Delete(change)
		} else {
			content.tree.ReplaceOrInsert(change)
		}
	}
}

// builder makes the next state from a base state.
// Contexts are cloned once, on first write
type builder struct {
	contents map[contexts.Name]*index
	changed  map[contexts.Name]bool
}

func newBuilder(base *State) *builder {
	result := &builder{changed: make(map[contexts.Name]bool)}
	if base == nil {
		result.contents = make(map[contexts.Name]*index)
	} else {
		result.contents = maps.Clone(base.contents)
	}

	return result
}

func (b *builder) exists(name contexts.Name) bool {
	_, found := b.contents[name]
	return found
}

func (b *builder) writable(name contexts.Name) *index {
	if b.changed[name] {
		return b.contents[name]
	}

	result := newIndex()
	if existing, found := b.contents[name]; found {
		result = existing.clone()
	}

	b.contents[name] = result
	b.changed[name] = true
	return result
}

// build returns the new state and the changed contexts
func (b *builder) build() (*State, []contexts.Name) {
	var changed []contexts.Name
	for name := range b.changed {
		changed = append(changed, name)
		if b.contents[name].tree.Len() == 0 {
			delete(b.contents, name)
		}
	}

	slices.SortFunc(changed, func(a, c contexts.Name) int {
		return strings.Compare(a.String(), c.String())
	})

	return &State{contents: b.contents}, changed
}

// apply returns the state after operations, and the changed contexts
func (s *State) apply(operations []Operation) (*State, []contexts.Name) {
	b := newBuilder(s)
	for _, operation := range operations {
		operation.applyTo(b)
	}

	return b.build()
}
