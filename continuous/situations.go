package continuous

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

// SITUATIONS_SEGMENT is the sub context receiving the statements of a situation definition
const SITUATIONS_SEGMENT = contexts.RESERVED_MARKER + "situations"

// Definition is a construct query attached to a context.
// Each match of Where instantiates Construct, valid within the window of the match.
// Instances are written into the #situations sub context of Context
type Definition struct {
	Context contexts.Name
	// Sources are the contexts Where reads, Context if empty. Reserved contexts are not sources
	Sources []contexts.Name
	Where   [][3]string
	// Construct uses variables of Where, terms and _:label blank nodes. Where if empty
	Construct [][3]string
	// Window restricts matches, an empty window means everywhere and always
	Window validity.Set
}

// Status is a definition and the last refresh of its output
type Status struct {
	Definition Definition
	Output     contexts.Name
	// Evaluated is the revision of the last evaluation
	Evaluated revisions.ID
	// Written is the revision of the last change of the output
	Written revisions.ID
	// Satisfied is true when Where had a match at the last evaluation
	Satisfied  bool
	Statements int
}

// constructNode is a position of a construct template: a variable, a blank node label or a term
type constructNode struct {
	variable string
	blank    string
	term     terms.Term
}

// situation is the state of a context definition. A context keeps its situation once defined
type situation struct {
	mutex      sync.Mutex
	defined    bool
	definition Definition
	output     contexts.Name
	construct  [][3]constructNode
	evaluated  revisions.ID
	written    revisions.ID
	satisfied  bool
	statements int
}

// reads returns true if a defined situation reads a context of changed
func (s *situation) reads(changed []contexts.Name) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.defined {
		return false
	}

	for _, name := range changed {
		if slices.Contains(s.definition.Sources, name) {
			return true
		}
	}

	return false
}

func (s *situation) status() Status {
	return Status{
		Definition: s.definition,
		Output:     s.output,
		Evaluated:  s.evaluated,
		Written:    s.written,
		Satisfied:  s.satisfied,
		Statements: s.statements,
	}
}

// normalize sets defaults of definition and checks it
func normalize(definition Definition, dictionary *terms.Dictionary) (Definition, [][3]constructNode, error) {
	if definition.Context.IsZero() {
		return definition, nil, errors.Wrap(ErrInvalidDefinition, "missing context")
	} else if definition.Context.IsReserved() {
		return definition, nil, errors.Wrapf(ErrInvalidDefinition, "%s is reserved", definition.Context)
	}

	if len(definition.Sources) == 0 {
		definition.Sources = []contexts.Name{definition.Context}
	}

	for _, source := range definition.Sources {
		if source.IsZero() || source.IsReserved() {
			return definition, nil, errors.Wrapf(ErrInvalidDefinition, "invalid source %s", source)
		}
	}

	if definition.Window.IsEmpty() {
		definition.Window = validity.OmnipresentSet()
	}

	where, _, err := pattern.Compile(definition.Where, dictionary)
	if err != nil {
		return definition, nil, errors.Mark(errors.Wrap(err, "invalid where clause"), ErrInvalidDefinition)
	}

	if len(definition.Construct) == 0 {
		definition.Construct = definition.Where
	}

	construct := make([][3]constructNode, 0, len(definition.Construct))
	for _, template := range definition.Construct {
		var nodes [3]constructNode
		for position, raw := range template {
			value := strings.TrimSpace(raw)
			switch {
			case strings.HasPrefix(value, pattern.VARIABLE_PREFIX):
				if _, found := where.Lookup(value); !found {
					return definition, nil, errors.Wrapf(ErrInvalidDefinition, "variable %s is not in where clause", value)
				}

				nodes[position].variable = strings.TrimPrefix(value, pattern.VARIABLE_PREFIX)
			default:
				term, err := terms.Parse(value)
				if err != nil {
					return definition, nil, errors.Mark(errors.Wrap(err, "invalid construct clause"), ErrInvalidDefinition)
				} else if term.Kind() == terms.KindBlankNode {
					nodes[position].blank = term.Value()
				} else {
					nodes[position].term = term
				}
			}
		}

		construct = append(construct, nodes)
	}

	return definition, construct, nil
}

// Define sets the situation definition of a context, and writes its output at once
func (e *Engine) Define(ctx context.Context, definition Definition) (Status, error) {
	definition, construct, err := normalize(definition, e.manager.Dictionary())
	if err != nil {
		return Status{}, err
	}

	output, errOutput := definition.Context.Child(SITUATIONS_SEGMENT)
	if errOutput != nil {
		return Status{}, errors.Mark(errOutput, ErrInvalidDefinition)
	}

	e.mutex.Lock()
	current, found := e.situations[definition.Context]
	if !found {
		current = &situation{}
		e.situations[definition.Context] = current
	}

	e.mutex.Unlock()

	current.mutex.Lock()
	defer current.mutex.Unlock()
	current.defined = true
	current.definition = definition
	current.output = output
	current.construct = construct
	if err := e.write(ctx, current); err != nil {
		return current.status(), err
	}

	e.logger.Infow("situation defined", "context", definition.Context, "revision", current.evaluated, "count", current.statements)
	return current.status(), nil
}

// Remove removes the definition of a context and clears its output
func (e *Engine) Remove(ctx context.Context, name contexts.Name) error {
	e.mutex.RLock()
	current, found := e.situations[name]
	e.mutex.RUnlock()
	if !found {
		return errors.Wrapf(ErrUnknownSituation, "no situation for %s", name)
	}

	current.mutex.Lock()
	defer current.mutex.Unlock()
	if !current.defined {
		return errors.Wrapf(ErrUnknownSituation, "no situation for %s", name)
	}

	current.defined = false
	if e.manager.Head().Content().Len(current.output) == 0 {
		return nil
	}

	clearing := store.NewClear(current.output)
	clearing.System = true
	if _, err := e.manager.Apply(ctx, clearing); err != nil {
		return err
	}

	e.logger.Infow("situation removed", "context", name)
	return nil
}

// Situation returns the status of the situation of a context
func (e *Engine) Situation(name contexts.Name) (Status, bool) {
	e.mutex.RLock()
	current, found := e.situations[name]
	e.mutex.RUnlock()
	if !found {
		return Status{}, false
	}

	current.mutex.Lock()
	defer current.mutex.Unlock()
	return current.status(), current.defined
}

// Situations returns the status of each defined situation, by context
func (e *Engine) Situations() []Status {
	e.mutex.RLock()
	names := slices.Collect(maps.Keys(e.situations))
	e.mutex.RUnlock()

	slices.SortFunc(names, func(a, b contexts.Name) int {
		return strings.Compare(a.String(), b.String())
	})

	result := make([]Status, 0, len(names))
	for _, name := range names {
		if status, found := e.Situation(name); found {
			result = append(result, status)
		}
	}

	return result
}

// refresh evaluates a situation again and writes its output if it changed
func (e *Engine) refresh(ctx context.Context, current *situation) error {
	current.mutex.Lock()
	defer current.mutex.Unlock()
	if !current.defined {
		return nil
	}

	return e.write(ctx, current)
}

// write evaluates the definition at head and replaces the output when it differs.
// Caller holds the situation mutex
func (e *Engine) write(ctx context.Context, current *situation) error {
	head := e.manager.Head()
	dictionary := e.manager.Dictionary()
	definition := current.definition

	where, known, err := pattern.Compile(definition.Where, dictionary)
	if err != nil {
		e.failed(SITUATION_REFRESH)
		return errors.Mark(err, ErrInvalidDefinition)
	}

	desired := make(map[store.Statement]validity.Set)
	satisfied := false
	var errConstruct error
	// an unknown term in where matches nothing
	if known {
		satisfied, err = e.evaluator.Evaluate(ctx, where, nil, definition.Sources, definition.Window, head,
			func(binding pattern.Binding, window validity.Set) bool {
				statements, err := instantiate(current, where, binding, dictionary)
				if err != nil {
					errConstruct = err
					return false
				}

				for _, statement := range statements {
					if existing, found := desired[statement]; found {
						desired[statement] = existing.Union(window)
					} else {
						desired[statement] = window
					}
				}

				return true
			})
	}

	if err == nil {
		err = errConstruct
	}

	if err != nil {
		e.failed(SITUATION_REFRESH)
		return err
	}

	e.refreshed(SITUATION_REFRESH)
	current.evaluated = head.ID()
	current.satisfied = satisfied
	current.statements = len(desired)
	if sameContent(head.Content(), current.output, desired) {
		return nil
	}

	clearing := store.NewClear(current.output)
	clearing.System = true
	operations := []store.Operation{clearing}
	for _, statement := range slices.SortedFunc(maps.Keys(desired), store.Statement.Compare) {
		insert := store.NewInsert(current.output, desired[statement], statement)
		insert.System = true
		operations = append(operations, insert)
	}

	revision, errApply := e.manager.Apply(ctx, operations...)
	if errApply != nil {
		e.failed(SITUATION_REFRESH)
		return errApply
	}

	current.written = revision.ID()
	e.logger.Debugw("situation written",
		"context", definition.Context,
		"revision", revision.ID(),
		"count", len(desired),
	)

	return nil
}

// sameContent returns true if the context holds exactly the desired statements and validities
func sameContent(state *store.State, output contexts.Name, desired map[store.Statement]validity.Set) bool {
	if state.Len(output) != len(desired) {
		return false
	}

	same := true
	state.Scan(output, store.Template{}, func(statement store.Statement, value validity.Set) bool {
		expected, found := desired[statement]
		same = found && expected.Equal(value)
		return same
	})

	return same
}

// instantiate returns the construct statements for a match.
// A blank node label gives the same node for the same match and a new one for another match
func instantiate(current *situation, where *pattern.Pattern, binding pattern.Binding, dictionary *terms.Dictionary) ([]store.Statement, error) {
	values := binding.Names(where)
	var key []string
	blank := func(label string) (terms.TermID, error) {
		if key == nil {
			key = []string{current.output.String(), ""}
			for _, name := range slices.Sorted(maps.Keys(values)) {
				term, _ := dictionary.Resolve(values[name])
				key = append(key, name+"="+term.String())
			}
		}

		key[1] = label
		return dictionary.Intern(terms.NewDerivedBlankNode(key...))
	}

	result := make([]store.Statement, 0, len(current.construct))
	for _, template := range current.construct {
		var ids [3]terms.TermID
		for position, node := range template {
			var err error
			switch {
			case node.variable != "":
				ids[position] = values[node.variable]
			case node.blank != "":
				ids[position], err = blank(node.blank)
			default:
				ids[position], err = dictionary.Intern(node.term)
			}

			if err != nil {
				return nil, err
			}
		}

		result = append(result, store.Statement{Subject: ids[0], Predicate: ids[1], Object: ids[2]})
	}

	return result, nil
}
