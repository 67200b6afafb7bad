package store

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/validity"
)

// BTREE_DEGREE is the degree of statements indexes
const BTREE_DEGREE = 16

// index is the ordered statements of a context.
// Once part of a committed state, it is never written again
type index struct {
	// mutex guards clone that changes the copy on write context of tree
	mutex sync.Mutex
	tree  *btree.BTreeG[entry]
}

func newIndex() *index {
	return &index{tree: btree.NewG(BTREE_DEGREE, entryLess)}
}

// clone returns a lazy copy of the index, safe to write
func (i *index) clone() *index {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return &index{tree: i.tree.Clone()}
}

// State is the content of the store at a revision: per context, statements and their validity.
// States are immutable: a new revision gets a new state sharing unchanged contexts
type State struct {
	contents map[contexts.Name]*index
}

// NewState returns an empty state
func NewState() *State {
	return &State{contents: make(map[contexts.Name]*index)}
}

// RestoreState builds a state from known contents, for instance loaded from a database.
// Statements with an empty validity are ignored
func RestoreState(contents map[contexts.Name][]Candidate) *State {
	result := NewState()
	for name, candidates := range contents {
		content := newIndex()
		for _, candidate := range candidates {
			if candidate.Validity.IsEmpty() {
				continue
			}

			key := entry{statement: candidate.Statement, validity: candidate.Validity}
			if existing, found := content.tree.Get(key); found {
				key.validity = existing.validity.Union(key.validity)
			}

			content.tree.ReplaceOrInsert(key)
		}

		if content.tree.Len() != 0 {
			result.contents[name] = content
		}
	}

	return result
}

// Contexts returns the non empty contexts, sorted by name
func (s *State) Contexts() []contexts.Name {
	if s == nil {
		return nil
	}

	result := slices.Collect(maps.Keys(s.contents))
	slices.SortFunc(result, func(a, b contexts.Name) int {
		return strings.Compare(a.String(), b.String())
	})

	return result
}

// Len returns the number of statements in the context
func (s *State) Len(name contexts.Name) int {
	if s == nil {
		return 0
	} else if content, found := s.contents[name]; found {
		return content.tree.Len()
	}

	return 0
}

// Get returns the validity of the statement in the context
func (s *State) Get(name contexts.Name, statement Statement) (validity.Set, bool) {
	if s == nil {
		return validity.EmptySet(), false
	}

	content, found := s.contents[name]
	if !found {
		return validity.EmptySet(), false
	}

	value, found := content.tree.Get(entry{statement: statement})
	return value.validity, found
}

// Scan calls fn for each statement of the context matching template, in statements order.
// It stops when fn returns false
func (s *State) Scan(name contexts.Name, template Template, fn func(Statement, validity.Set) bool) {
	if s == nil {
		return
	}

	content, found := s.contents[name]
	if !found {
		return
	}

	iterator := func(value entry) bool {
		if !template.Matches(value.statement) {
			return true
		}

		return fn(value.statement, value.validity)
	}

	// statements are sorted by subject, then predicate, then object.
	// Bound leading positions make a range
	switch {
	case template.Subject == 0:
		content.tree.Ascend(iterator)
	case template.Predicate == 0:
		content.tree.AscendRange(
			entry{statement: Statement{Subject: template.Subject}},
			entry{statement: Statement{Subject: template.Subject + 1}},
			iterator,
		)
	case template.Object == 0:
		content.tree.AscendRange(
			entry{statement: Statement{Subject: template.Subject, Predicate: template.Predicate}},
			entry{statement: Statement{Subject: template.Subject, Predicate: template.Predicate + 1}},
			iterator,
		)
	default:
		statement := Statement(template)
		if value, found := content.tree.Get(entry{statement: statement}); found {
			fn(value.statement, value.validity)
		}
	}
}

// resolve returns the contexts to read: names, and their stored descendants if asked
func (s *State) resolve(names []contexts.Name, includeDescendants bool) []contexts.Name {
	result := make([]contexts.Name, 0, len(names))
	seen := make(map[contexts.Name]bool)
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}

	if !includeDescendants {
		return result
	}

	for _, stored := range s.Contexts() {
		if seen[stored] {
			continue
		}

		for _, name := range names {
			if stored.IsDescendantOf(name) {
				seen[stored] = true
				result = append(result, stored)
				break
			}
		}
	}

	return result
}

// Lookup returns the statements matching template in the contexts, sorted by statement.
// Validity of a statement is the union of its validity in each context
func (s *State) Lookup(names []contexts.Name, template Template, includeDescendants bool) []Candidate {
	if s == nil || len(names) == 0 {
		return nil
	}

	var result []Candidate
	positions := make(map[Statement]int)
	for _, name := range s.resolve(names, includeDescendants) {
		s.Scan(name, template, func(statement Statement, value validity.Set) bool {
			if position, found := positions[statement]; found {
				result[position].Validity = result[position].Validity.Union(value)
			} else {
				positions[statement] = len(result)
				result = append(result, Candidate{Statement: statement, Validity: value})
			}

			return true
		})
	}

	slices.SortFunc(result, func(a, b Candidate) int {
		return a.Statement.Compare(b.Statement)
	})

	return result
}
