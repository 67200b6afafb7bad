package pattern

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/terms"
)

// ErrInconsistentBinding is returned when a binding does not fit the variables of a pattern
var ErrInconsistentBinding = errors.New("inconsistent binding")

// ErrInvalidPattern is returned for patterns with no template or invalid nodes
var ErrInvalidPattern = errors.New("invalid pattern")

// VARIABLE_PREFIX starts variables in textual templates
const VARIABLE_PREFIX = "?"

// VariableID identifies a variable within its pattern, starting at 1
type VariableID uint32

// Variable is a named variable of a pattern
type Variable struct {
	ID   VariableID
	Name string
}

// Node is a template position: either a variable or a term
type Node struct {
	variable VariableID
	term     terms.TermID
}

// IsVariable returns true for variables
func (n Node) IsVariable() bool {
	return n.variable != 0
}

// Variable returns the variable id of the node, 0 for terms
func (n Node) Variable() VariableID {
	return n.variable
}

// Term returns the term id of the node, 0 for variables
func (n Node) Term() terms.TermID {
	return n.term
}

// TermNode returns a node for a known term
func TermNode(id terms.TermID) Node {
	return Node{term: id}
}

// Template is a triple of nodes
type Template struct {
	Subject   Node
	Predicate Node
	Object    Node
}

// Nodes returns subject, predicate and object
func (t Template) Nodes() [3]Node {
	return [3]Node{t.Subject, t.Predicate, t.Object}
}

// Binding maps variables to term ids
type Binding map[VariableID]terms.TermID

// Pattern is a set of templates sharing variables
type Pattern struct {
	// variables contains names, variable i+1 at index i
	variables []string
	templates []Template
}

// NewPattern returns an empty pattern
func NewPattern() *Pattern {
	return &Pattern{}
}

// Variable returns the node for variable name, declaring it on first use
func (p *Pattern) Variable(name string) Node {
	if p == nil {
		return Node{}
	}

	name = strings.TrimPrefix(name, VARIABLE_PREFIX)
	if index := slices.Index(p.variables, name); index >= 0 {
		return Node{variable: VariableID(index + 1)}
	}

	p.variables = append(p.variables, name)
	return Node{variable: VariableID(len(p.variables))}
}

// Add appends a template to the pattern
func (p *Pattern) Add(subject, predicate, object Node) error {
	if p == nil {
		return errors.New("nil pattern")
	}

	template := Template{Subject: subject, Predicate: predicate, Object: object}
	for _, node := range template.Nodes() {
		if node.variable == 0 && node.term == 0 {
			return errors.Wrap(ErrInvalidPattern, "zero node")
		} else if int(node.variable) > len(p.variables) {
			return errors.Wrapf(ErrInvalidPattern, "undeclared variable %d", node.variable)
		}
	}

	p.templates = append(p.templates, template)
	return nil
}

// Templates returns a copy of the templates, in declaration order
func (p *Pattern) Templates() []Template {
	if p == nil {
		return nil
	}

	return slices.Clone(p.templates)
}

// Variables returns the variables of the pattern, by id
func (p *Pattern) Variables() []Variable {
	if p == nil {
		return nil
	}

	result := make([]Variable, 0, len(p.variables))
	for index, name := range p.variables {
		result = append(result, Variable{ID: VariableID(index + 1), Name: name})
	}

	return result
}

// Lookup returns the id of a variable by name
func (p *Pattern) Lookup(name string) (VariableID, bool) {
	if p == nil {
		return 0, false
	}

	index := slices.Index(p.variables, strings.TrimPrefix(name, VARIABLE_PREFIX))
	if index < 0 {
		return 0, false
	}

	return VariableID(index + 1), true
}

// Name returns the name of a variable
func (p *Pattern) Name(id VariableID) (string, bool) {
	if p == nil || id == 0 || int(id) > len(p.variables) {
		return "", false
	}

	return p.variables[id-1], true
}

// Bind builds a binding from variable names
func (p *Pattern) Bind(values map[string]terms.TermID) (Binding, error) {
	result := make(Binding, len(values))
	for name, value := range values {
		id, found := p.Lookup(name)
		if !found {
			return nil, errors.Wrapf(ErrInconsistentBinding, "unknown variable %s", name)
		}

		result[id] = value
	}

	return result, p.check(result)
}

// used returns true if a template contains variable
func (p *Pattern) used(variable VariableID) bool {
	for _, template := range p.templates {
		for _, node := range template.Nodes() {
			if node.variable == variable {
				return true
			}
		}
	}

	return false
}

// check returns an error if binding references unknown or unused variables, or zero terms
func (p *Pattern) check(binding Binding) error {
	if p == nil || len(p.templates) == 0 {
		return errors.Wrap(ErrInvalidPattern, "no template")
	}

	for variable, value := range binding {
		if variable == 0 || int(variable) > len(p.variables) {
			return errors.Wrapf(ErrInconsistentBinding, "unknown variable %d", variable)
		} else if !p.used(variable) {
			return errors.Wrapf(ErrInconsistentBinding, "variable %s is in no template", p.variables[variable-1])
		} else if value == 0 {
			return errors.Wrapf(ErrInconsistentBinding, "zero term for variable %s", p.variables[variable-1])
		}
	}

	return nil
}

// String returns the templates with variables names
func (p *Pattern) String() string {
	if p == nil {
		return "{}"
	}

	var builder strings.Builder
	builder.WriteString("{")
	for index, template := range p.templates {
		if index != 0 {
			builder.WriteString(" . ")
		}

		for position, node := range template.Nodes() {
			if position != 0 {
				builder.WriteString(" ")
			}

			if node.IsVariable() {
				builder.WriteString(VARIABLE_PREFIX + p.variables[node.variable-1])
			} else {
				builder.WriteString(fmt.Sprintf("#%d", node.term))
			}
		}
	}

	builder.WriteString("}")
	return builder.String()
}

// Names returns the binding with variables names
func (b Binding) Names(p *Pattern) map[string]terms.TermID {
	result := make(map[string]terms.TermID, len(b))
	for _, id := range slices.Sorted(maps.Keys(b)) {
		if name, found := p.Name(id); found {
			result[name] = b[id]
		}
	}

	return result
}
