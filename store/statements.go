package store

import (
	"cmp"
	"fmt"

	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

// Statement is a triple of term ids
type Statement struct {
	Subject   terms.TermID
	Predicate terms.TermID
	Object    terms.TermID
}

// IsValid returns true if no position is zero
func (s Statement) IsValid() bool {
	return s.Subject != 0 && s.Predicate != 0 && s.Object != 0
}

// Compare is the lexicographic order on subject, predicate, object
func (s Statement) Compare(other Statement) int {
	if result := cmp.Compare(s.Subject, other.Subject); result != 0 {
		return result
	} else if result := cmp.Compare(s.Predicate, other.Predicate); result != 0 {
		return result
	}

	return cmp.Compare(s.Object, other.Object)
}

// String returns the ids of the statement
func (s Statement) String() string {
	return fmt.Sprintf("(%d %d %d)", s.Subject, s.Predicate, s.Object)
}

// Template selects statements: a zero position matches any term
type Template struct {
	Subject   terms.TermID
	Predicate terms.TermID
	Object    terms.TermID
}

// Matches returns true if statement has the same terms on bound positions
func (t Template) Matches(s Statement) bool {
	return (t.Subject == 0 || t.Subject == s.Subject) &&
		(t.Predicate == 0 || t.Predicate == s.Predicate) &&
		(t.Object == 0 || t.Object == s.Object)
}

// Candidate is a stored statement and its validity
type Candidate struct {
	Statement Statement
	Validity  validity.Set
}

// entry is the content of the statements index
type entry struct {
	statement Statement
	validity  validity.Set
}

func entryLess(a, b entry) bool {
	return a.statement.Compare(b.statement) < 0
}
