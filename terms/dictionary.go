package terms

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// TermID is the store-local identity of a term. 0 is not a valid id
type TermID uint64

// Dictionary interns terms into ids, and resolves ids back.
// It is safe for concurrent use
type Dictionary struct {
	// mutex protects both fields
	mutex sync.RWMutex
	// ids links the term to its id
	ids map[Term]TermID
	// terms contains term with id i at index i - 1
	terms []Term
}

// NewDictionary returns an empty dictionary
func NewDictionary() *Dictionary {
	return &Dictionary{ids: make(map[Term]TermID)}
}

// Intern returns the id of the term, creating it if needed
func (d *Dictionary) Intern(term Term) (TermID, error) {
	if d == nil {
		return 0, errors.New("nil dictionary")
	} else if term.IsZero() {
		return 0, errors.Wrap(ErrInvalidTerm, "zero term")
	}

	d.mutex.RLock()
	id, found := d.ids[term]
	d.mutex.RUnlock()
	if found {
		return id, nil
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	// another writer may have added it meanwhile
	if id, found := d.ids[term]; found {
		return id, nil
	}

	d.terms = append(d.terms, term)
	id = TermID(len(d.terms))
	d.ids[term] = id
	return id, nil
}

// Lookup returns the id of the term, if any. It never creates an id
func (d *Dictionary) Lookup(term Term) (TermID, bool) {
	if d == nil {
		return 0, false
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()
	id, found := d.ids[term]
	return id, found
}

// Resolve returns the term for that id, if any
func (d *Dictionary) Resolve(id TermID) (Term, bool) {
	if d == nil || id == 0 {
		return Term{}, false
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if int(id) > len(d.terms) {
		return Term{}, false
	}

	return d.terms[id-1], true
}

// Len returns the number of terms in the dictionary
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.terms)
}

// Since returns the terms with an id strictly greater than id, in id order.
// It is used to persist new terms only
func (d *Dictionary) Since(id TermID) []Term {
	if d == nil {
		return nil
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if int(id) >= len(d.terms) {
		return nil
	}

	result := make([]Term, len(d.terms)-int(id))
	copy(result, d.terms[id:])
	return result
}

// Load adds terms with known ids, for instance read from a database.
// Ids should follow the current content with no gap
func (d *Dictionary) Load(id TermID, term Term) error {
	if d == nil {
		return errors.New("nil dictionary")
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	switch {
	case int(id) <= len(d.terms) && id != 0 && d.terms[id-1] == term:
		return nil
	case int(id) != len(d.terms)+1:
		return errors.Newf("unexpected term id %d, expecting %d", id, len(d.terms)+1)
	case term.IsZero():
		return errors.Wrap(ErrInvalidTerm, "zero term")
	}

	if existing, found := d.ids[term]; found {
		return errors.Newf("term %s already has id %d", term, existing)
	}

	d.terms = append(d.terms, term)
	d.ids[term] = id
	return nil
}
