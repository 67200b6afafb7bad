package pattern

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/terms"
)

// Compile builds a pattern from textual templates.
// Variables start with ?, other values are terms in SPARQL notation.
// When a term is not in the dictionary, no statement may match: it returns false
func Compile(templates [][3]string, dictionary *terms.Dictionary) (*Pattern, bool, error) {
	result := NewPattern()
	known := true
	for _, values := range templates {
		var nodes [3]Node
		for position, value := range values {
			value = strings.TrimSpace(value)
			if strings.HasPrefix(value, VARIABLE_PREFIX) {
				if len(value) == len(VARIABLE_PREFIX) {
					return nil, false, errors.Wrap(ErrInvalidPattern, "unnamed variable")
				}

				nodes[position] = result.Variable(value)
				continue
			}

			term, err := terms.Parse(value)
			if err != nil {
				return nil, false, errors.Wrap(ErrInvalidPattern, err.Error())
			}

			if id, found := dictionary.Lookup(term); found {
				nodes[position] = TermNode(id)
			} else {
				known = false
				// any non zero id keeps the pattern valid, it is not evaluated anyway
				nodes[position] = TermNode(^terms.TermID(0))
			}
		}

		if err := result.Add(nodes[0], nodes[1], nodes[2]); err != nil {
			return nil, false, err
		}
	}

	if len(templates) == 0 {
		return nil, false, errors.Wrap(ErrInvalidPattern, "no template")
	}

	return result, known, nil
}
