package storage

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
)

// loadTermsRows reads (id, value) rows into dictionary, in id order
func loadTermsRows(rows pgx.Rows, dictionary *terms.Dictionary) error {
	var globalErr error
	for rows.Next() {
		var id int64
		var value string
		if err := rows.Scan(&id, &value); err != nil {
			return errors.Join(globalErr, err)
		}

		term, errParse := terms.Parse(value)
		if errParse != nil {
			globalErr = errors.Join(globalErr, errParse)
			continue
		}

		// a gap in ids makes any next load fail
		if err := dictionary.Load(terms.TermID(id), term); err != nil {
			return errors.Join(globalErr, err)
		}
	}

	return errors.Join(globalErr, rows.Err())
}

// loadStatementsRows reads (context, subject, predicate, object, validity) rows
func loadStatementsRows(rows pgx.Rows) (map[contexts.Name][]store.Candidate, error) {
	result := make(map[contexts.Name][]store.Candidate)
	var globalErr error
	for rows.Next() {
		var rawContext string
		var subject, predicate, object int64
		var rawValidity []byte
		if err := rows.Scan(&rawContext, &subject, &predicate, &object, &rawValidity); err != nil {
			globalErr = errors.Join(globalErr, err)
			continue
		}

		name, errName := contexts.Parse(rawContext)
		if errName != nil {
			globalErr = errors.Join(globalErr, errName)
			continue
		}

		var dto WindowDTO
		if err := json.Unmarshal(rawValidity, &dto); err != nil {
			globalErr = errors.Join(globalErr, err)
			continue
		}

		value, errValue := DeserializeWindow(dto, nil)
		if errValue != nil {
			globalErr = errors.Join(globalErr, errValue)
			continue
		} else if value.IsEmpty() {
			globalErr = errors.Join(globalErr, errors.Newf("empty validity in %s", rawContext))
			continue
		}

		result[name] = append(result[name], store.Candidate{
			Statement: store.Statement{
				Subject:   terms.TermID(subject),
				Predicate: terms.TermID(predicate),
				Object:    terms.TermID(object),
			},
			Validity: value,
		})
	}

	return result, errors.Join(globalErr, rows.Err())
}
