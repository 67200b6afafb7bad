package serving

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/periods"
	"github.com/zefrenchwan/txl.git/storage"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
)

// LookupInput selects statements in contexts.
// Empty or variable positions in template match any term
type LookupInput struct {
	Contexts    []string  `json:"contexts"`
	Template    [3]string `json:"template"`
	Revision    uint64    `json:"revision,omitempty"`
	Descendants bool      `json:"descendants,omitempty"`
	// During keeps statements valid at some moment of the period, one value per interval
	During []string `json:"during,omitempty"`
	// Render is cells, wkt or geojson, cells if empty
	Render string `json:"render,omitempty"`
}

// CandidateDTO is a statement, its validity and the moments it holds
type CandidateDTO struct {
	Statement storage.StatementDTO `json:"statement"`
	Window    storage.WindowDTO    `json:"window"`
	Domain    []string             `json:"domain"`
}

// LookupResponse is the result of a lookup at a given revision
type LookupResponse struct {
	Revision   uint64         `json:"revision"`
	Candidates []CandidateDTO `json:"candidates"`
}

// parseContexts reads context names
func parseContexts(values []string) ([]contexts.Name, error) {
	result := make([]contexts.Name, 0, len(values))
	for _, value := range values {
		name, err := contexts.Parse(value)
		if err != nil {
			return nil, BuildApiErrorFromStoreError(err)
		}

		result = append(result, name)
	}

	return result, nil
}

// lookupStatementsHandler writes statements matching a template in contexts
func lookupStatementsHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Manager == nil {
		return NewServiceUnavailableError("no store")
	}

	var input LookupInput
	if body, errBody := io.ReadAll(r.Body); errBody != nil {
		return NewServiceUnprocessableEntityError(errBody.Error())
	} else if err := json.Unmarshal(body, &input); err != nil {
		return NewServiceUnprocessableEntityError(err.Error())
	} else if err := storage.ValidateRender(input.Render); err != nil {
		return BuildApiErrorFromStoreError(err)
	}

	var during *periods.Period
	if len(input.During) != 0 {
		period, err := storage.DeserializePeriod(input.During)
		if err != nil {
			return BuildApiErrorFromStoreError(err)
		}

		during = &period
	}

	names, errNames := parseContexts(input.Contexts)
	if errNames != nil {
		return errNames
	}

	revision, errRevision := findRevision(wrapper, strconv.FormatUint(input.Revision, 10))
	if errRevision != nil {
		return errRevision
	}

	result := LookupResponse{Revision: uint64(revision.ID()), Candidates: make([]CandidateDTO, 0)}
	dictionary := wrapper.Manager.Dictionary()
	var ids [3]terms.TermID
	for position, raw := range input.Template {
		if raw == "" || strings.HasPrefix(raw, pattern.VARIABLE_PREFIX) {
			continue
		}

		term, err := terms.Parse(raw)
		if err != nil {
			return BuildApiErrorFromStoreError(err)
		}

		id, found := dictionary.Lookup(term)
		if !found {
			// unknown term matches nothing
			json.NewEncoder(w).Encode(result)
			return nil
		}

		ids[position] = id
	}

	template := store.Template{Subject: ids[0], Predicate: ids[1], Object: ids[2]}
	options := store.LookupOptions{IncludeDescendants: input.Descendants}
	candidates, err := wrapper.Manager.Lookup(wrapper.Ctx, names, template, revision, options)
	if err != nil {
		return BuildApiErrorFromStoreError(err)
	}

	for _, candidate := range candidates {
		domain := candidate.Validity.Domain()
		if during != nil && !domain.Intersects(*during) {
			continue
		}

		window, err := storage.SerializeWindowAs(candidate.Validity, input.Render)
		if err != nil {
			return NewServiceInternalServerError(err.Error())
		}

		result.Candidates = append(result.Candidates, CandidateDTO{
			Statement: storage.SerializeStatement(candidate.Statement, dictionary),
			Window:    window,
			Domain:    storage.SerializePeriod(domain),
		})
	}

	json.NewEncoder(w).Encode(result)
	return nil
}
