package serving

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/storage"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

// PatternEvaluationInput is a pattern to evaluate.
// No window means everywhere and always, revision 0 means head
type PatternEvaluationInput struct {
	Templates   [][3]string        `json:"templates"`
	Binding     map[string]string  `json:"binding,omitempty"`
	Contexts    []string           `json:"contexts"`
	Window      *storage.WindowDTO `json:"window,omitempty"`
	Revision    uint64             `json:"revision,omitempty"`
	Descendants bool               `json:"descendants,omitempty"`
	// Exists stops at first match and returns no match
	Exists bool `json:"exists,omitempty"`
	// Limit is the max number of matches, 0 for no limit
	Limit int `json:"limit,omitempty"`
	// Render is cells, wkt or geojson, cells if empty
	Render string `json:"render,omitempty"`
}

// PatternEvaluationResponse is the result of an evaluation
type PatternEvaluationResponse struct {
	Revision uint64             `json:"revision"`
	Found    bool               `json:"found"`
	Matches  []storage.MatchDTO `json:"matches"`
}

// evaluatePatternHandler evaluates a pattern at a revision and writes its matches
func evaluatePatternHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Manager == nil || wrapper.Evaluator == nil {
		return NewServiceUnavailableError("no store")
	}

	var input PatternEvaluationInput
	if body, errBody := io.ReadAll(r.Body); errBody != nil {
		return NewServiceUnprocessableEntityError(errBody.Error())
	} else if err := json.Unmarshal(body, &input); err != nil {
		return NewServiceUnprocessableEntityError(err.Error())
	} else if input.Limit < 0 {
		return NewServiceHttpClientError("negative limit")
	} else if err := storage.ValidateRender(input.Render); err != nil {
		return BuildApiErrorFromStoreError(err)
	}

	names, errNames := parseContexts(input.Contexts)
	if errNames != nil {
		return errNames
	}

	revision, errRevision := findRevision(wrapper, strconv.FormatUint(input.Revision, 10))
	if errRevision != nil {
		return errRevision
	}

	window := validity.OmnipresentSet()
	if input.Window != nil {
		var err error
		if window, err = storage.DeserializeWindow(*input.Window, wrapper.Coverer); err != nil {
			return BuildApiErrorFromStoreError(err)
		}
	}

	dictionary := wrapper.Manager.Dictionary()
	p, known, errCompile := pattern.Compile(input.Templates, dictionary)
	if errCompile != nil {
		return BuildApiErrorFromStoreError(errCompile)
	}

	values := make(map[string]terms.TermID, len(input.Binding))
	for name, raw := range input.Binding {
		term, err := terms.Parse(raw)
		if err != nil {
			return BuildApiErrorFromStoreError(err)
		} else if id, found := dictionary.Lookup(term); found {
			values[name] = id
		} else {
			known = false
			values[name] = ^terms.TermID(0)
		}
	}

	binding, errBind := p.Bind(values)
	if errBind != nil {
		return BuildApiErrorFromStoreError(errBind)
	}

	result := PatternEvaluationResponse{Revision: uint64(revision.ID()), Matches: make([]storage.MatchDTO, 0)}
	// an unknown term matches nothing
	if !known {
		json.NewEncoder(w).Encode(result)
		return nil
	}

	var handler pattern.Handler
	var errRender error
	if !input.Exists {
		handler = func(values pattern.Binding, window validity.Set) bool {
			match, err := storage.SerializeMatchAs(pattern.Match{Binding: values, Window: window}, p, dictionary, input.Render)
			if err != nil {
				errRender = err
				return false
			}

			result.Matches = append(result.Matches, match)
			return input.Limit == 0 || len(result.Matches) < input.Limit
		}
	}

	evaluator := wrapper.Evaluator.WithOptions(pattern.Options{IncludeDescendants: input.Descendants})
	found, err := evaluator.Evaluate(wrapper.Ctx, p, binding, names, window, revision, handler)
	if err != nil {
		return BuildApiErrorFromStoreError(err)
	} else if errRender != nil {
		return NewServiceInternalServerError(errRender.Error())
	}

	result.Found = found
	json.NewEncoder(w).Encode(result)
	return nil
}
