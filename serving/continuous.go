package serving

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/zefrenchwan/txl.git/continuous"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/storage"
	"github.com/zefrenchwan/txl.git/validity"
)

// SituationInput defines the situation of a context. No window means everywhere and always
type SituationInput struct {
	Context   string             `json:"context"`
	Sources   []string           `json:"sources,omitempty"`
	Where     [][3]string        `json:"where"`
	Construct [][3]string        `json:"construct,omitempty"`
	Window    *storage.WindowDTO `json:"window,omitempty"`
}

// SituationDTO is a situation definition and its last refresh
type SituationDTO struct {
	Context    string      `json:"context"`
	Sources    []string    `json:"sources"`
	Where      [][3]string `json:"where"`
	Construct  [][3]string `json:"construct"`
	Output     string      `json:"output"`
	Evaluated  uint64      `json:"evaluated"`
	Written    uint64      `json:"written"`
	Satisfied  bool        `json:"satisfied"`
	Statements int         `json:"statements"`
}

// QueryInput registers a query. No window means everywhere and always
type QueryInput struct {
	Name        string             `json:"name"`
	Templates   [][3]string        `json:"templates"`
	Binding     map[string]string  `json:"binding,omitempty"`
	Contexts    []string           `json:"contexts"`
	Window      *storage.WindowDTO `json:"window,omitempty"`
	Descendants bool               `json:"descendants,omitempty"`
}

// QueryDTO is a registered query and its evaluations
type QueryDTO struct {
	Name            string            `json:"name"`
	Templates       [][3]string       `json:"templates"`
	Binding         map[string]string `json:"binding,omitempty"`
	Contexts        []string          `json:"contexts"`
	Descendants     bool              `json:"descendants,omitempty"`
	FirstEvaluation uint64            `json:"first_evaluation"`
	LastEvaluation  uint64            `json:"last_evaluation"`
}

// ResultSetDTO is the result set of a query at a revision
type ResultSetDTO struct {
	Name     string             `json:"name"`
	Revision uint64             `json:"revision"`
	Found    bool               `json:"found"`
	Matches  []storage.MatchDTO `json:"matches"`
}

// NameInput designates a context or a query
type NameInput struct {
	Context string `json:"context,omitempty"`
	Name    string `json:"name,omitempty"`
}

func serializeNames(names []contexts.Name) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		result = append(result, name.String())
	}

	return result
}

func serializeSituation(status continuous.Status) SituationDTO {
	return SituationDTO{
		Context:    status.Definition.Context.String(),
		Sources:    serializeNames(status.Definition.Sources),
		Where:      status.Definition.Where,
		Construct:  status.Definition.Construct,
		Output:     status.Output.String(),
		Evaluated:  uint64(status.Evaluated),
		Written:    uint64(status.Written),
		Satisfied:  status.Satisfied,
		Statements: status.Statements,
	}
}

func serializeQuery(handle *continuous.Handle) QueryDTO {
	query := handle.Query()
	return QueryDTO{
		Name:            query.Name,
		Templates:       query.Templates,
		Binding:         query.Binding,
		Contexts:        serializeNames(query.Contexts),
		Descendants:     query.Descendants,
		FirstEvaluation: uint64(handle.FirstEvaluation()),
		LastEvaluation:  uint64(handle.LastEvaluation()),
	}
}

// readBody decodes the json body of r into value
func readBody(r *http.Request, value any) error {
	if body, errBody := io.ReadAll(r.Body); errBody != nil {
		return NewServiceUnprocessableEntityError(errBody.Error())
	} else if err := json.Unmarshal(body, value); err != nil {
		return NewServiceUnprocessableEntityError(err.Error())
	}

	return nil
}

// readWindow returns the window of the dto, everywhere and always for nil
func readWindow(wrapper ServiceParameters, dto *storage.WindowDTO) (validity.Set, error) {
	if dto == nil {
		return validity.OmnipresentSet(), nil
	}

	window, err := storage.DeserializeWindow(*dto, wrapper.Coverer)
	if err != nil {
		return window, BuildApiErrorFromStoreError(err)
	}

	return window, nil
}

// defineSituationHandler sets the situation definition of a context
func defineSituationHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Continuous == nil {
		return NewServiceUnavailableError("no continuous engine")
	}

	var input SituationInput
	if err := readBody(r, &input); err != nil {
		return err
	}

	definition := continuous.Definition{Where: input.Where, Construct: input.Construct}
	var err error
	if definition.Context, err = contexts.Parse(input.Context); err != nil {
		return BuildApiErrorFromStoreError(err)
	} else if len(input.Sources) != 0 {
		if definition.Sources, err = parseContexts(input.Sources); err != nil {
			return err
		}
	}

	if definition.Window, err = readWindow(wrapper, input.Window); err != nil {
		return err
	}

	status, errDefine := wrapper.Continuous.Define(wrapper.Ctx, definition)
	if errDefine != nil {
		return BuildApiErrorFromStoreError(errDefine)
	}

	json.NewEncoder(w).Encode(serializeSituation(status))
	return nil
}

// removeSituationHandler removes the situation definition of a context and clears its output
func removeSituationHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Continuous == nil {
		return NewServiceUnavailableError("no continuous engine")
	}

	var input NameInput
	if err := readBody(r, &input); err != nil {
		return err
	}

	name, errName := contexts.Parse(input.Context)
	if errName != nil {
		return BuildApiErrorFromStoreError(errName)
	} else if err := wrapper.Continuous.Remove(wrapper.Ctx, name); err != nil {
		return BuildApiErrorFromStoreError(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// listSituationsHandler writes defined situations
func listSituationsHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Continuous == nil {
		return NewServiceUnavailableError("no continuous engine")
	}

	result := make([]SituationDTO, 0)
	for _, status := range wrapper.Continuous.Situations() {
		result = append(result, serializeSituation(status))
	}

	json.NewEncoder(w).Encode(result)
	return nil
}

// registerQueryHandler registers a query and writes it once evaluated
func registerQueryHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Continuous == nil {
		return NewServiceUnavailableError("no continuous engine")
	}

	var input QueryInput
	if err := readBody(r, &input); err != nil {
		return err
	}

	query := continuous.Query{
		Name:        input.Name,
		Templates:   input.Templates,
		Binding:     input.Binding,
		Descendants: input.Descendants,
	}

	var err error
	if query.Contexts, err = parseContexts(input.Contexts); err != nil {
		return err
	} else if query.Window, err = readWindow(wrapper, input.Window); err != nil {
		return err
	}

	handle, errRegister := wrapper.Continuous.Register(wrapper.Ctx, query, nil)
	if errRegister != nil {
		return BuildApiErrorFromStoreError(errRegister)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(serializeQuery(handle))
	return nil
}

// unregisterQueryHandler removes a registered query
func unregisterQueryHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Continuous == nil {
		return NewServiceUnavailableError("no continuous engine")
	}

	var input NameInput
	if err := readBody(r, &input); err != nil {
		return err
	} else if err := wrapper.Continuous.Unregister(input.Name); err != nil {
		return BuildApiErrorFromStoreError(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// listQueriesHandler writes registered queries
func listQueriesHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Continuous == nil {
		return NewServiceUnavailableError("no continuous engine")
	}

	result := make([]QueryDTO, 0)
	for _, handle := range wrapper.Continuous.Queries() {
		result = append(result, serializeQuery(handle))
	}

	json.NewEncoder(w).Encode(result)
	return nil
}

// loadResultSetHandler writes the result set of a query valid at revision, the last one if no revision
func loadResultSetHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Continuous == nil || wrapper.Manager == nil {
		return NewServiceUnavailableError("no continuous engine")
	}

	name := r.PathValue("name")
	handle, found := wrapper.Continuous.Query(name)
	if !found {
		return NewServiceNotFoundError("no query " + name)
	}

	render := r.URL.Query().Get("render")
	if err := storage.ValidateRender(render); err != nil {
		return BuildApiErrorFromStoreError(err)
	}

	var result continuous.ResultSet
	if value := r.URL.Query().Get("revision"); value == "" {
		result, found = handle.Latest()
	} else if id, errId := strconv.ParseUint(value, 10, 64); errId != nil {
		return NewServiceHttpClientError("invalid revision: " + value)
	} else {
		result, found = handle.ResultSetFor(revisions.ID(id))
	}

	if !found {
		return NewServiceNotFoundError("no result set for " + name)
	}

	response := ResultSetDTO{
		Name:     name,
		Revision: uint64(result.Revision),
		Found:    result.Found,
		Matches:  make([]storage.MatchDTO, 0, len(result.Matches)),
	}

	dictionary := wrapper.Manager.Dictionary()
	for _, match := range result.Matches {
		dto, err := storage.SerializeMatchAs(match, result.Pattern, dictionary, render)
		if err != nil {
			return NewServiceInternalServerError(err.Error())
		}

		response.Matches = append(response.Matches, dto)
	}

	json.NewEncoder(w).Encode(response)
	return nil
}
