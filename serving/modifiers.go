package serving

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/storage"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/validity"
)

// ContextModificationInput is the input to change a context.
// No window means everywhere and always, no from (resp. to) means -oo (resp. +oo)
type ContextModificationInput struct {
	Context    string                 `json:"context"`
	Statements []storage.StatementDTO `json:"statements,omitempty"`
	Window     *storage.WindowDTO     `json:"window,omitempty"`
	From       string                 `json:"from,omitempty"`
	To         string                 `json:"to,omitempty"`
}

// parsedModification is the content of a ContextModificationInput once deserialized
type parsedModification struct {
	context    contexts.Name
	statements []store.Statement
	window     validity.Set
	from       validity.Bound
	to         validity.Bound
}

// readModification reads and deserializes request body
func readModification(wrapper ServiceParameters, r *http.Request) (parsedModification, error) {
	var result parsedModification
	if wrapper.Manager == nil {
		return result, NewServiceUnavailableError("no store")
	}

	var input ContextModificationInput
	if body, errBody := io.ReadAll(r.Body); errBody != nil {
		return result, NewServiceUnprocessableEntityError(errBody.Error())
	} else if err := json.Unmarshal(body, &input); err != nil {
		return result, NewServiceUnprocessableEntityError(err.Error())
	}

	var err error
	if result.context, err = contexts.Parse(input.Context); err != nil {
		return result, BuildApiErrorFromStoreError(err)
	} else if result.statements, err = storage.DeserializeStatements(input.Statements, wrapper.Manager.Dictionary()); err != nil {
		return result, BuildApiErrorFromStoreError(err)
	}

	result.window = validity.OmnipresentSet()
	if input.Window != nil {
		if result.window, err = storage.DeserializeWindow(*input.Window, wrapper.Coverer); err != nil {
			return result, BuildApiErrorFromStoreError(err)
		}
	}

	result.from, result.to = validity.Past(), validity.Future()
	if input.From != "" {
		if result.from, err = validity.ParseBound(input.From); err != nil {
			return result, BuildApiErrorFromStoreError(err)
		}
	}

	if input.To != "" {
		if result.to, err = validity.ParseBound(input.To); err != nil {
			return result, BuildApiErrorFromStoreError(err)
		}
	}

	return result, nil
}

// applyAndWrite queues operation for the store writer and writes the new revision
func applyAndWrite(wrapper ServiceParameters, w http.ResponseWriter, operation store.Operation) error {
	var outcome store.Result
	select {
	case outcome = <-wrapper.Manager.Submit(wrapper.Ctx, operation):
	case <-wrapper.Ctx.Done():
		return BuildApiErrorFromStoreError(wrapper.Ctx.Err())
	}

	if outcome.Err != nil {
		return BuildApiErrorFromStoreError(outcome.Err)
	}

	json.NewEncoder(w).Encode(storage.SerializeRevision(outcome.Revision))
	return nil
}

// updateContextHandler sets statements of a context during [from, to)
func updateContextHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	input, err := readModification(wrapper, r)
	if err != nil {
		return err
	}

	return applyAndWrite(wrapper, w, store.Update{
		Context:    input.context,
		Statements: input.statements,
		Window:     input.window,
		From:       input.from,
		To:         input.to,
	})
}

// insertIntoContextHandler adds statements to a context, keeping the other ones
func insertIntoContextHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	input, err := readModification(wrapper, r)
	if err != nil {
		return err
	} else if len(input.statements) == 0 {
		return NewServiceHttpClientError("expecting statements")
	}

	return applyAndWrite(wrapper, w, store.NewInsert(input.context, input.window, input.statements...))
}

// clearContextHandler removes any statement of a context during [from, to)
func clearContextHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	input, err := readModification(wrapper, r)
	if err != nil {
		return err
	} else if len(input.statements) != 0 {
		return NewServiceHttpClientError("clear expects no statement")
	}

	return applyAndWrite(wrapper, w, store.Clear{
		Context: input.context,
		From:    input.from,
		To:      input.to,
	})
}
