package serving

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/storage"
	"github.com/zefrenchwan/txl.git/store"
)

// loadHeadRevisionHandler writes the current revision as json
func loadHeadRevisionHandler(wrapper ServiceParameters, writer http.ResponseWriter, request *http.Request) error {
	defer request.Body.Close()

	if wrapper.Manager == nil {
		return NewServiceUnavailableError("no store")
	}

	json.NewEncoder(writer).Encode(storage.SerializeRevision(wrapper.Manager.Head()))
	return nil
}

// loadRevisionHandler writes the revision with given id as json
func loadRevisionHandler(wrapper ServiceParameters, writer http.ResponseWriter, request *http.Request) error {
	defer request.Body.Close()

	revision, err := findRevision(wrapper, request.PathValue("revisionId"))
	if err != nil {
		return err
	}

	json.NewEncoder(writer).Encode(storage.SerializeRevision(revision))
	return nil
}

// loadRevisionAtMomentHandler writes the last revision committed at or before moment
func loadRevisionAtMomentHandler(wrapper ServiceParameters, writer http.ResponseWriter, request *http.Request) error {
	defer request.Body.Close()

	if wrapper.Manager == nil {
		return NewServiceUnavailableError("no store")
	}

	moment, errMoment := DeserializeTimeFromURL(request.PathValue("moment"))
	if errMoment != nil {
		return NewServiceHttpClientError("invalid date: " + errMoment.Error())
	}

	revision, found := wrapper.Manager.Timeline().At(moment.UTC())
	if !found {
		return NewServiceNotFoundError("no revision at " + moment.Format(URL_DATE_FORMAT))
	}

	json.NewEncoder(writer).Encode(storage.SerializeRevision(revision))
	return nil
}

// findRevision returns the revision for an id as a string, head for an empty or zero value
func findRevision(wrapper ServiceParameters, value string) (*store.Revision, error) {
	if wrapper.Manager == nil {
		return nil, NewServiceUnavailableError("no store")
	} else if value == "" || value == "0" {
		return wrapper.Manager.Head(), nil
	}

	id, errId := strconv.ParseUint(value, 10, 64)
	if errId != nil {
		return nil, NewServiceHttpClientError("invalid revision: " + value)
	}

	revision, found := wrapper.Manager.Revision(revisions.ID(id))
	if !found {
		return nil, NewServiceNotFoundError("no revision " + value)
	}

	return revision, nil
}
