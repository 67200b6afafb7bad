package serving

import (
	"encoding/json"
	"io"
	"net/http"
)

// upsertUserHandler receives a POST containing a login and password and creates or updates that user
func upsertUserHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	creator, found := wrapper.CurrentUser()
	if !found {
		return NewServiceUnauthorizedError("no current user")
	} else if wrapper.Users == nil {
		return NewServiceUnavailableError("no user store")
	}

	payload, errPayload := io.ReadAll(r.Body)
	if errPayload != nil {
		return NewServiceUnprocessableEntityError(errPayload.Error())
	}

	var user UserInformationInput
	if err := json.Unmarshal(payload, &user); err != nil {
		return NewServiceUnprocessableEntityError(err.Error())
	} else if user.Username == "" || user.Password == "" {
		return NewServiceHttpClientError("expecting username and password")
	}

	if err := wrapper.Users.UpsertUser(wrapper.Ctx, creator, user.Username, user.Password); err != nil {
		return BuildApiErrorFromStorageError(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
