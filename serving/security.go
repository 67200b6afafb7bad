package serving

import (
	"encoding/json"
	"io"
	"net/http"
)

// UserInformationInput is input for /token endpoint
type UserInformationInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// checkUserAndGenerateTokenHandler reads user data, and, if authentication matches, returns a token for this user
func checkUserAndGenerateTokenHandler(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error {
	defer r.Body.Close()

	if wrapper.Users == nil {
		return NewServiceUnavailableError("no user store")
	}

	var userInput UserInformationInput
	if body, errBody := io.ReadAll(r.Body); errBody != nil {
		return NewServiceUnprocessableEntityError(errBody.Error())
	} else if err := json.Unmarshal(body, &userInput); err != nil {
		return NewServiceUnprocessableEntityError(err.Error())
	} else if found, err := wrapper.Users.CheckUser(wrapper.Ctx, userInput.Username, userInput.Password); err != nil {
		return BuildApiErrorFromStorageError(err)
	} else if !found {
		return NewServiceForbiddenError("invalid user")
	}

	// generate token
	var newToken string
	if secret, errLoad := wrapper.Users.FindSecretForActiveUser(wrapper.Ctx, userInput.Username); errLoad != nil {
		return BuildApiErrorFromStorageError(errLoad)
	} else if token, err := createToken(userInput.Username, secret); err != nil {
		return NewServiceInternalServerError(err.Error())
	} else {
		newToken = token
	}

	result := map[string]string{"token": newToken, "duration": TokenDuration.String()}
	json.NewEncoder(w).Encode(result)
	return nil
}
