package serving

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

const TokenDuration = time.Hour * 24

// createToken builds a new token for a given login using its secret
func createToken(userName string, userSecret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{
			"user": userName,
			"exp":  time.Now().Add(TokenDuration).Unix(),
		})

	if token, err := token.SignedString([]byte(userSecret)); err != nil {
		return "", err
	} else {
		return token, nil
	}
}

// userFromToken reads user claim without any check
func userFromToken(tokenValue string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenValue, claims); err != nil {
		return "", errors.Wrap(err, "malformed token")
	}

	login, ok := claims["user"].(string)
	if !ok || login == "" {
		return "", errors.New("no user in token")
	}

	return login, nil
}

// validateAuthentication reads header and then test if login matches its expected secret.
// Result is login coming from request, true for auth success, the detailed error otherwise
func validateAuthentication(wrapper ServiceParameters, r *http.Request) (string, bool, error) {
	// header should contain Authorization: Bearer <token>
	if r == nil {
		return "", false, errors.New("empty request")
	} else if wrapper.Users == nil {
		return "", false, errors.New("no user store")
	}

	var header string
	if values, found := r.Header["Authorization"]; !found {
		return "", false, nil
	} else if len(values) != 1 {
		return "", false, nil
	} else {
		header = strings.Trim(values[0], " ")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", false, nil
	}

	tokenValue := strings.Trim(header[7:], " ")
	login, errLogin := userFromToken(tokenValue)
	if errLogin != nil {
		return "", false, errLogin
	}

	var secret string
	if s, err := wrapper.Users.FindSecretForActiveUser(wrapper.Ctx, login); err != nil {
		return "", false, err
	} else {
		secret = s
	}

	// details on why are here: https://pkg.go.dev/github.com/golang-jwt/jwt/v5#Keyfunc
	expectedSecretFunc := func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	token, err := jwt.Parse(tokenValue, expectedSecretFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil && token.Valid:
		return login, true, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return login, false, errors.New("malformed token")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return login, false, errors.New("invalid signature")
	case errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet):
		return login, false, errors.New("invalid token period")
	case err != nil:
		return login, false, err
	default:
		return login, false, errors.New("invalid token")
	}
}
