package serving

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/zefrenchwan/txl.git/continuous"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/metrics"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/store"
	"go.uber.org/zap"
)

const (
	// Expected date format
	URL_DATE_FORMAT = "2006-01-02T15:04:05"
	// REQUEST_ID_HEADER contains the id of the request in each response
	REQUEST_ID_HEADER = "X-Request-Id"
)

// DeserializeTimeFromURL returns either a parsed time, or an error
func DeserializeTimeFromURL(value string) (time.Time, error) {
	var result time.Time
	if len(URL_DATE_FORMAT) != len(value) {
		return result, errors.Newf("invalid input, expecting %s", URL_DATE_FORMAT)
	}

	return time.Parse(URL_DATE_FORMAT, value)
}

// RequestContextKey is key type for context keys when using specific info (such as current user)
type RequestContextKey string

// UserStore checks users and their secrets. storage.Dao is an user store
type UserStore interface {
	CheckUser(ctx context.Context, login, password string) (bool, error)
	FindSecretForActiveUser(ctx context.Context, login string) (string, error)
	UpsertUser(ctx context.Context, creator, login, password string) error
}

// InitService returns a new valid servemux to launch
func InitService(parameters ServiceParameters) *http.ServeMux {
	mux := http.NewServeMux()
	if parameters.Logger == nil {
		parameters.Logger = zap.NewNop().Sugar()
	}

	if parameters.Evaluator == nil && parameters.Manager != nil {
		parameters.Evaluator = pattern.NewEvaluator(parameters.Manager, parameters.Logger, parameters.Metrics)
	}

	if parameters.Continuous == nil && parameters.Manager != nil {
		parameters.Continuous = continuous.NewEngine(continuous.Options{
			Manager:   parameters.Manager,
			Evaluator: parameters.Evaluator,
			Logger:    parameters.Logger,
			Metrics:   parameters.Metrics,
		})
	}

	// ADMIN PART
	AddGetServiceHandlerToMux(mux, "/status/", checkStatusHandler, parameters)
	AddPostServiceHandlerToMux(mux, "/token/", checkUserAndGenerateTokenHandler, parameters)
	AddAuthenticatedPostServiceHandlerToMux(mux, "/user/upsert/", upsertUserHandler, parameters)
	// REVISIONS
	AddAuthenticatedGetServiceHandlerToMux(mux, "/revisions/head/", loadHeadRevisionHandler, parameters)
	AddAuthenticatedGetServiceHandlerToMux(mux, "/revisions/at/{moment}/", loadRevisionAtMomentHandler, parameters)
	AddAuthenticatedGetServiceHandlerToMux(mux, "/revisions/{revisionId}/", loadRevisionHandler, parameters)
	// CONTEXTS OPERATIONS
	AddAuthenticatedPostServiceHandlerToMux(mux, "/contexts/update/", updateContextHandler, parameters)
	AddAuthenticatedPostServiceHandlerToMux(mux, "/contexts/insert/", insertIntoContextHandler, parameters)
	AddAuthenticatedPostServiceHandlerToMux(mux, "/contexts/clear/", clearContextHandler, parameters)
	AddAuthenticatedPostServiceHandlerToMux(mux, "/contexts/lookup/", lookupStatementsHandler, parameters)
	// PATTERNS
	AddAuthenticatedPostServiceHandlerToMux(mux, "/patterns/evaluate/", evaluatePatternHandler, parameters)
	// SITUATIONS
	AddAuthenticatedGetServiceHandlerToMux(mux, "/situations/", listSituationsHandler, parameters)
	AddAuthenticatedPostServiceHandlerToMux(mux, "/situations/define/", defineSituationHandler, parameters)
	AddAuthenticatedPostServiceHandlerToMux(mux, "/situations/remove/", removeSituationHandler, parameters)
	// REGISTERED QUERIES
	AddAuthenticatedGetServiceHandlerToMux(mux, "/queries/", listQueriesHandler, parameters)
	AddAuthenticatedPostServiceHandlerToMux(mux, "/queries/register/", registerQueryHandler, parameters)
	AddAuthenticatedPostServiceHandlerToMux(mux, "/queries/unregister/", unregisterQueryHandler, parameters)
	AddAuthenticatedGetServiceHandlerToMux(mux, "/queries/{name}/", loadResultSetHandler, parameters)
	// METRICS
	if parameters.Metrics != nil {
		mux.Handle("/metrics", parameters.Metrics.Handler())
	}

	// mux is complete, all handlers are set
	return mux
}

// AddGetServiceHandlerToMux adds an handler to to the current mux for a GET
func AddGetServiceHandlerToMux(mux *http.ServeMux, urlPattern string, handler ServiceHandler, parameters ServiceParameters) {
	AddServiceHandlerToMux(mux, "GET", urlPattern, false, handler, parameters)
}

// AddPostServiceHandlerToMux adds an handler to to the current mux for a POST
func AddPostServiceHandlerToMux(mux *http.ServeMux, urlPattern string, handler ServiceHandler, parameters ServiceParameters) {
	AddServiceHandlerToMux(mux, "POST", urlPattern, false, handler, parameters)
}

// AddAuthenticatedGetServiceHandlerToMux adds an handler to to the current mux for a GET
func AddAuthenticatedGetServiceHandlerToMux(mux *http.ServeMux, urlPattern string, handler ServiceHandler, parameters ServiceParameters) {
	AddServiceHandlerToMux(mux, "GET", urlPattern, true, handler, parameters)
}

// AddAuthenticatedPostServiceHandlerToMux adds an handler to to the current mux for a POST
func AddAuthenticatedPostServiceHandlerToMux(mux *http.ServeMux, urlPattern string, handler ServiceHandler, parameters ServiceParameters) {
	AddServiceHandlerToMux(mux, "POST", urlPattern, true, handler, parameters)
}

// statusRecorder keeps the http code sent
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// AddServiceHandlerToMux adds an handler to current mux
func AddServiceHandlerToMux(mux *http.ServeMux, method string, urlPattern string, testAuth bool, handler ServiceHandler, parameters ServiceParameters) {
	if parameters.Logger == nil {
		parameters.Logger = zap.NewNop().Sugar()
	}

	handlerFunction := func(writer http.ResponseWriter, r *http.Request) {
		w := &statusRecorder{ResponseWriter: writer, code: http.StatusOK}
		requestID := uuid.NewString()
		w.Header().Set(REQUEST_ID_HEADER, requestID)
		if parameters.Metrics != nil {
			defer func() { parameters.Metrics.IncRequests(urlPattern, w.code) }()
		}

		if !strings.EqualFold(r.Method, method) {
			http.Error(w, "Expecting "+method, http.StatusBadRequest)
			return
		}

		// each request gets its own parameters
		current := parameters
		current.Ctx = context.WithValue(r.Context(), RequestContextKey("request"), requestID)
		current.Logger = parameters.Logger.With("request", requestID)

		// test if user is valid
		if testAuth {
			if login, auth, err := validateAuthentication(current, r); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			} else if !auth {
				http.Error(w, "should authenticate", http.StatusUnauthorized)
				return
			} else {
				current.Ctx = context.WithValue(current.Ctx, RequestContextKey("user"), login)
			}
		}

		start := time.Now()
		errHandler := handler(current, w, r)
		if errHandler != nil {
			var customError ServiceHttpError
			switch errors.As(errHandler, &customError) {
			case true:
				http.Error(w, customError.Error(), customError.HttpCode())
			default:
				http.Error(w, "Internal error: "+errHandler.Error(), http.StatusInternalServerError)
			}
		}

		current.Logger.Debugw("request served",
			"operation", urlPattern,
			"code", w.code,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	// register url matching
	mux.HandleFunc(urlPattern, handlerFunction)
	// deal with /value/ <=> /value
	size := len(urlPattern)
	if strings.HasSuffix(urlPattern, "/") {
		mux.HandleFunc(urlPattern[0:size-1], handlerFunction)
	} else {
		mux.HandleFunc(urlPattern+"/", handlerFunction)
	}
}

// ServiceParameters contains all parameters to use for a service
type ServiceParameters struct {
	Users     UserStore
	Manager   *store.Manager
	Evaluator *pattern.Evaluator
	// Continuous keeps situations and registered queries, default one on Manager if nil
	Continuous *continuous.Engine
	// Coverer builds regions from wkt input, default one if nil
	Coverer *geometry.Coverer
	Metrics metrics.Store
	Ctx     context.Context
	Logger  *zap.SugaredLogger
}

// ServiceHandler adds more parameters than usual handler function
type ServiceHandler func(wrapper ServiceParameters, w http.ResponseWriter, r *http.Request) error

// RequestID returns the id of the current request, empty outside a request
func (sp ServiceParameters) RequestID() string {
	if sp.Ctx == nil {
		return ""
	}

	value, _ := sp.Ctx.Value(RequestContextKey("request")).(string)
	return value
}

// CurrentUser returns the current user if any, and a boolean to explicit if found
func (sp ServiceParameters) CurrentUser() (string, bool) {
	switch userValue := sp.Ctx.Value(RequestContextKey("user")); userValue {
	case nil:
		return "", false
	default:
		return userValue.(string), true
	}
}
