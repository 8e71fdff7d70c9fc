// Package azure serves the Azure Functions custom handler protocol for a blob trigger
package azure

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/DMarby/image-resizer/internal/handler"
	"github.com/DMarby/image-resizer/internal/health"
	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/tracing"
	"github.com/gorilla/mux"
)

// DefaultBinding is the name of the blob trigger binding in function.json
const DefaultBinding = "inputStream"

// PortEnv is the environment variable the Functions host passes the listen port in
const PortEnv = "FUNCTIONS_CUSTOMHANDLER_PORT"

// Pipeline processes blobs
type Pipeline interface {
	Handle(ctx context.Context, name string) error
	HandleBlob(ctx context.Context, name string, data []byte) error
}

// Server is the custom handler http server
type Server struct {
	Pipeline       Pipeline
	Binding        string
	HealthChecker  *health.Checker
	Log            *logger.Logger
	Tracer         *tracing.Tracer
	HandlerTimeout time.Duration
}

// InvokeRequest is the payload the host sends for every invocation
type InvokeRequest struct {
	Data     map[string]json.RawMessage `json:"Data"`
	Metadata map[string]json.RawMessage `json:"Metadata"`
}

// InvokeResponse is returned to the host
type InvokeResponse struct {
	Outputs     map[string]interface{} `json:"Outputs"`
	Logs        []string               `json:"Logs"`
	ReturnValue interface{}            `json:"ReturnValue"`
}

// ListenAddress returns the address to listen on, using the port the host assigned when set
func ListenAddress(fallback string) string {
	if port := os.Getenv(PortEnv); port != "" {
		return ":" + port
	}

	return fallback
}

// Router returns a http router
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	router.NotFoundHandler = handler.Handler(s.notFoundHandler)

	// Healthcheck
	router.Handle("/health", handler.Health(s.HealthChecker)).Methods("GET").Name("health")

	// Invocations, the path is the function name
	router.Handle("/{function}", handler.Handler(s.invokeHandler)).Methods("POST")

	routeMatcher := &handler.MuxRouteMatcher{Router: router}

	timeout := s.HandlerTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	// Set up handlers for adding a request id, handling panics, request logging, tracing, metrics, and handler execution timeout
	return handler.AddRequestID(
		handler.Recovery(s.Log,
			handler.Logger(s.Log,
				handler.Tracer(s.Tracer,
					handler.Metrics(
						http.TimeoutHandler(router, timeout, "Something went wrong. Timed out."),
						routeMatcher,
					),
					routeMatcher,
				),
			),
		),
	)
}

func (s *Server) invokeHandler(w http.ResponseWriter, r *http.Request) *handler.Error {
	function := mux.Vars(r)["function"]

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return handler.BadRequest("invalid invocation payload")
	}

	name, ok := stringValue(req.Metadata["name"])
	if !ok || name == "" {
		return handler.BadRequest("missing blob name in invocation metadata")
	}

	data, hasData, err := s.blobData(req.Data)
	if err != nil {
		return handler.BadRequest(err.Error())
	}

	ctx := r.Context()
	if hasData {
		err = s.Pipeline.HandleBlob(ctx, name, data)
	} else {
		err = s.Pipeline.Handle(ctx, name)
	}

	res := InvokeResponse{
		Outputs: map[string]interface{}{},
		Logs:    []string{},
	}

	status := http.StatusOK
	if err != nil {
		s.Log.Errorw("invocation failed", handler.LogFields(r, "function", function, "name", name, "error", err)...)
		res.Logs = append(res.Logs, "error processing "+name+": "+err.Error())
		status = http.StatusInternalServerError
	} else {
		res.Logs = append(res.Logs, "processed "+name)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.Log.Errorw("error writing invocation response", handler.LogFields(r, "error", err)...)
	}

	return nil
}

// blobData returns the blob contents delivered with the binding, if any
func (s *Server) blobData(data map[string]json.RawMessage) ([]byte, bool, error) {
	binding := s.Binding
	if binding == "" {
		binding = DefaultBinding
	}

	raw, ok := data[binding]
	if !ok || string(raw) == "null" {
		return nil, false, nil
	}

	value, ok := stringValue(raw)
	if !ok {
		return nil, false, errInvalidBinding(binding)
	}

	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, true, nil
	}

	return []byte(value), true, nil
}

type errInvalidBinding string

func (e errInvalidBinding) Error() string {
	return "binding " + string(e) + " is not a string"
}

func stringValue(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}

	return value, true
}

// Handle not found errors
var notFoundError = &handler.Error{
	Message: "page not found",
	Code:    http.StatusNotFound,
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) *handler.Error {
	return notFoundError
}
