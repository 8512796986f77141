// Package httpapi implements the resource driver core's HTTP surface
// (spec §6): the two endpoints a manager calls to admit work, thin over
// driver.Service.
//
// Grounded on vsavkov-kilroy/internal/server's stdlib net/http.ServeMux
// pattern (Go 1.22+ method+pattern routing, writeJSON/writeError
// helpers, one handler method per route) adapted to this core's own
// request/response shapes and error taxonomy.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/justapithecus/resourcedriver/driver"
	"github.com/justapithecus/resourcedriver/log"
	"github.com/justapithecus/resourcedriver/metrics"
	"github.com/justapithecus/resourcedriver/rderr"
	"github.com/justapithecus/resourcedriver/types"
)

// Config holds the HTTP server's listen configuration.
type Config struct {
	Addr string
}

// Server is the resource driver core's HTTP front door.
type Server struct {
	cfg     Config
	driver  *driver.Service
	logger  *log.Logger
	httpSrv *http.Server
	metrics *metrics.Collector
}

// New constructs a Server wired to driverSvc.
func New(cfg Config, driverSvc *driver.Service, logger *log.Logger) *Server {
	s := &Server{cfg: cfg, driver: driverSvc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /lifecycle/execute", s.handleExecuteLifecycle)
	mux.HandleFunc("POST /references/find", s.handleFindReference)

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// ListenAndServe starts the server and blocks until it stops or ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Infow("listening", "addr", s.cfg.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// executeLifecycleRequestBody is the wire shape of POST /lifecycle/execute.
type executeLifecycleRequestBody struct {
	LifecycleName      string                   `json:"lifecycleName"`
	DriverFiles        string                   `json:"driverFiles"`
	SystemProperties   types.PropertyValueMap   `json:"systemProperties"`
	ResourceProperties types.PropertyValueMap   `json:"resourceProperties"`
	RequestProperties  types.PropertyValueMap   `json:"requestProperties"`
	AssociatedTopology types.AssociatedTopology `json:"associatedTopology"`
	DeploymentLocation types.DeploymentLocation `json:"deploymentLocation"`
}

// findReferenceRequestBody is the wire shape of POST /references/find.
type findReferenceRequestBody struct {
	InstanceName       string                   `json:"instanceName"`
	DriverFiles        string                   `json:"driverFiles"`
	DeploymentLocation types.DeploymentLocation `json:"deploymentLocation"`
}

// SetMetrics attaches a Collector whose Snapshot is served at
// GET /metrics (the ambient ops surface the CLI's jobs dashboard polls).
func (s *Server) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleExecuteLifecycle(w http.ResponseWriter, r *http.Request) {
	var body executeLifecycleRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenantID := r.Header.Get("tenantId")
	resp, err := s.driver.ExecuteLifecycle(r.Context(), driver.ExecuteLifecycleRequest{
		LifecycleName:      body.LifecycleName,
		DriverFiles:        body.DriverFiles,
		SystemProperties:   body.SystemProperties,
		ResourceProperties: body.ResourceProperties,
		RequestProperties:  body.RequestProperties,
		AssociatedTopology: body.AssociatedTopology,
		DeploymentLocation: body.DeploymentLocation,
		TenantID:           tenantID,
		LoggingContext:     loggingContextFromHeaders(r),
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}

	if tenantID != "" {
		w.Header().Set("tenantId", tenantID)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"requestId": resp.RequestID})
}

func (s *Server) handleFindReference(w http.ResponseWriter, r *http.Request) {
	var body findReferenceRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.driver.FindReference(r.Context(), driver.FindReferenceRequest{
		InstanceName:       body.InstanceName,
		DriverFiles:        body.DriverFiles,
		DeploymentLocation: body.DeploymentLocation,
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// loggingContextFromHeaders captures every request header (other than
// tenantId, handled separately) as a correlation key, per spec §6
// ("other headers populate the logging context").
func loggingContextFromHeaders(r *http.Request) types.LoggingContext {
	ctx := types.LoggingContext{}
	for name, values := range r.Header {
		if name == "Tenantid" || len(values) == 0 {
			continue
		}
		ctx[name] = values[0]
	}
	return ctx
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeClassifiedError maps err through rderr.HTTPStatus (spec §6's
// status code table).
func writeClassifiedError(w http.ResponseWriter, err error) {
	writeError(w, rderr.HTTPStatus(err), err.Error())
}
