// Package server exposes the workflow stages as a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/selfheal/internal/artifact"
	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/generator"
	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/reporter"
	"github.com/harrison/selfheal/internal/restclient"
	"github.com/harrison/selfheal/internal/workflow"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Stages is the workflow surface served over HTTP.
type Stages interface {
	CreateStory(ctx context.Context, req workflow.CreateStoryRequest) (*models.Story, error)
	FetchStory(ctx context.Context, key string) (*models.Story, error)
	UseStory(st models.Story) error
	GenerateTests(ctx context.Context, key string) ([]models.TestCase, error)
	PushTestRail(ctx context.Context, key string) ([]models.TestCase, error)
	GenerateScripts(ctx context.Context, key string) (*workflow.ScriptResult, error)
	ExecuteTests(ctx context.Context, key string) (reporter.Response, error)
	UpdateResults(ctx context.Context, key string) (*workflow.UpdateResult, error)
	Health(ctx context.Context) workflow.Health
}

// StoryRequest is the body of every per-story stage. Story optionally
// supplies the story inline instead of loading it from the tracker.
type StoryRequest struct {
	StoryID string        `json:"storyId"`
	Story   *models.Story `json:"story,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details string      `json:"details,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Server serves the workflow API.
type Server struct {
	stages Stages
	cfg    config.ServerConfig
	log    logger.Logger
	mux    *http.ServeMux
}

// New creates a Server and registers its routes.
func New(stages Stages, cfg config.ServerConfig, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	s := &Server{stages: stages, cfg: cfg, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/workflow/create-story", s.handleCreateStory)
	s.mux.HandleFunc("POST /api/workflow/fetch-jira", s.storyStage("fetch-jira", func(ctx context.Context, key string) (interface{}, error) {
		return s.stages.FetchStory(ctx, key)
	}))
	s.mux.HandleFunc("POST /api/workflow/generate-tests", s.storyStage("generate-tests", func(ctx context.Context, key string) (interface{}, error) {
		cases, err := s.stages.GenerateTests(ctx, key)
		return map[string]interface{}{"storyId": key, "testCases": cases}, err
	}))
	s.mux.HandleFunc("POST /api/workflow/push-testrail", s.storyStage("push-testrail", func(ctx context.Context, key string) (interface{}, error) {
		cases, err := s.stages.PushTestRail(ctx, key)
		return map[string]interface{}{"storyId": key, "testCases": cases}, err
	}))
	s.mux.HandleFunc("POST /api/workflow/generate-scripts", s.storyStage("generate-scripts", func(ctx context.Context, key string) (interface{}, error) {
		return s.stages.GenerateScripts(ctx, key)
	}))
	s.mux.HandleFunc("POST /api/workflow/execute-tests", s.handleExecuteTests)
	s.mux.HandleFunc("POST /api/workflow/update-results", s.storyStage("update-results", func(ctx context.Context, key string) (interface{}, error) {
		return s.stages.UpdateResults(ctx, key)
	}))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.LogInfo(fmt.Sprintf("Serving workflow API on %s", ln.Addr()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.stages.Health(r.Context()))
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req workflow.CreateStoryRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, "create-story", err, nil)
		return
	}
	st, err := s.stages.CreateStory(r.Context(), req)
	if err != nil {
		s.fail(w, "create-story", err, nil)
		return
	}
	jsonResponse(w, http.StatusCreated, st)
}

func (s *Server) handleExecuteTests(w http.ResponseWriter, r *http.Request) {
	key, err := s.storyKey(r)
	if err != nil {
		s.fail(w, "execute-tests", err, nil)
		return
	}
	resp, err := s.stages.ExecuteTests(r.Context(), key)
	if err != nil {
		var partial interface{}
		if resp.RunID != "" {
			partial = resp
		}
		s.fail(w, "execute-tests", err, partial)
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}

// storyStage adapts a per-story stage into a handler.
func (s *Server) storyStage(name string, run func(ctx context.Context, key string) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := s.storyKey(r)
		if err != nil {
			s.fail(w, name, err, nil)
			return
		}
		out, err := run(r.Context(), key)
		if err != nil {
			s.fail(w, name, err, nil)
			return
		}
		jsonResponse(w, http.StatusOK, out)
	}
}

// storyKey decodes a StoryRequest and registers an inline story.
func (s *Server) storyKey(r *http.Request) (string, error) {
	var req StoryRequest
	if err := decode(r, &req); err != nil {
		return "", err
	}
	if req.Story != nil {
		if req.Story.ID == "" {
			req.Story.ID = req.StoryID
		}
		if err := s.stages.UseStory(*req.Story); err != nil {
			return "", err
		}
		if req.StoryID == "" {
			req.StoryID = req.Story.ID
		}
	}
	key := strings.TrimSpace(req.StoryID)
	if key == "" {
		return "", fmt.Errorf("%w: storyId is required", workflow.ErrInvalidInput)
	}
	return key, nil
}

func (s *Server) fail(w http.ResponseWriter, stage string, err error, partial interface{}) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.LogError(fmt.Sprintf("%s failed: %v", stage, err))
	} else {
		s.log.LogWarn(fmt.Sprintf("%s rejected: %v", stage, err))
	}
	var rl *generator.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter() > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter().Seconds())+1))
	}
	jsonResponse(w, status, ErrorResponse{
		Error:   fmt.Sprintf("%s failed", stage),
		Details: err.Error(),
		Result:  partial,
	})
}

// statusFor maps stage errors onto HTTP statuses.
func statusFor(err error) int {
	var apiErr *restclient.APIError
	switch {
	case errors.Is(err, workflow.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, artifact.ErrStoryBusy):
		return http.StatusConflict
	case errors.Is(err, restclient.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, generator.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", workflow.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err)
	}
	return nil
}

// jsonResponse is a JSON response helper
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
