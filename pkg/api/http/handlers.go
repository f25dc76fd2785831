package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blackstreet-ai/animated-invention/internal/agents"
	"github.com/blackstreet-ai/animated-invention/internal/application/workers"
	"github.com/blackstreet-ai/animated-invention/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RunRequest represents a run submission request
type RunRequest struct {
	Topic          string         `json:"topic"`
	DiscoverTopics bool           `json:"discover_topics"`
	Competitors    []string       `json:"competitors"`
	Audience       string         `json:"audience"`
	Inputs         map[string]any `json:"inputs"`
}

// inputs merges the named fields over the free-form inputs.
func (r RunRequest) inputs() map[string]any {
	in := make(map[string]any, len(r.Inputs)+3)
	for k, v := range r.Inputs {
		in[k] = v
	}
	if r.Topic != "" {
		in[agents.InputTopic] = r.Topic
	}
	if len(r.Competitors) > 0 {
		in[agents.InputCompetitors] = r.Competitors
	}
	if r.Audience != "" {
		in[agents.InputAudience] = r.Audience
	}
	return in
}

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// RunSummary is one entry of the run listing
type RunSummary struct {
	RunID       string          `json:"run_id"`
	Phase       domain.RunPhase `json:"phase"`
	Failed      []string        `json:"failed,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{"api": "ok"}
	health := "healthy"

	if s.pool != nil {
		pool := s.pool.GetStatus()
		checks["workers"] = pool
		if !pool.Healthy {
			status = http.StatusServiceUnavailable
			health = "unhealthy"
		}
	}

	c.JSON(status, gin.H{
		"status":    health,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleSubmitRun handles run submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.logger.Warn("invalid request", zap.Error(err))
			abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	}

	pipeline, err := s.pipelines(req)
	if err != nil {
		s.logger.Error("failed to build pipeline", zap.Error(err))
		abortWithError(c, http.StatusUnprocessableEntity, "INVALID_PIPELINE", err.Error())
		return
	}

	runID, err := s.runs.Submit(c.Request.Context(), pipeline, req.inputs())
	if err != nil {
		s.logger.Error("failed to submit run", zap.Error(err))
		switch {
		case errors.Is(err, workers.ErrQueueFull), errors.Is(err, workers.ErrPoolClosed):
			abortWithError(c, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		default:
			abortWithError(c, http.StatusUnprocessableEntity, "SUBMISSION_FAILED", err.Error())
		}
		return
	}

	c.JSON(http.StatusCreated, RunSubmitResponse{
		RunID:       runID,
		Status:      "submitted",
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListRuns lists stored runs, newest last, with optional phase
// filtering and limit/offset paging.
func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "offset must be a non-negative integer")
		return
	}

	snaps, err := s.runs.ListRuns(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "STORAGE_ERROR", "failed to list runs")
		return
	}

	phase := domain.RunPhase(c.Query("phase"))
	summaries := make([]RunSummary, 0, len(snaps))
	for _, snap := range snaps {
		if phase != "" && snap.Phase != phase {
			continue
		}
		summaries = append(summaries, RunSummary{
			RunID:       snap.RunID,
			Phase:       snap.Phase,
			Failed:      snap.Failed(),
			CreatedAt:   snap.CreatedAt,
			StartedAt:   snap.StartedAt,
			CompletedAt: snap.CompletedAt,
		})
	}

	total := len(summaries)
	start := min(offset, total)
	end := min(start+limit, total)

	c.JSON(http.StatusOK, gin.H{
		"runs":   summaries[start:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// handleGetRun returns the full snapshot of a run
func (s *Server) handleGetRun(c *gin.Context) {
	snap, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleGetResult returns the outputs of a finished run
func (s *Server) handleGetResult(c *gin.Context) {
	snap, ok := s.lookup(c)
	if !ok {
		return
	}

	if !snap.Phase.IsTerminal() {
		abortWithError(c, http.StatusConflict, "NOT_COMPLETED", "run has not finished yet")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       snap.RunID,
		"phase":        snap.Phase,
		"outputs":      snap.Outputs,
		"metadata":     snap.Metadata,
		"errors":       snap.Errors,
		"abort_reason": snap.AbortReason,
		"completed_at": snap.CompletedAt,
	})
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	err := s.runs.CancelRun(c.Request.Context(), runID)
	if errors.Is(err, domain.ErrRunNotFound) {
		// Finished runs are no longer cancellable but still known.
		if _, ok := s.lookup(c); !ok {
			return
		}
		abortWithError(c, http.StatusConflict, "CANCELLATION_FAILED", "run has already finished")
		return
	}
	if err != nil {
		abortWithError(c, http.StatusConflict, "CANCELLATION_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"status":       "cancelled",
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// lookup loads the run named by the :id parameter and writes the error
// response itself when it cannot.
func (s *Server) lookup(c *gin.Context) (*domain.Snapshot, bool) {
	runID := c.Param("id")

	snap, err := s.runs.GetStatus(c.Request.Context(), runID)
	if errors.Is(err, domain.ErrRunNotFound) {
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "run not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to get run", zap.String("run_id", runID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "STORAGE_ERROR", "failed to load run")
		return nil, false
	}
	return snap, true
}
