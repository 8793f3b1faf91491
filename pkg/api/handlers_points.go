package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"macagent/pkg/api/middleware"
	"macagent/pkg/executor"
	"macagent/pkg/executor/runner"
	"macagent/pkg/logger"
	"macagent/pkg/metrics"
)

// Request points understood by the endpoint.
const (
	PointPing          = "ping"
	PointSystemPrompt  = "get_llm_system_prompt"
	PointExecuteScript = "execute_script"
)

// PointRequest is the envelope of every POST.
type PointRequest struct {
	Point  string       `json:"point" binding:"required"`
	Params *PointParams `json:"params"`
}

// PointParams carries the point arguments.
type PointParams struct {
	AppID        string           `json:"app_id,omitempty"`
	ToolVariable string           `json:"tool_variable,omitempty"`
	Inputs       *executor.Inputs `json:"inputs"`
	Query        string           `json:"query,omitempty"`
}

const textPlain = "text/plain; charset=utf-8"

func (s *Server) handlePoint(c *gin.Context) {
	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.RecordPoint("invalid", "malformed")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
		return
	}
	label := pointLabel(req.Point)
	c.Set(middleware.ContextPointKey, label)

	logger.FromContext(c.Request.Context()).Debug("point request",
		zap.String("point", req.Point),
		zap.Any("params", req.Params),
	)

	if label != "unknown" && !middleware.PointAllowed(c, req.Point) {
		metrics.RecordPoint(label, "forbidden")
		c.JSON(http.StatusForbidden, gin.H{"error": "credential is not allowed to call " + req.Point})
		return
	}

	switch req.Point {
	case PointPing:
		metrics.RecordPoint(req.Point, "ok")
		c.JSON(http.StatusOK, gin.H{"result": "pong"})
	case PointSystemPrompt:
		s.systemPrompt(c)
	case PointExecuteScript:
		s.executeScript(c, req.Params)
	default:
		metrics.RecordPoint(label, "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown point: " + req.Point})
	}
}

func (s *Server) systemPrompt(c *gin.Context) {
	out, err := s.service.SystemPrompt()
	if err != nil {
		metrics.RecordPoint(PointSystemPrompt, "error")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build system prompt"})
		return
	}
	metrics.RecordPoint(PointSystemPrompt, "ok")
	c.Data(http.StatusOK, textPlain, []byte(out))
}

func (s *Server) executeScript(c *gin.Context, params *PointParams) {
	if params == nil || params.Inputs == nil {
		metrics.RecordPoint(PointExecuteScript, "malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "params.inputs is required"})
		return
	}

	out, err := s.service.ExecuteScript(c.Request.Context(), *params.Inputs)
	switch {
	case err == nil:
		outcome := "ok"
		if out == "" {
			outcome = "empty"
		}
		metrics.RecordPoint(PointExecuteScript, outcome)
		c.Data(http.StatusOK, textPlain, []byte(out))
	case errors.Is(err, executor.ErrInvalidTimeout):
		metrics.RecordPoint(PointExecuteScript, "malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, runner.ErrLaunchFailure):
		metrics.RecordPoint(PointExecuteScript, "launch_failure")
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "script interpreter could not be started",
			"kind":  "launch_failure",
		})
	default:
		metrics.RecordPoint(PointExecuteScript, "error")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "script execution failed"})
	}
}

// pointLabel bounds what a caller-chosen point can turn into in logs and metrics.
func pointLabel(point string) string {
	switch point {
	case PointPing, PointSystemPrompt, PointExecuteScript:
		return point
	default:
		return "unknown"
	}
}
