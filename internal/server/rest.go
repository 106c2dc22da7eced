package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/runbox/runbox/internal/app/volumecreate"
	"github.com/runbox/runbox/internal/model"
	"github.com/runbox/runbox/pkg/apiv1"
)

func (s *Server) registerRESTRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.POST("/run", s.handleRun)
	router.POST("/volumes", s.handleVolumeCreate)
	if s.history != nil {
		router.GET("/executions", s.handleListExecutions)
	}
}

// httpStatus maps domain errors to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrNotValid):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(httpStatus(err), gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	h := s.health.Status(c.Request.Context())

	status := http.StatusOK
	if !h.Reachable {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, apiv1.NewHealthResponse(h))
}

func (s *Server) handleRun(c *gin.Context) {
	var req apiv1.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	execReq, err := req.ToModel()
	if err != nil {
		abortWithError(c, err)
		return
	}

	result, err := s.runner.Run(c.Request.Context(), *execReq)
	if err != nil {
		s.logger.Errorf("Execution failed: %v", err)
		abortWithError(c, err)
		return
	}

	// A nonzero container exit code is still a successful API call.
	c.JSON(http.StatusOK, apiv1.NewRunResponse(result))
}

func (s *Server) handleVolumeCreate(c *gin.Context) {
	var req apiv1.VolumeCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var archive []byte
	if req.Content != "" {
		var err error
		archive, err = base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "content is not valid base64"})
			return
		}
	}

	err := s.volumes.Run(c.Request.Context(), volumecreate.Request{Name: req.Name, Archive: archive})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, apiv1.VolumeCreateResponse{Name: req.Name, Created: true})
}

func (s *Server) handleListExecutions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	records, err := s.history.ListExecutions(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	executions := make([]apiv1.Execution, 0, len(records))
	for _, r := range records {
		executions = append(executions, apiv1.NewExecution(r))
	}
	c.JSON(http.StatusOK, gin.H{"executions": executions})
}
