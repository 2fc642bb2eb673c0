package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// bindAndValidate decodes the JSON body into req and runs its validation rules.
// It writes the 400 response itself and reports whether the handler may continue.
func bindAndValidate(c *gin.Context, req validation.Validatable) bool {
	// An empty body binds to the zero request and is left to the validation rules
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
			Message: "invalid request body",
			Details: gin.H{"error": err.Error()},
		})
		return false
	}
	if err := req.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
			Message: "validation failed",
			Details: err,
		})
		return false
	}
	return true
}

// respondError maps domain errors to HTTP responses; anything unrecognized becomes a 500
func respondError(c *gin.Context, err error) {
	var statusErr domain.StatusError
	switch {
	case errors.As(err, &statusErr):
		c.AbortWithStatusJSON(statusErr.StatusCode(), errorResponse{Message: statusErr.Error(), Details: statusErr.Details()})
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrNoSelection):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrProductNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrIndexUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrUpstreamFailure):
		c.AbortWithStatusJSON(http.StatusBadGateway, errorResponse{Message: "upstream service unavailable"})
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("[HTTP] unhandled error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}
