package handlers

import (
  "errors"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/orionsky/obsdb-backend/internal/apperr"
)

type APIError struct {
  Message     string	`json:"message"`
  Code	      string	`json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error	      APIError	`json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

// RespondMapped translates the service-layer sentinels into HTTP statuses.
func RespondMapped(c *gin.Context, err error) {
  switch {
  case errors.Is(err, apperr.ErrNotFound):
    RespondError(c, http.StatusNotFound, "not_found", err)
  case errors.Is(err, apperr.ErrValidation):
    RespondError(c, http.StatusBadRequest, "validation", err)
  case errors.Is(err, apperr.ErrConflict):
    RespondError(c, http.StatusConflict, "conflict", err)
  case errors.Is(err, apperr.ErrInvariant):
    RespondError(c, http.StatusConflict, "invariant", err)
  case errors.Is(err, apperr.ErrRetryable):
    RespondError(c, http.StatusServiceUnavailable, "retryable", err)
  default:
    RespondError(c, http.StatusInternalServerError, "internal", err)
  }
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}
