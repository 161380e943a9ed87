package api

import (
	"errors"
	"net/http"
	"strconv"

	"clinic-service/internal/apperr"
	"clinic-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrEmptyPrescription):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrInvalidState),
		errors.Is(err, apperr.ErrAlreadyDispensed),
		errors.Is(err, apperr.ErrInsufficientStock),
		errors.Is(err, apperr.ErrAlreadySettled),
		errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err in the API error shape
func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	body := gin.H{
		"error":   message,
		"details": err.Error(),
		"code":    apperr.Code(err),
	}

	var stockErr *apperr.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["shortages"] = stockErr.Shortages
	}
	if errors.Is(err, apperr.ErrConflict) {
		body["retryable"] = true
	}

	if status == http.StatusInternalServerError {
		util.GetLogger().Error(message,
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		body["details"] = "internal error"
	}

	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   message,
		"details": err.Error(),
		"code":    apperr.Code(apperr.ErrInvalidArgument),
	})
}

// idParam parses a positive int64 path parameter
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
			"code":  apperr.Code(apperr.ErrInvalidArgument),
		})
		return 0, false
	}
	return id, true
}
