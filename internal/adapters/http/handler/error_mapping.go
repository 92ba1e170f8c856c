package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ogurasousui/codex-account-service/internal/core/account"
)

// ErrorResponse はエラー時のレスポンスボディです。
type ErrorResponse struct {
	Message string            `json:"message"`
	Details []ValidationError `json:"details,omitempty"`
}

func toHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, account.ErrInvalidEmail),
		errors.Is(err, account.ErrInvalidPassword),
		errors.Is(err, account.ErrInvalidName),
		errors.Is(err, account.ErrInvalidAddress),
		errors.Is(err, account.ErrInvalidID),
		errors.Is(err, account.ErrInvalidPage):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrEmailAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, account.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(c *gin.Context, err error) {
	code := toHTTPStatus(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		// 内部要因の詳細は返しません。
		msg = http.StatusText(code)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, ErrorResponse{Message: msg})
}
