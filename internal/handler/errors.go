package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tahamediouni1/RebiiProject/internal/apperr"
	"github.com/tahamediouni1/RebiiProject/internal/dto"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:  http.StatusBadRequest,
	apperr.KindAuth:        http.StatusUnauthorized,
	apperr.KindForbidden:   http.StatusForbidden,
	apperr.KindConflict:    http.StatusConflict,
	apperr.KindRateLimited: http.StatusTooManyRequests,
	apperr.KindNotFound:    http.StatusNotFound,
	apperr.KindInternal:    http.StatusInternalServerError,
}

var kindLabel = map[apperr.Kind]string{
	apperr.KindValidation:  "Bad request",
	apperr.KindAuth:        "Unauthorized",
	apperr.KindForbidden:   "Forbidden",
	apperr.KindConflict:    "Conflict",
	apperr.KindRateLimited: "Too Many Requests",
	apperr.KindNotFound:    "Not found",
	apperr.KindInternal:    "Internal server error",
}

// writeError maps a service error onto the wire. Internal causes never
// reach the client; only the caller-safe message does.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kindStatus[kind]

	body := dto.ErrorResponse{
		Error:   kindLabel[kind],
		Message: "Something went wrong",
	}

	if e, ok := apperr.As(err); ok {
		if kind != apperr.KindInternal {
			body.Message = e.Message
		}
		body.Type = e.ConflictType
		body.Email = e.Email
		if e.RetryAfter > 0 {
			seconds := int(math.Ceil(e.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
	}

	c.JSON(status, body)
}
