// Package response owns the wire envelope. Every error leaving the API goes
// through Error so the {error:{kind,message}} shape and the kind→status
// mapping stay in one place.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neoalexandria/backend/internal/platform/apierr"
)

type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Error maps an error chain onto the envelope. Unclassified errors surface
// as kind internal with a generic message so internals never leak.
func Error(c *gin.Context, err error) {
	kind := apierr.KindOf(err)
	msg := "internal error"
	if kind != apierr.KindInternal && err != nil {
		msg = err.Error()
	}
	c.JSON(kind.HTTPStatus(), ErrorEnvelope{
		Error: APIError{Kind: string(kind), Message: msg},
	})
}

func ValidationError(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorEnvelope{
		Error: APIError{Kind: string(apierr.KindValidation), Message: msg},
	})
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func Accepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
