package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/storefront-auth/internal/transport/http/validation"
	"github.com/arklim/storefront-auth/internal/usecase"
)

const internalErrorMessage = "internal server error"

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithError writes err using its usecase kind. Cases take precedence over
// the kind mapping; an empty case message falls back to the error's own message.
func RespondWithError(c *gin.Context, err error, cases ...ErrorCase) {
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			msg := cs.Message
			if msg == "" {
				msg = usecase.MessageOf(err)
			}
			c.JSON(cs.Status, NewErrorResponse(c, msg))
			return
		}
	}

	var verr *validation.Error
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, verr.Message))
		return
	}

	status := statusForKind(usecase.KindOf(err))
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, NewErrorResponse(c, internalErrorMessage))
		return
	}
	c.JSON(status, NewErrorResponse(c, usecase.MessageOf(err)))
}

func statusForKind(kind usecase.Kind) int {
	switch kind {
	case usecase.KindConflict:
		return http.StatusConflict
	case usecase.KindBadInput:
		return http.StatusBadRequest
	case usecase.KindNotFound:
		return http.StatusNotFound
	case usecase.KindUnauthorized:
		return http.StatusUnauthorized
	case usecase.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
