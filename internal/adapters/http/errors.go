package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"

	"github.com/classboard/core/internal/adapters/memory"
	"github.com/classboard/core/internal/domain/entities"
)

// MessageResponse represents a simple message response
type MessageResponse struct {
	Message string `json:"message"`
}

// toHTTPError maps domain and storage failures onto status codes
func toHTTPError(err error) *echo.HTTPError {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var validationErrs validator.ValidationErrors
	var pqErr *pq.Error

	switch {
	case errors.Is(err, entities.ErrNotFound),
		errors.Is(err, entities.ErrBoardNotFound),
		errors.Is(err, entities.ErrPostNotFound),
		errors.Is(err, entities.ErrColumnNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, entities.ErrForbidden),
		errors.Is(err, entities.ErrBoardLocked),
		errors.Is(err, entities.ErrNotBoardOwner),
		errors.Is(err, entities.ErrNotPostAuthor),
		errors.Is(err, entities.ErrNotCommentAuthor):
		return echo.NewHTTPError(http.StatusForbidden, err.Error()).SetInternal(err)
	case errors.As(err, &validationErrs),
		errors.Is(err, entities.ErrInvalidEmoji),
		errors.Is(err, entities.ErrInvalidLabel):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, memory.ErrConstraint):
		return echo.NewHTTPError(http.StatusConflict, err.Error()).SetInternal(err)
	case errors.As(err, &pqErr) && pqErr.Code.Class() == "23":
		// integrity_constraint_violation
		return echo.NewHTTPError(http.StatusConflict, pqErr.Message).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)).SetInternal(err)
}
