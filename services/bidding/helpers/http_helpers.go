package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/utils"

	"github.com/gin-gonic/gin"
)

// UserContextKey is the gin context key holding the authenticated *model.UserIdentity
const UserContextKey = "auth.user"

// MaxListLimit caps the limit query parameter of list endpoints
const MaxListLimit = 500

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message.
// Specific sentinels come before ErrValidation, which several of them wrap.
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return http.StatusConflict, "auction is not accepting bids"
	case errors.Is(err, biddingerrors.ErrMissingAuctionID), errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, biddingerrors.ErrStore):
		return http.StatusServiceUnavailable, "realtime store unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// HandleServiceError writes the mapped error response and logs it. Business rule
// failures are logged as warnings, everything else as errors.
func HandleServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if biddingerrors.IsDomain(err) {
		utils.Warn(handlerName+": request rejected", fields)
		return
	}
	utils.Error(handlerName+": request failed", fields)
}

// CurrentUser returns the identity stored by the auth middleware, or nil
func CurrentUser(c *gin.Context) *model.UserIdentity {
	v, ok := c.Get(UserContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.UserIdentity)
	return user
}

// ParseLimit reads the limit query parameter. Missing means def; values above
// MaxListLimit are clamped.
func ParseLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w - limit must be a positive integer, got %q", biddingerrors.ErrValidation, raw)
	}
	return min(n, MaxListLimit), nil
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
