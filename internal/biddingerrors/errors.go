package biddingerrors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer of the coordinator
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrValidation      = errors.New("validation failed")
	ErrStore           = errors.New("realtime store failure")
	ErrAuctionNotFound = errors.New("auction not found")
)

// business logic errors
var (
	ErrInvalidBid       = fmt.Errorf("invalid bid: %w", ErrValidation)
	ErrBidTooLow        = fmt.Errorf("bid amount too low: %w", ErrValidation)
	ErrMissingAuctionID = fmt.Errorf("missing auction id: %w", ErrValidation)
	ErrInvalidAuction   = fmt.Errorf("invalid auction data: %w", ErrValidation)
	ErrAuctionClosed    = errors.New("auction is not accepting bids")
)

// IsDomain reports whether err is a business rule failure rather than an infrastructure one
func IsDomain(err error) bool {
	for _, target := range []error{ErrUnauthenticated, ErrValidation, ErrAuctionNotFound, ErrAuctionClosed} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
