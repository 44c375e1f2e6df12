package services

import (
	stderrors "errors"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

// Service errors
var (
	ErrNameRequired     = errors.Validation("name is required")
	ErrInvalidBasePrice = errors.Validation("base price must be greater than zero")
	ErrInvalidCeiling   = errors.Validation("budget ceiling must be greater than zero")
	ErrInvalidRound     = errors.Validation("round must not be negative")
	ErrInvalidStatus    = errors.Validation("unknown lot status")
	ErrInvalidPublicURL = errors.Validation("public url must be an absolute http(s) url")
	ErrPublicURLNotSet  = errors.Conflict("public url is not configured")
	ErrTokenRequired    = errors.Unauthorized("bearer token is required")
	ErrUnknownToken     = errors.Unauthorized("unknown bearer token")
	ErrLotNotEditable   = errors.InvalidState("lot can only be changed while available and without bids")
	ErrBidderNotFound   = errors.NotFound("bidder not found")
	ErrLotNotFound      = errors.NotFound("lot not found")
	ErrSettingNotFound  = errors.NotFound("setting not found")
)

// repoError translates repository sentinels into application errors.
// notFound is returned for repository.ErrNotFound.
func repoError(err error, notFound *errors.Error, msg string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, repository.ErrNotFound):
		return notFound
	case stderrors.Is(err, repository.ErrNotAvailable):
		return ErrLotNotEditable
	default:
		return errors.Storage(err, msg)
	}
}
