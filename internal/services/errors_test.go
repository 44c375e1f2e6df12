package services

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errors.Kind
	}{
		{"ErrNameRequired", ErrNameRequired, errors.ErrValidation},
		{"ErrInvalidBasePrice", ErrInvalidBasePrice, errors.ErrValidation},
		{"ErrInvalidCeiling", ErrInvalidCeiling, errors.ErrValidation},
		{"ErrPublicURLNotSet", ErrPublicURLNotSet, errors.ErrConflict},
		{"ErrUnknownToken", ErrUnknownToken, errors.ErrUnauthorized},
		{"ErrLotNotEditable", ErrLotNotEditable, errors.ErrInvalidState},
		{"ErrLotNotFound", ErrLotNotFound, errors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.kind) {
				t.Errorf("expected kind %s, got %s", tt.kind, errors.KindOf(tt.err))
			}
			if tt.err.Error() == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestRepoError(t *testing.T) {
	disk := stderrors.New("disk I/O error")

	if err := repoError(nil, ErrLotNotFound, "load lot"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := repoError(fmt.Errorf("wrapped: %w", repository.ErrNotFound), ErrBidderNotFound, "load bidder"); err != ErrBidderNotFound {
		t.Errorf("expected ErrBidderNotFound, got %v", err)
	}
	if err := repoError(repository.ErrNotAvailable, ErrLotNotFound, "delete lot"); err != ErrLotNotEditable {
		t.Errorf("expected ErrLotNotEditable, got %v", err)
	}

	err := repoError(disk, ErrLotNotFound, "list lots")
	if !errors.Is(err, errors.ErrStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
	if !stderrors.Is(err, disk) {
		t.Error("expected the driver error to stay wrapped")
	}
}
