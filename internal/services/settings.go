package services

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/abrezinsky/auctionhouse/internal/errors"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/internal/repository"
)

// Setting keys
const (
	SettingAuctionTitle = "auction_title"
	SettingPublicURL    = "public_url"
)

const qrSize = 256

// Settings is the editable configuration stored in the database
type Settings struct {
	AuctionTitle string `json:"auction_title"`
	PublicURL    string `json:"public_url"`
}

// SettingsUpdate changes the fields that are set
type SettingsUpdate struct {
	AuctionTitle *string `json:"auction_title"`
	PublicURL    *string `json:"public_url"`
}

// SettingsService handles settings-related business logic
type SettingsService struct {
	log  logger.Logger
	repo repository.SettingsRepository
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(log logger.Logger, repo repository.SettingsRepository) *SettingsService {
	return &SettingsService{log: log, repo: repo}
}

// GetSetting retrieves an arbitrary setting
func (s *SettingsService) GetSetting(ctx context.Context, key string) (string, error) {
	value, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		return "", repoError(err, ErrSettingNotFound, "load setting")
	}
	return value, nil
}

// SetSetting saves an arbitrary setting
func (s *SettingsService) SetSetting(ctx context.Context, key, value string) error {
	if err := s.repo.SetSetting(ctx, key, value); err != nil {
		return errors.Storage(err, "save setting")
	}
	return nil
}

// optional reads a setting, treating a missing one as empty
func (s *SettingsService) optional(ctx context.Context, key string) (string, error) {
	value, err := s.repo.GetSetting(ctx, key)
	if stderrors.Is(err, repository.ErrNotFound) {
		return "", nil // Not yet configured
	}
	if err != nil {
		return "", errors.Storage(err, "load setting")
	}
	return value, nil
}

// GetPublicURL returns the URL spectators and bidders open, without a trailing slash
func (s *SettingsService) GetPublicURL(ctx context.Context) (string, error) {
	return s.optional(ctx, SettingPublicURL)
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidPublicURL
	}
	return raw, nil
}

// SetPublicURL validates and saves the public URL
func (s *SettingsService) SetPublicURL(ctx context.Context, raw string) error {
	value, err := normalizeURL(raw)
	if err != nil {
		return err
	}
	return s.SetSetting(ctx, SettingPublicURL, value)
}

// EnsurePublicURL stores fallback when no public URL has been saved yet,
// or when the saved one points at localhost (useless in a join QR code).
func (s *SettingsService) EnsurePublicURL(ctx context.Context, fallback string) error {
	if fallback == "" {
		return nil
	}
	current, err := s.GetPublicURL(ctx)
	if err != nil {
		return err
	}
	if current != "" && !strings.Contains(current, "localhost") {
		return nil
	}
	return s.SetPublicURL(ctx, fallback)
}

// AllSettings returns the stored settings
func (s *SettingsService) AllSettings(ctx context.Context) (*Settings, error) {
	title, err := s.optional(ctx, SettingAuctionTitle)
	if err != nil {
		return nil, err
	}
	publicURL, err := s.GetPublicURL(ctx)
	if err != nil {
		return nil, err
	}
	return &Settings{AuctionTitle: title, PublicURL: publicURL}, nil
}

// UpdateSettings validates every field before saving any of them
func (s *SettingsService) UpdateSettings(ctx context.Context, update SettingsUpdate) (*Settings, error) {
	var title, publicURL string
	if update.AuctionTitle != nil {
		title = strings.TrimSpace(*update.AuctionTitle)
		if title == "" {
			return nil, ErrNameRequired
		}
	}
	if update.PublicURL != nil {
		var err error
		if publicURL, err = normalizeURL(*update.PublicURL); err != nil {
			return nil, err
		}
	}

	if update.AuctionTitle != nil {
		if err := s.SetSetting(ctx, SettingAuctionTitle, title); err != nil {
			return nil, err
		}
	}
	if update.PublicURL != nil {
		if err := s.SetSetting(ctx, SettingPublicURL, publicURL); err != nil {
			return nil, err
		}
	}
	s.log.Info("Settings updated")
	return s.AllSettings(ctx)
}

// JoinQR renders a PNG QR code pointing at the public URL
func (s *SettingsService) JoinQR(ctx context.Context) ([]byte, error) {
	publicURL, err := s.GetPublicURL(ctx)
	if err != nil {
		return nil, err
	}
	if publicURL == "" {
		return nil, ErrPublicURLNotSet
	}
	png, err := qrcode.Encode(publicURL+"/", qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return png, nil
}
