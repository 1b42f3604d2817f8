package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

// ServiceParams groups dependencies for the billing settings service.
type ServiceParams struct {
	Repo   Repository
	Cache  *SettingsCache
	Logger *logger.Logger
}

// Service owns admin reads and writes of billing settings.
type Service struct {
	repo  Repository
	cache *SettingsCache
	logg  *logger.Logger
}

// NewService builds a billing settings service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Cache == nil {
		return nil, errors.New("settings cache is required")
	}
	return &Service{repo: params.Repo, cache: params.Cache, logg: params.Logger}, nil
}

// GetSettings returns the effective configuration as flat key/value rows,
// defaults included.
func (s *Service) GetSettings(ctx context.Context) (map[string]string, error) {
	settings, err := s.cache.Load(ctx)
	if err != nil {
		return nil, err
	}
	return settings.Flatten(), nil
}

// UpdateSettings persists the given rows and synchronously invalidates the
// cache before returning, so no caller observes stale values after the write
// is acknowledged.
func (s *Service) UpdateSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no settings provided")
	}

	stored, err := s.repo.LoadSettings(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load billing settings")
	}

	// Validate the write against the merged view, not the incoming rows in
	// isolation. Cross-field rules hold over stored and incoming values
	// together, and a rejected write must leave every subsequent read working.
	merged := make(map[string]string, len(stored)+len(values))
	for key, value := range stored {
		merged[key] = value
	}
	for key, value := range values {
		if !strings.HasPrefix(key, KeyPrefix) {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("setting key %s must start with %s", key, KeyPrefix))
		}
		merged[key] = value
	}
	if _, err := ParseSettings(merged); err != nil {
		return err
	}

	if err := s.repo.UpsertSettings(ctx, values); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist billing settings")
	}

	s.cache.Invalidate()

	if s.logg != nil {
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"keys": keys}), "billing settings updated")
	}
	return nil
}
