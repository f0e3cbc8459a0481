package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/drydock-deploy/drydock/internal/domain"

	"go.uber.org/zap"
)

// TargetService manages target registration and queries.
type TargetService struct {
	Targets domain.TargetRepository
	Log     *zap.Logger
}

func (s *TargetService) Register(ctx context.Context, target domain.Target) error {
	if target.Name == "" {
		return fmt.Errorf("%w: target name is required", domain.ErrInvalidIntent)
	}
	switch target.Kind {
	case domain.AdapterDokploy, domain.AdapterNorthflank:
	default:
		return fmt.Errorf("%w: unknown adapter kind %q", domain.ErrInvalidIntent, target.Kind)
	}
	return s.Targets.Create(ctx, target)
}

// Ensure registers the given targets, skipping ones already present. Used
// at startup to sync configured targets into the store.
func (s *TargetService) Ensure(ctx context.Context, targets []domain.Target) error {
	for _, t := range targets {
		err := s.Register(ctx, t)
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("register target %q: %w", t.Name, err)
		}
		if s.Log != nil {
			s.Log.Info("target registered", zap.String("target", t.Name), zap.String("kind", string(t.Kind)))
		}
	}
	return nil
}

func (s *TargetService) Get(ctx context.Context, name string) (domain.Target, error) {
	return s.Targets.Get(ctx, name)
}

func (s *TargetService) List(ctx context.Context) ([]domain.Target, error) {
	return s.Targets.List(ctx)
}

func (s *TargetService) Delete(ctx context.Context, name string) error {
	return s.Targets.Delete(ctx, name)
}
