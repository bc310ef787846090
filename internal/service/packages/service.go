// Package packages applies the package status state machine on top of the
// repository's compare-and-swap update.
package packages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
	"github.com/apiprobe-labs/apiprobe-go/internal/events"
	"github.com/apiprobe-labs/apiprobe-go/internal/repo"
)

// casAttempts bounds the retry loop when concurrent callers race on the
// same package.
const casAttempts = 3

type Service struct {
	packages repo.PackageRepository
	sink     events.Sink
	logger   *slog.Logger
}

func New(packages repo.PackageRepository, sink events.Sink, logger *slog.Logger) *Service {
	if packages == nil || logger == nil {
		return nil
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Service{packages: packages, sink: sink, logger: logger}
}

// UpdateStatus validates and applies one status transition. It returns
// repo.ErrNotFound for unknown ids and *domain.InvalidTransitionError for
// rejected moves; a target equal to the current status is a no-op success.
// Racing callers are serialized through the repository's compare-and-swap:
// only one of two conflicting transitions can win, the other re-reads and
// re-validates against the new current status.
func (s *Service) UpdateStatus(ctx context.Context, id string, target domain.PackageStatus) (domain.PackageStatus, error) {
	target, ok := domain.ParsePackageStatus(string(target))
	if !ok {
		return "", &domain.InvalidTransitionError{To: target}
	}

	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		pkg, err := s.packages.GetPackage(ctx, id)
		if err != nil {
			return "", err
		}
		current := pkg.Status

		if target == current {
			return current, nil
		}
		if !domain.CanTransition(current, target) {
			return "", &domain.InvalidTransitionError{From: current, To: target}
		}

		err = s.packages.UpdatePackageStatus(ctx, id, current, target, time.Now().UTC())
		if err == nil {
			s.sink.Publish(ctx, events.PackageStatusChanged{
				PackageID: id,
				Previous:  current,
				New:       target,
				ChangedAt: time.Now().UTC(),
			})
			return target, nil
		}
		if !errors.Is(err, repo.ErrStatusConflict) {
			return "", fmt.Errorf("update package status: %w", err)
		}
		lastErr = err
		s.logger.Warn("package status conflict, retrying", "package_id", id, "target", target, "attempt", attempt+1)
	}
	return "", fmt.Errorf("update package status: %w", lastErr)
}

// Cancel requests cancellation of the package lifecycle. It is a plain
// transition to CANCELLED, allowed from every non-terminal state.
func (s *Service) Cancel(ctx context.Context, id string) (domain.PackageStatus, error) {
	return s.UpdateStatus(ctx, id, domain.PackageStatusCancelled)
}
