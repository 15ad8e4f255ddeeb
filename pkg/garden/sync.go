package garden

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/grovehq/grove/pkg/events"
	"github.com/grovehq/grove/pkg/metrics"
	"github.com/grovehq/grove/pkg/types"
)

// PublishLocal publishes the full local snapshot as a GARDEN_SYNC
// event: all systems including non-local ones, the given status
// (default RUNNING), and the connection type cleared.
func (s *Service) PublishLocal(gardenStatus types.GardenStatus) (*types.Garden, error) {
	if gardenStatus == "" {
		gardenStatus = types.StatusRunning
	}

	return events.PublishResult(s.bus, types.EventGardenSync, s.localName, func() (*types.Garden, error) {
		garden, err := s.Local(true)
		if err != nil {
			return nil, err
		}
		garden.ConnectionType = ""
		garden.Status = gardenStatus
		return garden, nil
	})
}

// Sync performs a garden sync. When syncTarget is set, this garden is
// the addressed target and satisfies the sync by publishing its own
// snapshot. Otherwise this garden is the originator: it issues one
// routed GARDEN_SYNC operation per known child garden, each addressed
// to that garden with itself as the sync target. Every hop re-runs the
// same logic for its own children, so a sync fans out one level per
// routed hop.
func (s *Service) Sync(ctx context.Context, syncTarget string) error {
	if syncTarget != "" {
		s.logger.Debug().Str("sync_target", syncTarget).Msg("Processing garden sync, about to publish")
		_, err := s.PublishLocal(types.StatusRunning)
		return err
	}

	if s.router == nil {
		return fmt.Errorf("no router attached, cannot forward sync")
	}

	gardens, err := s.List(false)
	if err != nil {
		return err
	}

	grp, ctx := errgroup.WithContext(ctx)
	for _, garden := range gardens {
		name := garden.Name
		grp.Go(func() error {
			s.logger.Debug().Str("garden", name).Msg("Creating sync operation")
			metrics.SyncOperationsTotal.Inc()

			return s.router.Route(ctx, &types.Operation{
				Type:         types.OperationGardenSync,
				TargetGarden: name,
				Args:         map[string]any{"sync_target": name},
			})
		})
	}
	return grp.Wait()
}
