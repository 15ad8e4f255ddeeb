package garden

import (
	"errors"
	"fmt"

	"github.com/grovehq/grove/pkg/events"
	"github.com/grovehq/grove/pkg/metrics"
	"github.com/grovehq/grove/pkg/status"
	"github.com/grovehq/grove/pkg/storage"
	"github.com/grovehq/grove/pkg/types"
)

// lifecycleEvents are the downstream reports that mutate a child
// garden's record.
var lifecycleEvents = map[types.EventType]struct{}{
	types.EventGardenStarted: {},
	types.EventGardenUpdated: {},
	types.EventGardenStopped: {},
	types.EventGardenSync:    {},
}

// HandleEvent applies a federation event to local state.
//
// Lifecycle events are only honored when they originate downstream and
// the reporting garden reports on itself — grandchild reports relayed
// through a child are ignored to avoid topology confusion. The three
// remote-status events originate locally, name a target garden, and go
// through the guarded status transitions.
func (s *Service) HandleEvent(ev *types.Event) error {
	if ev == nil {
		return nil
	}
	metrics.EventsHandledTotal.WithLabelValues(string(ev.Name)).Inc()

	if ev.Garden != s.localName {
		if _, ok := lifecycleEvents[ev.Name]; !ok {
			return nil
		}
		return s.applyChildReport(ev)
	}

	switch ev.Name {
	case types.EventGardenUnreachable:
		return s.applyGuardedStatus(ev.TargetGarden, types.StatusUnreachable)
	case types.EventGardenError:
		return s.applyGuardedStatus(ev.TargetGarden, types.StatusError)
	case types.EventGardenNotConfigured:
		return s.applyGuardedStatus(ev.TargetGarden, types.StatusNotConfigured)
	}
	return nil
}

// applyChildReport reconciles a direct child's self-report into its
// stored record.
func (s *Service) applyChildReport(ev *types.Event) error {
	payload := ev.Payload
	if payload == nil || payload.Name != ev.Garden {
		// Not a direct child reporting on itself.
		return nil
	}

	// Ownership of the reported systems belongs to the reporting
	// garden, never to this process.
	for i := range payload.Systems {
		payload.Systems[i].Local = false
		payload.Systems[i].Garden = payload.Name
	}

	existing, err := s.store.GetGarden(payload.Name)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	var garden *types.Garden
	if existing == nil {
		// Connection config for a newly-discovered garden is
		// established locally, not trusted from the child's report.
		created := payload.Clone()
		created.ID = ""
		created.ConnectionType = ""
		created.ConnectionParams = types.ConnectionParams{}

		garden, err = s.Create(created)
	} else {
		garden, err = events.PublishResult(s.bus, types.EventGardenUpdated, s.localName, func() (*types.Garden, error) {
			return s.store.MutateGarden(existing.Name, func(g *types.Garden) error {
				// Only the fields the child is authoritative for;
				// connection configuration stays untouched.
				g.Status = payload.Status
				g.StatusInfo = payload.StatusInfo
				g.Namespaces = append([]string(nil), payload.Namespaces...)
				g.Systems = append([]types.SystemRef(nil), payload.Systems...)
				s.clean(g)
				return nil
			})
		})
	}
	if err != nil {
		return fmt.Errorf("failed to apply report from garden %s: %w", ev.Garden, err)
	}

	for i := range garden.Systems {
		sys := garden.Systems[i]
		if sys.ID != "" {
			if err := s.store.UpsertSystem(&sys); err != nil {
				return err
			}
		}

		// Incremental notifications so consumers refresh per system
		// instead of re-fetching the whole tree.
		s.bus.Publish(&types.Event{
			Name:   types.EventSystemUpdated,
			Garden: ev.Garden,
			System: &sys,
		})
	}

	return nil
}

// applyGuardedStatus runs a requested status through the state
// machine's guards and persists it only when the transition is
// accepted.
func (s *Service) applyGuardedStatus(target string, requested types.GardenStatus) error {
	garden, err := s.Get(target)
	if err != nil {
		return err
	}

	next, apply := status.Transition(garden.Status, requested)
	if !apply {
		s.logger.Debug().
			Str("garden", target).
			Str("current", string(garden.Status)).
			Str("requested", string(requested)).
			Msg("Status transition rejected by guard")
		return nil
	}

	_, err = s.UpdateStatus(target, next)
	return err
}
