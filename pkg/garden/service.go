package garden

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/grovehq/grove/pkg/events"
	"github.com/grovehq/grove/pkg/log"
	"github.com/grovehq/grove/pkg/metrics"
	"github.com/grovehq/grove/pkg/reconcile"
	"github.com/grovehq/grove/pkg/router"
	"github.com/grovehq/grove/pkg/storage"
	"github.com/grovehq/grove/pkg/types"
)

// ErrUnknownGarden is returned when an operation names a garden that
// does not exist.
var ErrUnknownGarden = errors.New("unknown garden")

// Service owns garden federation state: it reads and writes garden
// records through the store, sanitizes their connection configuration
// on the way, reacts to federation events, and coordinates sync
// fan-out through the router.
type Service struct {
	store      storage.Store
	bus        events.Publisher
	router     router.Router
	reconciler *reconcile.Reconciler
	localName  string
	logger     zerolog.Logger
}

// NewService creates a garden service. localName is the local garden's
// own name, taken from process configuration. The router is attached
// separately with SetRouter because it resolves targets through this
// service.
func NewService(store storage.Store, bus events.Publisher, rec *reconcile.Reconciler, localName string) *Service {
	return &Service{
		store:      store,
		bus:        bus,
		reconciler: rec,
		localName:  localName,
		logger:     log.WithComponent("garden"),
	}
}

// SetRouter attaches the operation router used for sync fan-out.
func (s *Service) SetRouter(r router.Router) {
	s.router = r
}

// LocalName returns the local garden's name.
func (s *Service) LocalName() string {
	return s.localName
}

// Get retrieves a garden by name. The local garden's name returns the
// live local view; remote gardens are read through with their
// connection params sanitized. Repairs are never written back by a
// read.
func (s *Service) Get(name string) (*types.Garden, error) {
	if name == s.localName {
		return s.Local(false)
	}

	garden, err := s.store.GetGarden(name)
	if err != nil {
		return nil, err
	}
	s.clean(garden)
	return garden, nil
}

// List retrieves all known gardens, each with sanitized connection
// params, optionally including the local garden.
func (s *Service) List(includeLocal bool) ([]*types.Garden, error) {
	stored, err := s.store.ListGardens()
	if err != nil {
		return nil, err
	}

	gardens := make([]*types.Garden, 0, len(stored)+1)
	for _, g := range stored {
		if g.ConnectionType == types.ConnectionLocal || g.Name == s.localName {
			continue
		}
		s.clean(g)
		gardens = append(gardens, g)
	}

	if includeLocal {
		local, err := s.Local(false)
		if err != nil {
			return nil, err
		}
		gardens = append(gardens, local)
	}

	return gardens, nil
}

// Local builds the local garden view. The stored record only carries
// identity and status; systems and namespaces are assembled at call
// time from the system registry. When allSystems is false only systems
// local to this process are included.
func (s *Service) Local(allSystems bool) (*types.Garden, error) {
	garden, err := s.store.GetGarden(s.localName)
	if err != nil {
		return nil, err
	}
	s.clean(garden)

	filter := storage.SystemFilter{}
	if !allSystems {
		local := true
		filter.Local = &local
	}
	systems, err := s.store.ListSystems(filter)
	if err != nil {
		return nil, err
	}

	garden.Systems = make([]types.SystemRef, 0, len(systems))
	for _, sys := range systems {
		garden.Systems = append(garden.Systems, *sys)
	}
	garden.Namespaces = namespacesOf(garden.Systems)

	return garden, nil
}

// EnsureLocal creates the local garden record if it does not exist yet.
// Called once at startup.
func (s *Service) EnsureLocal() error {
	_, err := s.store.GetGarden(s.localName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	s.logger.Info().Str("garden", s.localName).Msg("Creating local garden record")
	_, err = s.Create(&types.Garden{
		Name:           s.localName,
		ConnectionType: types.ConnectionLocal,
		Status:         types.StatusInitializing,
	})
	return err
}

// Create persists a new garden and publishes GARDEN_CREATED on success.
func (s *Service) Create(garden *types.Garden) (*types.Garden, error) {
	defer s.refreshGardenGauge()
	return events.PublishResult(s.bus, types.EventGardenCreated, s.localName, func() (*types.Garden, error) {
		if garden.Name == "" {
			return nil, fmt.Errorf("garden name must not be empty")
		}
		if _, err := s.store.GetGarden(garden.Name); err == nil {
			return nil, fmt.Errorf("garden %s already exists", garden.Name)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		if garden.ID == "" {
			garden.ID = uuid.NewString()
		}
		if garden.Status == "" {
			garden.Status = types.StatusInitializing
		}
		s.clean(garden)
		garden.StatusInfo.Heartbeat = time.Now().UTC()

		if err := s.store.CreateGarden(garden); err != nil {
			return nil, err
		}
		return garden, nil
	})
}

// Update sanitizes and persists a garden, publishing GARDEN_UPDATED on
// success.
func (s *Service) Update(garden *types.Garden) (*types.Garden, error) {
	defer s.refreshGardenGauge()
	return events.PublishResult(s.bus, types.EventGardenUpdated, s.localName, func() (*types.Garden, error) {
		s.clean(garden)
		if err := s.store.UpdateGarden(garden); err != nil {
			return nil, err
		}
		return garden, nil
	})
}

// UpdateStatus sets a garden's status unconditionally and refreshes the
// status heartbeat. Explicit status updates are not subject to the
// guarded event transitions.
func (s *Service) UpdateStatus(name string, newStatus types.GardenStatus) (*types.Garden, error) {
	defer s.refreshGardenGauge()
	return events.PublishResult(s.bus, types.EventGardenUpdated, s.localName, func() (*types.Garden, error) {
		return s.store.MutateGarden(name, func(g *types.Garden) error {
			g.Status = newStatus
			g.StatusInfo.Heartbeat = time.Now().UTC()
			s.clean(g)
			return nil
		})
	})
}

// UpdateConfig overwrites a stored garden's connection configuration
// and resets its status to INITIALIZING.
func (s *Service) UpdateConfig(garden *types.Garden) (*types.Garden, error) {
	stored, err := s.lookup(garden)
	if err != nil {
		return nil, err
	}

	defer s.refreshGardenGauge()
	return events.PublishResult(s.bus, types.EventGardenUpdated, s.localName, func() (*types.Garden, error) {
		return s.store.MutateGarden(stored.Name, func(g *types.Garden) error {
			g.ConnectionType = garden.ConnectionType
			g.ConnectionParams = garden.ConnectionParams.Clone()
			g.Status = types.StatusInitializing
			g.StatusInfo.Heartbeat = time.Now().UTC()
			s.clean(g)
			return nil
		})
	})
}

func (s *Service) lookup(garden *types.Garden) (*types.Garden, error) {
	if garden.ID != "" {
		return s.store.GetGardenByID(garden.ID)
	}
	return s.store.GetGarden(garden.Name)
}

// Remove deletes a garden and every system it owns, publishing
// GARDEN_REMOVED on success.
func (s *Service) Remove(name string) (*types.Garden, error) {
	defer s.refreshGardenGauge()
	return events.PublishResult(s.bus, types.EventGardenRemoved, s.localName, func() (*types.Garden, error) {
		garden, err := s.Get(name)
		if err != nil {
			return nil, err
		}

		systems, err := s.store.ListSystems(storage.SystemFilter{Garden: name})
		if err != nil {
			return nil, err
		}
		for _, sys := range systems {
			if err := s.store.DeleteSystem(sys.ID); err != nil {
				return nil, err
			}
		}

		if err := s.store.DeleteGarden(name); err != nil {
			return nil, err
		}
		return garden, nil
	})
}

// AddSystem maps a system to a garden, registering it and extending the
// garden's namespace and system lists. Adding to an unknown garden is a
// domain failure, not a bare repository error.
func (s *Service) AddSystem(system *types.SystemRef, gardenName string) (*types.Garden, error) {
	garden, err := s.Get(gardenName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: garden %q does not exist, unable to map %q",
				ErrUnknownGarden, gardenName, system.String())
		}
		return nil, err
	}

	system.Garden = gardenName
	system.Local = gardenName == s.localName
	if system.ID == "" {
		system.ID = uuid.NewString()
	}
	if err := s.store.UpsertSystem(system); err != nil {
		return nil, err
	}

	if !containsString(garden.Namespaces, system.Namespace) {
		garden.Namespaces = append(garden.Namespaces, system.Namespace)
	}
	if !containsSystem(garden.Systems, *system) {
		garden.Systems = append(garden.Systems, *system)
	}

	return s.Update(garden)
}

// refreshGardenGauge recomputes the per-status garden gauge after a
// write. Failures are ignored, the gauge catches up on the next write.
func (s *Service) refreshGardenGauge() {
	gardens, err := s.store.ListGardens()
	if err != nil {
		return
	}
	metrics.GardensTotal.Reset()
	for _, g := range gardens {
		metrics.GardensTotal.WithLabelValues(string(g.Status)).Inc()
	}
}

// clean sanitizes a garden's connection configuration in place, logging
// every remediation note at debug level.
func (s *Service) clean(garden *types.Garden) {
	notes := s.reconciler.Clean(garden)
	if len(notes) == 0 {
		return
	}
	metrics.ConnectionRepairsTotal.WithLabelValues(garden.Name).Add(float64(len(notes)))
	for _, note := range notes {
		s.logger.Debug().Str("garden", garden.Name).Msg(note)
	}
}

func namespacesOf(systems []types.SystemRef) []string {
	seen := make(map[string]struct{}, len(systems))
	var namespaces []string
	for _, sys := range systems {
		if sys.Namespace == "" {
			continue
		}
		if _, ok := seen[sys.Namespace]; ok {
			continue
		}
		seen[sys.Namespace] = struct{}{}
		namespaces = append(namespaces, sys.Namespace)
	}
	sort.Strings(namespaces)
	return namespaces
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsSystem(list []types.SystemRef, sys types.SystemRef) bool {
	for _, item := range list {
		if item.String() == sys.String() {
			return true
		}
	}
	return false
}
