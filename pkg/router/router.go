package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/grovehq/grove/pkg/log"
	"github.com/grovehq/grove/pkg/metrics"
	"github.com/grovehq/grove/pkg/storage"
	"github.com/grovehq/grove/pkg/types"
)

var (
	// ErrUnknownGarden signals an operation naming a garden this
	// installation does not know about.
	ErrUnknownGarden = errors.New("unknown garden")

	// ErrRoutingRequest signals an operation that cannot be delivered:
	// no handler, no usable transport, or a malformed target.
	ErrRoutingRequest = errors.New("invalid routing request")
)

// Router delivers an operation toward its target garden, hop by hop.
// The router does not retry failed deliveries.
type Router interface {
	Route(ctx context.Context, op *types.Operation) error
}

// Resolver looks up a garden by name with reconciled connection
// configuration. Satisfied by the garden service.
type Resolver interface {
	Get(name string) (*types.Garden, error)
}

// HandlerFunc processes an operation addressed to the local garden.
type HandlerFunc func(ctx context.Context, op *types.Operation) error

// Table routes operations: locally-addressed operations are dispatched
// to a registered handler, everything else is delivered to the target
// garden over the transport its reconciled connection type selects.
type Table struct {
	localName string
	resolver  Resolver
	httpc     *http.Client
	logger    zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewTable creates a routing table for the given local garden name.
func NewTable(localName string, resolver Resolver) *Table {
	return &Table{
		localName: localName,
		resolver:  resolver,
		httpc:     &http.Client{Timeout: 30 * time.Second},
		handlers:  make(map[string]HandlerFunc),
		logger:    log.WithComponent("router"),
	}
}

// Handle registers the local handler for an operation type.
func (t *Table) Handle(opType string, fn HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[opType] = fn
}

// Route delivers the operation. An empty target or the local garden's
// own name dispatches locally.
func (t *Table) Route(ctx context.Context, op *types.Operation) error {
	if op == nil || op.Type == "" {
		return fmt.Errorf("%w: missing operation type", ErrRoutingRequest)
	}

	if op.TargetGarden == "" || op.TargetGarden == t.localName {
		t.mu.RLock()
		fn := t.handlers[op.Type]
		t.mu.RUnlock()
		if fn == nil {
			return fmt.Errorf("%w: no handler for operation type %s", ErrRoutingRequest, op.Type)
		}
		return fn(ctx, op)
	}

	garden, err := t.resolver.Get(op.TargetGarden)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownGarden, op.TargetGarden)
		}
		return err
	}

	t.logger.Debug().
		Str("operation_type", op.Type).
		Str("target", op.TargetGarden).
		Str("connection_type", string(garden.ConnectionType)).
		Msg("Routing operation")

	switch garden.ConnectionType {
	case types.ConnectionHTTP:
		metrics.RoutedOperationsTotal.WithLabelValues("http").Inc()
		return t.sendHTTP(ctx, garden, op)
	case types.ConnectionStomp:
		metrics.RoutedOperationsTotal.WithLabelValues("stomp").Inc()
		return t.sendStomp(garden, op)
	default:
		return fmt.Errorf("%w: garden %s has no routable connection type", ErrRoutingRequest, garden.Name)
	}
}
