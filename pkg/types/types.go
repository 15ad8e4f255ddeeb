package types

import (
	"fmt"
	"time"
)

// ConnectionType is the transport class a garden uses to receive
// routed operations.
type ConnectionType string

const (
	// ConnectionLocal marks the garden hosting the current process.
	ConnectionLocal ConnectionType = "LOCAL"

	ConnectionHTTP  ConnectionType = "HTTP"
	ConnectionStomp ConnectionType = "STOMP"
)

// GardenStatus represents the current state of a garden.
type GardenStatus string

const (
	StatusInitializing  GardenStatus = "INITIALIZING"
	StatusRunning       GardenStatus = "RUNNING"
	StatusUnreachable   GardenStatus = "UNREACHABLE"
	StatusError         GardenStatus = "ERROR"
	StatusBlocked       GardenStatus = "BLOCKED"
	StatusStopped       GardenStatus = "STOPPED"
	StatusNotConfigured GardenStatus = "NOT_CONFIGURED"
)

// StatusInfo carries bookkeeping for the last status write.
type StatusInfo struct {
	Heartbeat time.Time `json:"heartbeat"`
}

// ConnectionParams holds a garden's transport configuration. The two
// recognized keys are "http" and "stomp", each mapping to a
// transport-specific parameter object. Values are kept in raw map form
// because stored records may predate the current schemas; pkg/schema
// and pkg/reconcile turn raw entries into canonical ones.
type ConnectionParams map[string]any

// HTTP returns the http sub-params, if present as a parameter object.
func (p ConnectionParams) HTTP() (map[string]any, bool) {
	return p.section("http")
}

// Stomp returns the stomp sub-params, if present as a parameter object.
func (p ConnectionParams) Stomp() (map[string]any, bool) {
	return p.section("stomp")
}

func (p ConnectionParams) section(key string) (map[string]any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Clone returns a copy that shares no mutable state with the original.
func (p ConnectionParams) Clone() ConnectionParams {
	if p == nil {
		return nil
	}
	out := make(ConnectionParams, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// SystemRef is a reference to a pluggable unit of work owned by exactly
// one garden. It carries identity only, not the full system body.
type SystemRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Namespace string `json:"namespace"`
	Garden    string `json:"garden"`
	Local     bool   `json:"local"`
}

// String renders the canonical system identifier.
func (s SystemRef) String() string {
	return fmt.Sprintf("%s:%s-%s", s.Namespace, s.Name, s.Version)
}

// Garden is a node in the federation: either the local installation or
// a registered remote peer.
type Garden struct {
	ID               string           `json:"id,omitempty"`
	Name             string           `json:"name"`
	ConnectionType   ConnectionType   `json:"connection_type,omitempty"`
	ConnectionParams ConnectionParams `json:"connection_params,omitempty"`
	Status           GardenStatus     `json:"status"`
	StatusInfo       StatusInfo       `json:"status_info"`
	Namespaces       []string         `json:"namespaces,omitempty"`
	Systems          []SystemRef      `json:"systems,omitempty"`
}

// Clone returns a deep copy of the garden.
func (g *Garden) Clone() *Garden {
	if g == nil {
		return nil
	}
	out := *g
	out.ConnectionParams = g.ConnectionParams.Clone()
	out.Namespaces = append([]string(nil), g.Namespaces...)
	out.Systems = append([]SystemRef(nil), g.Systems...)
	return &out
}

// EventType names a federation event.
type EventType string

const (
	EventGardenCreated       EventType = "GARDEN_CREATED"
	EventGardenUpdated       EventType = "GARDEN_UPDATED"
	EventGardenRemoved       EventType = "GARDEN_REMOVED"
	EventGardenStarted       EventType = "GARDEN_STARTED"
	EventGardenStopped       EventType = "GARDEN_STOPPED"
	EventGardenSync          EventType = "GARDEN_SYNC"
	EventGardenUnreachable   EventType = "GARDEN_UNREACHABLE"
	EventGardenError         EventType = "GARDEN_ERROR"
	EventGardenNotConfigured EventType = "GARDEN_NOT_CONFIGURED"
	EventSystemUpdated       EventType = "SYSTEM_UPDATED"
)

// Event is a federation event. Garden names the originating garden.
// Lifecycle events carry a garden snapshot in Payload; remote-status
// events name the garden whose status should change in TargetGarden;
// SYSTEM_UPDATED notifications carry the system in System.
type Event struct {
	ID           string     `json:"id"`
	Name         EventType  `json:"name"`
	Garden       string     `json:"garden"`
	Payload      *Garden    `json:"payload,omitempty"`
	System       *SystemRef `json:"system,omitempty"`
	TargetGarden string     `json:"target_garden,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// OperationGardenSync is the routed sync operation type.
const OperationGardenSync = "GARDEN_SYNC"

// Operation is a routed request addressed to a specific garden by name.
type Operation struct {
	Type         string         `json:"operation_type"`
	TargetGarden string         `json:"target_garden_name"`
	Args         map[string]any `json:"kwargs,omitempty"`
}

// StringArg returns a string argument by name, or "" when absent or of
// another type.
func (o *Operation) StringArg(key string) string {
	if o == nil || o.Args == nil {
		return ""
	}
	s, _ := o.Args[key].(string)
	return s
}
