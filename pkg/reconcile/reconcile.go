package reconcile

import (
	"fmt"

	"dario.cat/mergo"

	"github.com/grovehq/grove/pkg/schema"
	"github.com/grovehq/grove/pkg/types"
)

// Reconciler repairs a garden's connection configuration. Given the
// garden's declared connection type and whatever raw parameters are on
// the record, Clean rewrites the record so that it always carries a
// schema-valid parameter set, preferring a degraded-but-valid
// configuration over failing.
type Reconciler struct {
	defaults map[string]any
}

// New creates a Reconciler. defaults must be a schema-valid http
// parameter set; it is the safe fallback used when stored http params
// are missing or beyond repair.
func New(defaults map[string]any) (*Reconciler, error) {
	canonical, err := schema.ValidateHTTP(defaults)
	if err != nil {
		return nil, fmt.Errorf("connection defaults are not schema-valid: %w", err)
	}
	return &Reconciler{defaults: canonical}, nil
}

// Clean sanitizes the garden's connection type and params in place and
// returns human-readable remediation notes describing every repair it
// made. Cleaning is idempotent: running it on its own output changes
// nothing and produces no notes.
//
// LOCAL gardens always end up with empty params. HTTP gardens always
// end up with valid http params (validated, repaired by merging over
// the defaults, or fully defaulted) and keep stomp params only when
// they validate. STOMP gardens missing valid stomp params are demoted
// to HTTP; with valid stomp params the type is kept and http params are
// kept only when they validate, otherwise the key is dropped.
func (r *Reconciler) Clean(g *types.Garden) []string {
	if g == nil {
		return nil
	}

	var notes []string
	params := g.ConnectionParams
	if params == nil {
		params = types.ConnectionParams{}
	}

	if g.ConnectionType == types.ConnectionLocal {
		if len(params) != 0 {
			notes = append(notes, fmt.Sprintf("removed connection params for local garden %s", g.Name))
		}
		g.ConnectionParams = types.ConnectionParams{}
		return notes
	}

	if g.ConnectionType != types.ConnectionHTTP && g.ConnectionType != types.ConnectionStomp {
		// Not yet configured (e.g. a newly-discovered child whose
		// connection must be established locally). Nothing is routable,
		// so nothing is kept.
		if len(params) != 0 {
			notes = append(notes, fmt.Sprintf("removed connection params for unconfigured garden %s", g.Name))
		}
		g.ConnectionParams = types.ConnectionParams{}
		return notes
	}

	rawStomp, hasStomp := params["stomp"]
	if m, ok := rawStomp.(map[string]any); ok && len(m) == 0 {
		// An explicitly empty stomp object means "none".
		delete(params, "stomp")
		rawStomp, hasStomp = nil, false
	}
	stompParams, stompNotes := r.cleanOrEmptyStomp(rawStomp, hasStomp, g.Name)

	if g.ConnectionType == types.ConnectionHTTP {
		httpParams, httpNotes := r.cleanOrDefaultHTTP(params["http"], g.Name)
		params["http"] = httpParams
		notes = append(notes, httpNotes...)

		if len(stompParams) != 0 {
			params["stomp"] = stompParams
		} else if hasStomp {
			delete(params, "stomp")
			notes = append(notes, fmt.Sprintf("removed unparseable stomp connection params from garden %s", g.Name))
		}
	} else {
		// Declared STOMP: the stomp params decide whether the
		// declaration can stand.
		if !hasStomp || len(stompParams) == 0 {
			notes = append(notes, fmt.Sprintf("forcing connection type to HTTP for garden %s", g.Name))
			g.ConnectionType = types.ConnectionHTTP

			httpParams, httpNotes := r.cleanOrDefaultHTTP(params["http"], g.Name)
			params["http"] = httpParams
			notes = append(notes, httpNotes...)
			delete(params, "stomp")
		} else {
			params["stomp"] = stompParams

			rawHTTP, hasHTTP := params["http"]
			httpParams, httpNotes := cleanOrEmptyHTTP(rawHTTP, hasHTTP, g.Name)
			notes = append(notes, httpNotes...)

			if hasHTTP && len(httpParams) == 0 {
				notes = append(notes, fmt.Sprintf("removed unparseable http connection params from garden %s", g.Name))
				delete(params, "http")
			} else if len(httpParams) != 0 {
				params["http"] = httpParams
			}
		}
	}

	g.ConnectionParams = params
	notes = append(notes, stompNotes...)
	return notes
}

// cleanOrDefaultHTTP resolves http params with the default-filling
// policy: absent params become the safe defaults outright; invalid
// params are first repaired by merging the raw values over the defaults
// and revalidating, and replaced wholesale only when that also fails.
func (r *Reconciler) cleanOrDefaultHTTP(raw any, gardenName string) (map[string]any, []string) {
	allDefaults := []string{fmt.Sprintf("used defaults for all values of http connection params for garden %s", gardenName)}

	params, ok := raw.(map[string]any)
	if raw == nil || !ok {
		return r.cloneDefaults(), allDefaults
	}

	if valid, err := schema.ValidateHTTP(params); err == nil {
		return valid, nil
	}

	// Something is wrong with these params; salvage what we can by
	// letting the provided values sit on top of the defaults.
	merged := types.ConnectionParams(params).Clone()
	if err := mergo.Merge(&merged, types.ConnectionParams(r.defaults)); err == nil {
		if valid, err := schema.ValidateHTTP(merged); err == nil {
			return valid, []string{fmt.Sprintf("used defaults for some values of http connection params for garden %s", gardenName)}
		}
	}

	return r.cloneDefaults(), allDefaults
}

// cleanOrEmptyHTTP resolves http params with the empty-on-failure
// policy used under a valid STOMP declaration: absent stays absent,
// invalid is dropped.
func cleanOrEmptyHTTP(raw any, present bool, gardenName string) (map[string]any, []string) {
	if !present {
		return nil, nil
	}
	params, ok := raw.(map[string]any)
	if ok {
		if valid, err := schema.ValidateHTTP(params); err == nil {
			return valid, nil
		}
	}
	return nil, []string{fmt.Sprintf("unable to parse http connection params for garden %s", gardenName)}
}

func (r *Reconciler) cleanOrEmptyStomp(raw any, present bool, gardenName string) (map[string]any, []string) {
	if !present {
		return nil, nil
	}
	params, ok := raw.(map[string]any)
	if ok {
		if valid, err := schema.ValidateStomp(params); err == nil {
			return valid, nil
		}
	}
	return nil, []string{fmt.Sprintf("unable to parse stomp connection params for garden %s", gardenName)}
}

func (r *Reconciler) cloneDefaults() map[string]any {
	return map[string]any(types.ConnectionParams(r.defaults).Clone())
}
