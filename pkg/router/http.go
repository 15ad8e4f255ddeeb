package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/grovehq/grove/pkg/types"
)

// sendHTTP posts the operation to the target garden's operations
// endpoint, built from its reconciled http connection params.
func (t *Table) sendHTTP(ctx context.Context, garden *types.Garden, op *types.Operation) error {
	params, ok := garden.ConnectionParams.HTTP()
	if !ok {
		return fmt.Errorf("%w: garden %s has no http connection params", ErrRoutingRequest, garden.Name)
	}

	url, err := operationURL(params)
	if err != nil {
		return fmt.Errorf("%w: garden %s: %v", ErrRoutingRequest, garden.Name, err)
	}

	body, err := json.Marshal(op)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver operation to garden %s: %w", garden.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("garden %s rejected operation: %s", garden.Name, resp.Status)
	}
	return nil
}

func operationURL(params map[string]any) (string, error) {
	host, _ := params["host"].(string)
	if host == "" {
		return "", fmt.Errorf("missing host")
	}
	port, ok := portValue(params["port"])
	if !ok {
		return "", fmt.Errorf("missing port")
	}

	scheme := "http"
	if ssl, _ := params["ssl"].(bool); ssl {
		scheme = "https"
	}

	prefix, _ := params["url_prefix"].(string)
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return fmt.Sprintf("%s://%s:%d%sapi/v1/operations", scheme, host, port, prefix), nil
}

// portValue tolerates the numeric types a port takes after JSON or
// storage round-trips.
func portValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
