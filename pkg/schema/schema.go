package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldError describes a single offending field in a parameter set.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors collects every offending field of a parameter set,
// not just the first one found.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return "invalid connection params: " + strings.Join(parts, "; ")
}

func (e *ValidationErrors) add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

// ValidateHTTP validates an http connection parameter set and returns
// its canonical form. The schema is closed: unknown keys fail
// validation. Required: host (non-empty string), port (integer strictly
// between 0 and 65535). url_prefix defaults to "/"; ca_verify and ssl
// default to false; ca_cert, client_cert and client_key are optional
// strings.
func ValidateHTTP(params map[string]any) (map[string]any, error) {
	var errs ValidationErrors
	out := make(map[string]any, len(params))

	checkUnknownKeys(params, httpKeys, &errs)

	if host, ok := requireString(params, "host", &errs); ok {
		out["host"] = host
	}
	if port, ok := requirePort(params, "port", &errs); ok {
		out["port"] = port
	}
	out["url_prefix"] = "/"
	if v, ok := params["url_prefix"]; ok {
		if s, ok := stringValue(v); ok {
			out["url_prefix"] = s
		} else {
			errs.add("url_prefix", "not a valid string")
		}
	}
	optionalString(params, "ca_cert", out, &errs)
	optionalString(params, "client_cert", out, &errs)
	optionalString(params, "client_key", out, &errs)
	out["ca_verify"] = false
	optionalBool(params, "ca_verify", out, &errs)
	out["ssl"] = false
	optionalBool(params, "ssl", out, &errs)

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// ValidateStomp validates a stomp connection parameter set and returns
// its canonical form. The schema is closed. Required: host, port (same
// rules as http) and ssl, an object holding exactly use_ssl (boolean).
// headers is an optional list of {key, value} string pairs;
// send_destination, subscribe_destination, username and password are
// optional strings.
func ValidateStomp(params map[string]any) (map[string]any, error) {
	var errs ValidationErrors
	out := make(map[string]any, len(params))

	checkUnknownKeys(params, stompKeys, &errs)

	if host, ok := requireString(params, "host", &errs); ok {
		out["host"] = host
	}
	if port, ok := requirePort(params, "port", &errs); ok {
		out["port"] = port
	}
	if ssl, ok := requireStompSSL(params, &errs); ok {
		out["ssl"] = ssl
	}
	if v, ok := params["headers"]; ok {
		if headers, ok := stompHeaders(v, &errs); ok {
			out["headers"] = headers
		}
	}
	optionalString(params, "send_destination", out, &errs)
	optionalString(params, "subscribe_destination", out, &errs)
	optionalString(params, "username", out, &errs)
	optionalString(params, "password", out, &errs)

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

var httpKeys = map[string]struct{}{
	"host": {}, "port": {}, "url_prefix": {}, "ca_cert": {},
	"ca_verify": {}, "client_cert": {}, "client_key": {}, "ssl": {},
}

var stompKeys = map[string]struct{}{
	"host": {}, "port": {}, "ssl": {}, "headers": {},
	"send_destination": {}, "subscribe_destination": {},
	"username": {}, "password": {},
}

func checkUnknownKeys(params map[string]any, allowed map[string]struct{}, errs *ValidationErrors) {
	var unknown []string
	for key := range params {
		if _, ok := allowed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		errs.add(key, "unknown field")
	}
}

func requireString(params map[string]any, field string, errs *ValidationErrors) (string, bool) {
	v, ok := params[field]
	if !ok {
		errs.add(field, "missing required field")
		return "", false
	}
	s, ok := stringValue(v)
	if !ok {
		errs.add(field, "not a valid string")
		return "", false
	}
	if s == "" {
		errs.add(field, "must not be empty")
		return "", false
	}
	return s, true
}

func requirePort(params map[string]any, field string, errs *ValidationErrors) (int, bool) {
	v, ok := params[field]
	if !ok {
		errs.add(field, "missing required field")
		return 0, false
	}
	port, ok := intValue(v)
	if !ok {
		errs.add(field, "not a valid integer")
		return 0, false
	}
	if port <= 0 || port >= 65535 {
		errs.add(field, "value out of range for ports")
		return 0, false
	}
	return port, true
}

func requireStompSSL(params map[string]any, errs *ValidationErrors) (map[string]any, bool) {
	v, ok := params["ssl"]
	if !ok {
		errs.add("ssl", "missing required field")
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		errs.add("ssl", "not a valid object")
		return nil, false
	}
	useSSL, ok := m["use_ssl"]
	if !ok {
		errs.add("ssl.use_ssl", "missing required field")
		return nil, false
	}
	b, ok := useSSL.(bool)
	if !ok {
		errs.add("ssl.use_ssl", "not a valid boolean")
		return nil, false
	}
	for key := range m {
		if key != "use_ssl" {
			errs.add("ssl."+key, "unknown field")
			return nil, false
		}
	}
	return map[string]any{"use_ssl": b}, true
}

func stompHeaders(v any, errs *ValidationErrors) ([]any, bool) {
	list, ok := v.([]any)
	if !ok {
		errs.add("headers", "not a valid list")
		return nil, false
	}
	out := make([]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			errs.add(fmt.Sprintf("headers[%d]", i), "not a valid object")
			return nil, false
		}
		key, keyOK := stringValue(m["key"])
		value, valueOK := stringValue(m["value"])
		if len(m) != 2 || !keyOK || !valueOK {
			errs.add(fmt.Sprintf("headers[%d]", i), "must hold exactly 'key' and 'value' strings")
			return nil, false
		}
		out = append(out, map[string]any{"key": key, "value": value})
	}
	return out, true
}

func optionalString(params map[string]any, field string, out map[string]any, errs *ValidationErrors) {
	v, ok := params[field]
	if !ok {
		return
	}
	if v == nil {
		out[field] = nil
		return
	}
	s, ok := stringValue(v)
	if !ok {
		errs.add(field, "not a valid string")
		return
	}
	out[field] = s
}

func optionalBool(params map[string]any, field string, out map[string]any, errs *ValidationErrors) {
	v, ok := params[field]
	if !ok {
		return
	}
	b, ok := v.(bool)
	if !ok {
		errs.add(field, "not a valid boolean")
		return
	}
	out[field] = b
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// intValue normalizes the numeric representations a port can arrive in:
// native ints from config, float64 and json.Number from decoded JSON.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
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
