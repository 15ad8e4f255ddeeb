package router

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"

	"github.com/grovehq/grove/pkg/types"
)

const defaultSendDestination = "grove/operations"

// sendStomp delivers the operation over the target garden's message
// queue, using its reconciled stomp connection params.
func (t *Table) sendStomp(garden *types.Garden, op *types.Operation) error {
	params, ok := garden.ConnectionParams.Stomp()
	if !ok {
		return fmt.Errorf("%w: garden %s has no stomp connection params", ErrRoutingRequest, garden.Name)
	}

	host, _ := params["host"].(string)
	port, portOK := portValue(params["port"])
	if host == "" || !portOK {
		return fmt.Errorf("%w: garden %s stomp params missing host or port", ErrRoutingRequest, garden.Name)
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	useSSL := false
	if ssl, ok := params["ssl"].(map[string]any); ok {
		useSSL, _ = ssl["use_ssl"].(bool)
	}

	var netConn net.Conn
	var err error
	if useSSL {
		netConn, err = tls.Dial("tcp", addr, nil)
	} else {
		netConn, err = net.DialTimeout("tcp", addr, 30*time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to garden %s at %s: %w", garden.Name, addr, err)
	}

	var connOpts []func(*stomp.Conn) error
	if username, _ := params["username"].(string); username != "" {
		password, _ := params["password"].(string)
		connOpts = append(connOpts, stomp.ConnOpt.Login(username, password))
	}

	conn, err := stomp.Connect(netConn, connOpts...)
	if err != nil {
		netConn.Close()
		return fmt.Errorf("stomp handshake with garden %s failed: %w", garden.Name, err)
	}
	defer conn.Disconnect()

	body, err := json.Marshal(op)
	if err != nil {
		return err
	}

	dest, _ := params["send_destination"].(string)
	if dest == "" {
		dest = defaultSendDestination
	}

	if err := conn.Send(dest, "application/json", body, sendHeaders(params)...); err != nil {
		return fmt.Errorf("failed to send operation to garden %s: %w", garden.Name, err)
	}
	return nil
}

// sendHeaders turns the configured header pairs into frame options.
func sendHeaders(params map[string]any) []func(*frame.Frame) error {
	headers, ok := params["headers"].([]any)
	if !ok {
		return nil
	}

	var opts []func(*frame.Frame) error
	for _, item := range headers {
		pair, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, _ := pair["key"].(string)
		value, _ := pair["value"].(string)
		if key != "" {
			opts = append(opts, stomp.SendOpt.Header(key, value))
		}
	}
	return opts
}
