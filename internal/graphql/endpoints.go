// Package graphql implements GraphQL over HTTP and the graphql-transport-ws
// subscription protocol for talking to an instance.
package graphql

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// HTTPPath is the request/response endpoint path
	HTTPPath = "/graphql"

	// WebSocketPath is the subscription endpoint path
	WebSocketPath = "/ws/graphql"
)

// Endpoints are the URLs derived from an instance base address
type Endpoints struct {
	HTTP      string
	WebSocket string
}

// ResolveEndpoints derives both endpoints from an instance base address such
// as http://localhost:8080. The WebSocket endpoint keeps the host and port
// and upgrades the scheme: https becomes wss, http becomes ws.
func ResolveEndpoints(instanceURL string) (Endpoints, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(instanceURL), "/"))
	if err != nil {
		return Endpoints{}, fmt.Errorf("invalid instance URL: %w", err)
	}
	if base.Host == "" {
		return Endpoints{}, fmt.Errorf("invalid instance URL %q: missing host", instanceURL)
	}

	var wsScheme string
	switch base.Scheme {
	case "https":
		wsScheme = "wss"
	case "http":
		wsScheme = "ws"
	default:
		return Endpoints{}, fmt.Errorf("invalid instance URL %q: unsupported scheme %q", instanceURL, base.Scheme)
	}

	httpURL := url.URL{Scheme: base.Scheme, Host: base.Host, Path: HTTPPath}
	wsURL := url.URL{Scheme: wsScheme, Host: base.Host, Path: WebSocketPath}

	return Endpoints{
		HTTP:      httpURL.String(),
		WebSocket: wsURL.String(),
	}, nil
}
