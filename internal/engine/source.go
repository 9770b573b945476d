package engine

import (
	"fmt"
	"strings"
	"time"
)

// Transport names accepted by NewSource.
const (
	TransportConnect = "connect"
	TransportNDJSON  = "ndjson"
)

// NewSource picks the source implementation for transport.
func NewSource(transport, baseURL string, timeout time.Duration) (Source, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("engine base url is required")
	}
	switch strings.ToLower(strings.TrimSpace(transport)) {
	case "", TransportConnect:
		return NewConnectSource(baseURL, timeout), nil
	case TransportNDJSON:
		return NewNDJSONSource(baseURL, timeout), nil
	default:
		return nil, fmt.Errorf("unknown engine transport %q", transport)
	}
}
