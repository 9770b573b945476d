package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bufbuild/connect-go"
	"golang.org/x/net/http2"
)

// RunProcedure is the server-streaming RPC that starts a session.
const RunProcedure = "/claudeflow.engine.v1.EngineService/Run"

// ConnectSource streams sessions over a Connect server-streaming RPC on h2c.
type ConnectSource struct {
	client  *connect.Client[RunRequest, Envelope]
	timeout time.Duration
}

// NewConnectSource builds a source for the engine at baseURL. A non-zero timeout
// bounds each whole session.
func NewConnectSource(baseURL string, timeout time.Duration) *ConnectSource {
	return newConnectSource(buildH2CClient(), baseURL, timeout)
}

func newConnectSource(httpClient connect.HTTPClient, baseURL string, timeout time.Duration) *ConnectSource {
	url := strings.TrimRight(baseURL, "/") + RunProcedure
	return &ConnectSource{
		client:  connect.NewClient[RunRequest, Envelope](httpClient, url, connect.WithCodec(jsonCodec{})),
		timeout: timeout,
	}
}

// Stream starts the session and forwards decoded envelopes.
func (s *ConnectSource) Stream(ctx context.Context, req RunRequest) (<-chan Event, <-chan error) {
	ch := make(chan Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(ch)

		ctx, cancel := withOptionalTimeout(ctx, s.timeout)
		defer cancel()

		stream, err := s.client.CallServerStream(ctx, connect.NewRequest(&req))
		if err != nil {
			errCh <- fmt.Errorf("start session: %w", err)
			return
		}
		defer stream.Close()

		for stream.Receive() {
			ev, err := stream.Msg().Decode()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("receive: %w", err)
		}
	}()

	return ch, errCh
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
