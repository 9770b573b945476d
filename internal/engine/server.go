package engine

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bufbuild/connect-go"
)

// RunFunc produces a session on the engine side. It calls emit once per event, in
// order, and returns a non-nil error to end the stream with an error envelope.
type RunFunc func(ctx context.Context, req RunRequest, emit func(Event) error) error

// NewConnectHandler serves RunProcedure with fn. It is the engine side of
// ConnectSource, used by stand-in engines.
func NewConnectHandler(fn RunFunc) (string, http.Handler) {
	return RunProcedure, connect.NewServerStreamHandler(RunProcedure,
		func(ctx context.Context, req *connect.Request[RunRequest], stream *connect.ServerStream[Envelope]) error {
			emit := func(ev Event) error {
				env := EnvelopeOf(ev)
				return stream.Send(&env)
			}
			if err := fn(ctx, *req.Msg, emit); err != nil {
				env := ErrorEnvelope(err)
				return stream.Send(&env)
			}
			return nil
		},
		connect.WithCodec(jsonCodec{}),
	)
}

// NDJSONHandler serves RunPath with fn. It is the engine side of NDJSONSource.
type NDJSONHandler struct {
	Run RunFunc
}

func (h NDJSONHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	emit := func(ev Event) error {
		if err := enc.Encode(EnvelopeOf(ev)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := h.Run(r.Context(), req, emit); err != nil {
		_ = enc.Encode(ErrorEnvelope(err))
		flusher.Flush()
	}
}
