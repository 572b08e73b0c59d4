package sse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/trendwatch/pkg/gate"
	"github.com/dmitrymomot/trendwatch/pkg/logger"
	"github.com/dmitrymomot/trendwatch/pkg/protocol"
)

const (
	defaultHeartbeat = 30 * time.Second
	maxMessageBytes  = 64 << 10
)

// ControlPlane is the slice of the pipeline the transport needs.
// pipeline.Pipeline satisfies it.
type ControlPlane interface {
	Connect(ctx context.Context, token string) (gate.Identity, error)
	Disconnect(clientID string)
	HandleMessage(ctx context.Context, id gate.Identity, raw []byte) *protocol.Frame
}

// Handler serves the SSE stream and the inbound message endpoint.
type Handler struct {
	transport *Transport
	control   ControlPlane
	log       *slog.Logger
	heartbeat time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHeartbeat sets the keep-alive comment interval.
func WithHeartbeat(interval time.Duration) HandlerOption {
	return func(h *Handler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// NewHandler builds a handler over the given transport and control plane.
func NewHandler(transport *Transport, control ControlPlane, opts ...HandlerOption) *Handler {
	h := &Handler{
		transport: transport,
		control:   control,
		log:       slog.Default(),
		heartbeat: defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router fragment: the event stream and the inbound
// message endpoint.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stream", h.handleStream)
	r.Post("/clients/{clientID}/messages", h.handleMessage)
	return r
}

// handleStream upgrades the request to an SSE stream. The first frame is a
// connect frame carrying the allocated client id; the stream then relays
// every payload queued for the client until either side disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, ErrStreamingUnsupported.Error(), http.StatusInternalServerError)
		return
	}

	id, err := h.control.Connect(r.Context(), bearerToken(r))
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	s := h.transport.attach(id)
	defer func() {
		h.transport.detach(id.ClientID)
		h.control.Disconnect(id.ClientID)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	connect := protocol.NewFrame(protocol.MessageConnect, "", map[string]string{
		"client_id": id.ClientID,
		"user_id":   id.UserID,
	})
	if raw, err := connect.Encode(); err == nil {
		writeEvent(w, flusher, raw)
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case payload := <-s.out:
			writeEvent(w, flusher, payload)
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleMessage accepts one inbound control-plane message for an open
// stream. Violations are delivered back as error frames on the stream, so
// the HTTP response only distinguishes accepted from unknown client.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	s, ok := h.transport.lookup(clientID)
	if !ok {
		http.Error(w, "unknown client", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if frame := h.control.HandleMessage(r.Context(), s.identity, body); frame != nil {
		raw, err := frame.Encode()
		if err == nil {
			if err := h.transport.Send(r.Context(), clientID, raw); err != nil {
				h.log.Warn("failed to deliver error frame",
					logger.ClientID(clientID), logger.Error(err))
			}
		}
	}

	// A disconnect message tears the stream down as well.
	if msg, err := protocol.Decode(body); err == nil && msg.Type == protocol.MessageDisconnect {
		h.transport.detach(clientID)
	}

	w.WriteHeader(http.StatusAccepted)
}

// bearerToken extracts the auth token from the Authorization header or the
// token query parameter. EventSource clients cannot set headers, hence the
// query fallback.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

func writeEvent(w io.Writer, flusher http.Flusher, payload []byte) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
