// Package ws is the websocket transport: one goroutine reads client frames,
// one write pump drains the session sink, and nothing else touches the
// connection. Reconnection recovery happens here; the broker only sees
// Attach, Resume, Suspend and Drop.
package ws

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

type Handler struct {
	log        *slog.Logger
	broker     contract.IBroker
	validate   *validator.Validate
	upgrader   websocket.Upgrader
	resume     *resumeCache
	bufferSize int
}

func NewHandler(log *slog.Logger, broker contract.IBroker, bufferSize int, resumeTTL time.Duration) *Handler {
	return &Handler{
		log:      log,
		broker:   broker,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		resume:     newResumeCache(resumeTTL),
		bufferSize: bufferSize,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleSocket)
}

// handleSocket owns one connection from upgrade to park-or-drop.
//
// The client declares where it stands via query parameters: offset is the
// last message ID it holds, resume a token from a previous welcome frame. A
// redeemed token restores the parked buffer and skips replay entirely;
// anything else is a fresh attach with replay from offset.
func (h *Handler) handleSocket(w http.ResponseWriter, r *http.Request) {
	sinceID, err := parseOffset(r.URL.Query().Get("offset"))
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionID, sink, recovered := h.attach(ctx, r.URL.Query().Get("resume"), sinceID)
	nextToken := uuid.NewString()

	// The welcome frame goes out before the write pump starts, so the
	// single-writer rule holds from the first byte.
	welcome := welcomeFrame{
		Type:        frameWelcome,
		SessionID:   sessionID,
		ResumeToken: nextToken,
		Recovered:   recovered,
	}
	if err := conn.WriteJSON(welcome); err != nil {
		h.log.Error("Welcome frame failed", "session_id", sessionID, "error", err)
		h.broker.Drop(context.Background(), sessionID)
		return
	}

	pumpDone := make(chan struct{})
	go h.writePump(ctx, cancel, conn, sink, pumpDone)

	h.readLoop(ctx, conn, sessionID)

	// Stop the pump before deciding the session's fate: once it has exited,
	// nothing consumes the sink and the buffer is parked intact.
	cancel()
	<-pumpDone

	if sink.Lost() {
		h.broker.Drop(context.Background(), sessionID)
		return
	}
	h.resume.Park(nextToken, sessionID, sink)
	h.broker.Suspend(context.Background(), sessionID)
}

// attach resolves the client's declared state into a live session. A failed
// resume falls back to a fresh attach so the log, not the buffer, closes
// the gap.
func (h *Handler) attach(ctx context.Context, token string, sinceID uint64) (string, *Sink, bool) {
	if token != "" {
		if parked, ok := h.resume.Take(token); ok {
			if err := h.broker.Resume(ctx, parked.sessionID); err == nil {
				return parked.sessionID, parked.sink, true
			}
			h.log.Info("Resume refused, falling back to replay", "session_id", parked.sessionID)
			h.broker.Drop(ctx, parked.sessionID)
		}
	}

	sessionID := uuid.NewString()
	sink := NewSink(h.bufferSize)
	h.broker.Attach(ctx, sessionID, sink, sinceID)
	return sessionID, sink, false
}

// writePump is the only writer after the welcome frame. A failed write marks
// the sink lost, because the event already left the buffer and a resume
// would silently skip it.
func (h *Handler) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sink *Sink, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				return
			}
		case evt := <-sink.Events():
			frame, ok := encodeFrame(evt)
			if !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				h.log.Warn("Write failed, buffer no longer resumable", "error", err)
				sink.MarkLost()
				cancel()
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("Read failed", "session_id", sessionID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.dispatch(ctx, sessionID, frame)
	}
}

// dispatch routes one client frame. Invalid frames are logged and dropped
// without an acknowledgement; the retry protocol only promises acks for
// submissions the log accepted.
func (h *Handler) dispatch(ctx context.Context, sessionID string, frame inboundFrame) {
	switch frame.Type {
	case frameSubmit:
		payload := submitPayload{Content: frame.Content, ClientOffset: frame.ClientOffset}
		if err := h.validate.Struct(payload); err != nil {
			h.log.Warn("Rejecting submission", "session_id", sessionID, "error", err)
			return
		}
		if _, err := h.broker.Submit(ctx, sessionID, frame.Content, frame.ClientOffset); err != nil {
			h.log.Error("Submission failed", "session_id", sessionID, "error", err)
		}
	case frameIdentity:
		if err := h.validate.Struct(identityPayload{Name: frame.Name}); err != nil {
			h.log.Warn("Rejecting identity", "session_id", sessionID, "error", err)
			return
		}
		if err := h.broker.Announce(ctx, sessionID, frame.Name); err != nil {
			h.log.Warn("Identity refused", "session_id", sessionID, "error", err)
		}
	case frameTyping:
		h.broker.Typing(ctx, sessionID, frame.Active)
	default:
		h.log.Warn("Unknown frame type", "session_id", sessionID, "type", frame.Type)
	}
}

func parseOffset(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
