package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/scene"
)

// streamFrame is the outbound message: a chat response or an error.
type streamFrame struct {
	*scene.ChatResponse
	Error  string `json:"error,omitempty"`
	Status int    `json:"status,omitempty"`
}

// handleChatStream upgrades to a WebSocket. Each inbound JSON chat request
// is answered by exactly one frame, in order. A malformed frame gets an
// error frame and the connection stays open.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	if s.metrics != nil {
		s.metrics.ActiveStreams.Add(ctx, 1)
		defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)
	}
	log := observe.Logger(ctx)
	log.Debug("chat stream opened")

	for {
		// wsjson.Read closes the connection on bad JSON, so frames are
		// decoded here.
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Warn("chat stream read failed", "err", err)
			}
			log.Debug("chat stream closed", "err", err)
			return
		}
		var req scene.ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			frame := streamFrame{Error: "api: decode frame: " + err.Error(), Status: http.StatusBadRequest}
			if err := s.writeFrame(ctx, conn, frame); err != nil {
				return
			}
			continue
		}

		resp, err := s.chatOnce(ctx, req)
		frame := streamFrame{ChatResponse: resp}
		if err != nil {
			status := statusFor(err)
			log.Log(ctx, levelFor(status), "chat stream turn failed", "status", status, "err", err)
			frame = streamFrame{Error: err.Error(), Status: status}
		}
		if err := s.writeFrame(ctx, conn, frame); err != nil {
			log.Debug("chat stream write failed", "err", err)
			return
		}
	}
}

// chatOnce runs one turn under the per-request timeout.
func (s *Server) chatOnce(ctx context.Context, req scene.ChatRequest) (*scene.ChatResponse, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.deps.Chat.Chat(ctx, req)
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, f streamFrame) error {
	return wsjson.Write(ctx, conn, f)
}
