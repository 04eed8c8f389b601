package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"broadcast-quiz-service/internal/app"
	"broadcast-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

type WSHandler struct {
	hub       *Hub
	service   *app.QuizService
	deliverer *app.Deliverer
	messages  *zap.Logger
	log       *zap.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler wires the chat socket. messages receives one entry per inbound message.
func NewWSHandler(hub *Hub, service *app.QuizService, deliverer *app.Deliverer, messages, log *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		service:   service,
		deliverer: deliverer,
		messages:  messages,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type commandPayload struct {
	Name string `json:"name"`
}

type optionPayload struct {
	MessageID string `json:"messageId"`
	Value     string `json:"value"`
}

// ServeWS upgrades HTTP requests to websockets and routes chat traffic through the quiz service.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		http.Error(w, "missing participantId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := h.hub.connect(participantID)
	h.log.Debug("participant connected", zap.String("participant", participantID))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			// a closed client leaves its buffer to the hub
			select {
			case <-c.done:
				_ = conn.Close()
				return
			default:
			}
			select {
			case msg := <-c.send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					h.log.Warn("ws write error", zap.String("participant", participantID), zap.Error(err))
					_ = conn.Close()
					return
				}
			case <-c.done:
				// replaced by a newer connection or reader finished
				_ = conn.Close()
				return
			}
		}
	}()

	// in-flight replies finish even if the socket drops mid-handle
	ctx := context.WithoutCancel(r.Context())
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handle(ctx, participantID, inbound)
	}

	h.hub.disconnect(participantID, c)
	<-writerDone
	h.log.Debug("participant disconnected", zap.String("participant", participantID))
}

func (h *WSHandler) handle(ctx context.Context, participantID string, inbound inboundMessage) {
	h.messages.Info("inbound message",
		zap.String("participant", participantID),
		zap.String("type", inbound.Type),
		zap.ByteString("payload", inbound.Payload),
	)

	var (
		reply domain.Reply
		err   error
	)
	switch inbound.Type {
	case "command":
		var payload commandPayload
		if json.Unmarshal(inbound.Payload, &payload) != nil {
			h.hub.sendError(ctx, participantID, "invalid command payload")
			return
		}
		switch payload.Name {
		case "start":
			reply, err = h.service.Start(ctx, participantID)
		case "rules":
			reply = h.service.Rules(ctx)
		case "hint":
			reply = h.service.Hint(ctx, participantID)
		case "stats":
			reply = h.service.Stats(ctx, participantID)
		case "admin":
			reply = h.service.Admin(ctx, participantID)
		default:
			h.hub.sendError(ctx, participantID, "unknown command")
			return
		}
	case "text":
		var payload textPayload
		if json.Unmarshal(inbound.Payload, &payload) != nil {
			h.hub.sendError(ctx, participantID, "invalid text payload")
			return
		}
		reply, err = h.service.HandleText(ctx, participantID, payload.Text)
	case "option":
		var payload optionPayload
		if json.Unmarshal(inbound.Payload, &payload) != nil || payload.Value == "" {
			h.hub.sendError(ctx, participantID, "invalid option payload")
			return
		}
		reply, err = h.service.HandleOption(ctx, participantID, payload.Value, payload.MessageID)
	default:
		h.hub.sendError(ctx, participantID, "unsupported message type")
		return
	}
	if err != nil {
		h.log.Error("handle inbound message",
			zap.String("participant", participantID),
			zap.String("type", inbound.Type),
			zap.Error(err),
		)
	}
	if err := h.deliverer.Deliver(ctx, participantID, reply); err != nil {
		h.log.Warn("reply not delivered", zap.String("participant", participantID), zap.Error(err))
	}
}
