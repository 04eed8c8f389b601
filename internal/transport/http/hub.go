package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"broadcast-quiz-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MediaResolver turns a media reference into a URL the client can fetch.
type MediaResolver interface {
	Resolve(ctx context.Context, m domain.Media) (string, error)
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type textPayload struct {
	Text string `json:"text"`
}

type mediaPayload struct {
	Kind    domain.MediaKind `json:"kind"`
	URL     string           `json:"url"`
	Caption string           `json:"caption,omitempty"`
}

type optionsPayload struct {
	MessageID string   `json:"messageId"`
	Prompt    string   `json:"prompt"`
	Options   []string `json:"options"`
}

type clearOptionsPayload struct {
	MessageID string `json:"messageId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type client struct {
	send chan outboundMessage[any]
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// HubOptions tunes delivery.
type HubOptions struct {
	SendTimeout time.Duration
	// Mailbox bounds the messages queued for an offline participant.
	Mailbox  int
	AdminIDs []string
}

// Hub routes outbound messages to connected participants. It implements
// app.Transport and app.Alerter.
type Hub struct {
	resolver MediaResolver
	opts     HubOptions
	log      *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
	mailbox map[string][]outboundMessage[any]
	// option sets still on screen, by message id
	options map[string]string
}

func NewHub(resolver MediaResolver, log *zap.Logger, opts HubOptions) *Hub {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.Mailbox <= 0 {
		opts.Mailbox = 32
	}
	return &Hub{
		resolver: resolver,
		opts:     opts,
		log:      log,
		clients:  make(map[string]*client),
		mailbox:  make(map[string][]outboundMessage[any]),
		options:  make(map[string]string),
	}
}

// connect attaches a client for the participant, replacing any previous
// connection, and hands it the queued mailbox. Messages still buffered for
// the replaced connection move to the new one.
func (h *Hub) connect(participantID string) *client {
	c := &client{
		send: make(chan outboundMessage[any], h.opts.Mailbox+16),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	prev, replaced := h.clients[participantID]
	h.clients[participantID] = c
	if replaced {
		prev.close()
		h.rescueLocked(participantID, prev)
	}
	for _, msg := range h.mailbox[participantID] {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("mailbox message dropped on connect", zap.String("participant", participantID))
		}
	}
	delete(h.mailbox, participantID)
	return c
}

// disconnect detaches c and returns its undelivered messages to the mailbox.
func (h *Hub) disconnect(participantID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[participantID] == c {
		delete(h.clients, participantID)
	}
	c.close()
	h.rescueLocked(participantID, c)
}

// rescueLocked drains a closed client's buffer into the live connection or,
// when there is none, the mailbox. h.mu must be held.
func (h *Hub) rescueLocked(participantID string, c *client) {
	for {
		var msg outboundMessage[any]
		select {
		case msg = <-c.send:
		default:
			return
		}
		if live, ok := h.clients[participantID]; ok && live != c {
			select {
			case live.send <- msg:
				continue
			default:
			}
		}
		if len(h.mailbox[participantID]) >= h.opts.Mailbox {
			h.log.Warn("mailbox full, message dropped", zap.String("participant", participantID), zap.String("type", msg.Type))
			continue
		}
		h.mailbox[participantID] = append(h.mailbox[participantID], msg)
	}
}

// Connected reports whether the participant has a live connection.
func (h *Hub) Connected(participantID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[participantID]
	return ok
}

func (h *Hub) deliver(ctx context.Context, participantID string, msg outboundMessage[any]) error {
	h.mu.Lock()
	c, ok := h.clients[participantID]
	if !ok {
		defer h.mu.Unlock()
		if len(h.mailbox[participantID]) >= h.opts.Mailbox {
			return domain.ErrNotConnected
		}
		h.mailbox[participantID] = append(h.mailbox[participantID], msg)
		return nil
	}
	select {
	case c.send <- msg:
		h.mu.Unlock()
		return nil
	default:
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.opts.SendTimeout)
	defer cancel()
	select {
	case c.send <- msg:
		// the connection may have gone while we waited for buffer room
		h.mu.Lock()
		if h.clients[participantID] != c {
			h.rescueLocked(participantID, c)
		}
		h.mu.Unlock()
		return nil
	case <-c.done:
		return domain.ErrNotConnected
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ErrSendTimeout
		}
		return ctx.Err()
	}
}

func (h *Hub) SendText(ctx context.Context, participantID, text string) error {
	return h.deliver(ctx, participantID, outboundMessage[any]{Type: "text", Payload: textPayload{Text: text}})
}

func (h *Hub) SendMedia(ctx context.Context, participantID string, media domain.Media, caption string) error {
	url, err := h.resolver.Resolve(ctx, media)
	if err != nil {
		return err
	}
	return h.deliver(ctx, participantID, outboundMessage[any]{Type: "media", Payload: mediaPayload{
		Kind:    media.Kind,
		URL:     url,
		Caption: caption,
	}})
}

func (h *Hub) SendOptions(ctx context.Context, participantID, prompt string, options []string) (string, error) {
	ref := uuid.NewString()
	h.mu.Lock()
	h.options[ref] = participantID
	h.mu.Unlock()

	err := h.deliver(ctx, participantID, outboundMessage[any]{Type: "options", Payload: optionsPayload{
		MessageID: ref,
		Prompt:    prompt,
		Options:   options,
	}})
	if err != nil {
		h.mu.Lock()
		delete(h.options, ref)
		h.mu.Unlock()
		return "", err
	}
	return ref, nil
}

// ClearOptions retracts an option set. Unknown or already cleared refs are a no-op.
func (h *Hub) ClearOptions(ctx context.Context, participantID, messageRef string) error {
	h.mu.Lock()
	owner, ok := h.options[messageRef]
	if !ok || owner != participantID {
		h.mu.Unlock()
		return nil
	}
	delete(h.options, messageRef)
	h.mu.Unlock()

	return h.deliver(ctx, participantID, outboundMessage[any]{Type: "clearOptions", Payload: clearOptionsPayload{MessageID: messageRef}})
}

// BroadcastAdminAlert sends text to every configured admin. Failures are logged.
func (h *Hub) BroadcastAdminAlert(ctx context.Context, text string) {
	h.log.Info("admin alert", zap.String("text", text))
	for _, id := range h.opts.AdminIDs {
		if err := h.deliver(ctx, id, outboundMessage[any]{Type: "alert", Payload: textPayload{Text: text}}); err != nil {
			h.log.Warn("admin alert not delivered", zap.String("admin", id), zap.Error(err))
		}
	}
}

func (h *Hub) sendError(ctx context.Context, participantID, message string) {
	if err := h.deliver(ctx, participantID, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}); err != nil {
		h.log.Warn("error reply not delivered", zap.String("participant", participantID), zap.Error(err))
	}
}
