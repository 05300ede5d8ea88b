package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

const maxInboundFrameBytes = 64 << 10

// ChannelObserver receives live channel telemetry.
type ChannelObserver interface {
	WSConnected()
	WSDisconnected()
	RecordWSFrame(direction, frameType string)
	RecordChatTurn(channel string, duration time.Duration, err error)
}

type ChannelOptions struct {
	// AllowedOrigins lists browser origins accepted during the handshake; "*" accepts any.
	// Requests without an Origin header are always accepted.
	AllowedOrigins []string
	TurnTimeout    time.Duration
	Observer       ChannelObserver
}

// ChatChannel serves the bidirectional chat connection.
type ChatChannel struct {
	hub      *Hub
	chat     ports.ChatService
	userOf   func(*http.Request) string
	origins  map[string]struct{}
	anyOrig  bool
	timeout  time.Duration
	observer ChannelObserver
	now      func() time.Time
}

func NewChatChannel(hub *Hub, chat ports.ChatService, userOf func(*http.Request) string, opts ChannelOptions) *ChatChannel {
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	anyOrigin := false
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			anyOrigin = true
		}
		if o != "" {
			origins[o] = struct{}{}
		}
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopChannelObserver{}
	}
	return &ChatChannel{
		hub:      hub,
		chat:     chat,
		userOf:   userOf,
		origins:  origins,
		anyOrig:  anyOrigin,
		timeout:  opts.TurnTimeout,
		observer: observer,
		now:      time.Now,
	}
}

func (c *ChatChannel) Handler() http.Handler {
	return websocket.Server{
		Handshake: c.handshake,
		Handler:   c.serve,
	}
}

func (c *ChatChannel) handshake(cfg *websocket.Config, req *http.Request) error {
	origin := strings.TrimRight(req.Header.Get("Origin"), "/")
	if origin == "" || c.anyOrig {
		return nil
	}
	if _, ok := c.origins[origin]; !ok {
		slog.Warn("ws_origin_rejected", "origin", origin)
		return domain.WrapError(domain.ErrUnauthorized, "ws handshake", errors.New("origin not allowed"))
	}
	parsed, err := websocket.Origin(cfg, req)
	if err != nil {
		return err
	}
	cfg.Origin = parsed
	return nil
}

func (c *ChatChannel) serve(conn *websocket.Conn) {
	conn.MaxPayloadBytes = maxInboundFrameBytes
	req := conn.Request()
	userID := c.userOf(req)

	client := c.hub.Register(userID)
	c.observer.WSConnected()

	ctx, cancel := context.WithCancel(context.WithoutCancel(req.Context()))
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(conn, client)
	}()

	defer func() {
		cancel()
		c.hub.Deregister(client)
		<-writerDone
		_ = conn.Close()
		c.observer.WSDisconnected()
	}()

	_ = c.hub.SendTo(client.ID, Frame{
		Type:      FrameMessage,
		Content:   welcomeText,
		IsFromBot: true,
		ClientID:  client.ID,
	})

	for {
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			// the oversized frame is drained by the next Receive
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				c.observer.RecordWSFrame("in", "too_large")
				c.reply(client, Frame{Type: FrameError, Content: tooLargeText})
				continue
			}
			if !errors.Is(err, io.EOF) {
				slog.Warn("ws_receive_failed", "client_id", client.ID, "error", err)
			}
			return
		}
		select {
		case <-client.Done():
			return
		default:
		}
		c.handleFrame(ctx, client, raw)
	}
}

func (c *ChatChannel) handleFrame(ctx context.Context, client *Client, raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		c.observer.RecordWSFrame("in", "malformed")
		c.reply(client, Frame{Type: FrameError, Content: malformedText})
		return
	}
	c.observer.RecordWSFrame("in", in.Type)

	switch in.Type {
	case FramePing:
		c.reply(client, Frame{Type: FramePong})
	case FrameChat:
		c.chatTurn(ctx, client, in)
	default:
		c.reply(client, Frame{Type: FrameError, Content: "Unsupported message type: " + in.Type})
	}
}

func (c *ChatChannel) chatTurn(ctx context.Context, client *Client, in inboundFrame) {
	if strings.TrimSpace(in.Content) == "" {
		c.reply(client, Frame{Type: FrameError, Content: emptyContentText})
		return
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := c.now()
	turn, err := c.chat.SendMessage(ctx, client.UserID, in.SessionID, in.Content)
	c.observer.RecordChatTurn("ws", c.now().Sub(start), err)
	if err != nil {
		slog.Error("ws_chat_turn_failed", "client_id", client.ID, "user_id", client.UserID, "error", err)
		c.reply(client, Frame{Type: FrameError, Content: turnFailedText})
		return
	}
	c.reply(client, Frame{
		Type:      FrameMessage,
		Content:   turn.AssistantMessage.Content,
		Timestamp: turn.AssistantMessage.Timestamp,
		IsFromBot: true,
		SessionID: turn.Session.ID,
	})
}

func (c *ChatChannel) reply(client *Client, frame Frame) {
	frame.ClientID = client.ID
	if err := c.hub.SendTo(client.ID, frame); err != nil {
		slog.Warn("ws_reply_dropped", "client_id", client.ID, "type", frame.Type, "error", err)
	}
}

// writeLoop is the only writer on conn.
func (c *ChatChannel) writeLoop(conn *websocket.Conn, client *Client) {
	for {
		select {
		case <-client.Done():
			return
		case frame := <-client.Outbound():
			if err := websocket.JSON.Send(conn, frame); err != nil {
				slog.Warn("ws_send_failed", "client_id", client.ID, "error", err)
				c.hub.Deregister(client)
				_ = conn.Close()
				return
			}
			c.observer.RecordWSFrame("out", frame.Type)
		}
	}
}

type noopChannelObserver struct{}

func (noopChannelObserver) WSConnected()                                {}
func (noopChannelObserver) WSDisconnected()                             {}
func (noopChannelObserver) RecordWSFrame(string, string)                {}
func (noopChannelObserver) RecordChatTurn(string, time.Duration, error) {}
