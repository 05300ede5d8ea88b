package realtime

import (
	"fmt"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

// Frame types exchanged on the live chat channel.
const (
	FrameChat    = "chat"
	FramePing    = "ping"
	FramePong    = "pong"
	FrameMessage = "message"
	FrameError   = "error"
	FrameStatus  = "status"
)

const (
	welcomeText      = "Hello! I can help you analyze your financial documents. Try asking me about invoices, expenses, or document insights."
	turnFailedText   = "An error occurred while processing your message."
	malformedText    = "Malformed message: expected a JSON object with a type field."
	emptyContentText = "Chat messages need non-empty content."
	tooLargeText     = "Message too large."
)

// Frame is one JSON message on the live channel, in either direction.
type Frame struct {
	Type      string              `json:"type"`
	Content   string              `json:"content,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	IsFromBot bool                `json:"isFromBot"`
	ClientID  string              `json:"clientId,omitempty"`
	SessionID string              `json:"sessionId,omitempty"`
	Document  *domain.StatusEvent `json:"document,omitempty"`
}

// inboundFrame is what clients send; unknown fields are ignored.
type inboundFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
}

func statusFrame(event domain.StatusEvent) Frame {
	ev := event
	content := fmt.Sprintf("%s is %s", ev.Filename, ev.Status)
	if ev.Stage != "" {
		content = fmt.Sprintf("%s is %s (%s, %d%%)", ev.Filename, ev.Status, ev.Stage, ev.Progress)
	}
	return Frame{
		Type:      FrameStatus,
		Content:   content,
		Timestamp: ev.At,
		IsFromBot: true,
		Document:  &ev,
	}
}
