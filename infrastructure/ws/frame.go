package ws

import (
	"time"

	"chat-broker/domain"
	"chat-broker/domain/event"
)

// inboundFrame is one client event: auth, join, leave or send_message.
type inboundFrame struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	Room    string `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	frameAuth  = "auth"
	frameJoin  = "join"
	frameLeave = "leave"
	frameSend  = "send_message"
)

// outboundFrame is the single delivery shape: history replay entries, live
// messages and System announcements all render the same way.
type outboundFrame struct {
	Username  string     `json:"username"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

const historyGapNotice = "Message history is currently unavailable."

func toFrame(e event.DomainEvent) (outboundFrame, bool) {
	switch evt := e.(type) {
	case event.MessagePosted:
		at := evt.At
		return outboundFrame{Username: evt.Sender, Message: evt.Body, Timestamp: &at}, true
	case event.HistoryGap:
		return outboundFrame{Username: domain.SystemSender, Message: historyGapNotice}, true
	default:
		return outboundFrame{}, false
	}
}
