package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chat-broker/domain"
	"chat-broker/domain/event"
	apperrors "chat-broker/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSink_Consume_Buffers_Until_Full(t *testing.T) {
	req := require.New(t)
	sink := NewSink(2)
	ctx := context.Background()
	posted := event.MessagePosted{ID: uuid.New(), Room: domain.RoomID("lobby"), Sender: "alice", Body: "hi"}

	// Two events fit the buffer
	req.NoError(sink.Consume(ctx, posted))
	req.NoError(sink.Consume(ctx, posted))

	// The third is dropped instead of blocking the broadcaster
	req.ErrorIs(sink.Consume(ctx, posted), apperrors.ErrSlowConsumer)

	// Draining makes room again
	<-sink.Events()
	req.NoError(sink.Consume(ctx, posted))
}

func TestToFrame(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()

	// A posted message keeps sender, body and timestamp
	frame, ok := toFrame(event.MessagePosted{
		ID: uuid.New(), Room: domain.RoomID("lobby"), Sender: "alice", Body: "hello", At: at,
	})
	req.True(ok)
	req.Equal("alice", frame.Username)
	req.Equal("hello", frame.Message)
	req.Equal(at, *frame.Timestamp)

	// A history gap renders as a System notice without timestamp
	frame, ok = toFrame(event.HistoryGap{Room: domain.RoomID("lobby"), At: at})
	req.True(ok)
	req.Equal(domain.SystemSender, frame.Username)
	req.Equal(historyGapNotice, frame.Message)
	req.Nil(frame.Timestamp)
}

func TestOutboundFrame_Timestamp_Omitted_When_Absent(t *testing.T) {
	req := require.New(t)

	data, err := json.Marshal(outboundFrame{Username: "System", Message: "notice"})
	req.NoError(err)
	req.NotContains(string(data), "timestamp")
}
