package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-broker/domain"
	"chat-broker/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *MessageIndex {
	t.Helper()
	index, err := NewMessageIndex(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func posted(room, sender, body string) event.MessagePosted {
	return event.MessagePosted{
		ID:     uuid.New(),
		Room:   domain.RoomID(room),
		Sender: sender,
		Body:   body,
		At:     time.Now().UTC(),
	}
}

func TestMessageIndex_Search_By_Body(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := context.Background()

	// Given indexed messages in two rooms
	invoice := posted("lobby", "alice", "the quarterly invoice is overdue")
	req.NoError(index.Consume(ctx, invoice))
	req.NoError(index.Consume(ctx, posted("lobby", "bob", "lunch at noon?")))
	req.NoError(index.Consume(ctx, posted("random", "carol", "another invoice arrived")))

	// When searching by body terms
	hits, err := index.Search(ctx, ParseQuery("invoice"))
	req.NoError(err)

	// Then both invoice messages match
	req.Len(hits, 2)
	for _, hit := range hits {
		req.Contains(hit.Body, "invoice")
		req.NotEmpty(hit.MessageID)
		req.False(hit.At.IsZero())
	}
}

func TestMessageIndex_Search_Room_Filter(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := context.Background()

	req.NoError(index.Consume(ctx, posted("lobby", "alice", "the quarterly invoice is overdue")))
	req.NoError(index.Consume(ctx, posted("random", "carol", "another invoice arrived")))

	hits, err := index.Search(ctx, ParseQuery("invoice --room lobby"))
	req.NoError(err)

	req.Len(hits, 1)
	req.Equal("lobby", hits[0].Room)
	req.Equal("alice", hits[0].Sender)
}

func TestMessageIndex_Search_Honors_Limit(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := context.Background()

	for range 5 {
		req.NoError(index.Consume(ctx, posted("lobby", "alice", "invoice reminder")))
	}

	hits, err := index.Search(ctx, ParseQuery("invoice --limit 3"))
	req.NoError(err)
	req.Len(hits, 3)
}

func TestMessageIndex_Skips_Announcements(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	ctx := context.Background()

	// Given an announcement alongside a user message
	req.NoError(index.Consume(ctx, posted("lobby", domain.SystemSender, "alice has joined the room.")))
	req.NoError(index.Consume(ctx, posted("lobby", "alice", "she joined indeed")))

	hits, err := index.Search(ctx, ParseQuery("joined"))
	req.NoError(err)

	// Then only the user message is searchable
	req.Len(hits, 1)
	req.Equal("alice", hits[0].Sender)
}

func TestMessageIndex_Skips_Non_Message_Events(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	// A gap notice is not indexable content
	err := index.Consume(context.Background(), event.HistoryGap{Room: domain.RoomID("lobby"), At: time.Now().UTC()})
	req.NoError(err)
}
