// Package search maintains a full-text read model over persisted messages.
// It consumes coordinator events and never feeds anything back into the
// broadcast path.
package search

import (
	"context"
	"log/slog"
	"time"

	"chat-broker/domain"
	"chat-broker/domain/event"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
)

// MessageIndex indexes every persisted message into Bluge, tagging each
// document with a detected language facet.
type MessageIndex struct {
	log    *slog.Logger
	writer *bluge.Writer
}

func NewMessageIndex(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &MessageIndex{log: log, writer: writer}, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

// Consume implements contract.EventSink. Announcements are skipped: only
// user messages are searchable.
func (i *MessageIndex) Consume(ctx context.Context, e event.DomainEvent) error {
	posted, ok := e.(event.MessagePosted)
	if !ok || posted.Sender == domain.SystemSender {
		return nil
	}

	lang := whatlanggo.Detect(posted.Body).Lang.Iso6391()
	doc := bluge.NewDocument(posted.ID.String()).
		AddField(bluge.NewKeywordField("room", string(posted.Room)).StoreValue()).
		AddField(bluge.NewKeywordField("sender", posted.Sender).StoreValue()).
		AddField(bluge.NewTextField("body", posted.Body).StoreValue()).
		AddField(bluge.NewKeywordField("lang", lang).StoreValue()).
		AddField(bluge.NewDateTimeField("at", posted.At).StoreValue())

	return i.writer.Update(doc.ID(), doc)
}

// Hit is one search result, hydrated from stored fields.
type Hit struct {
	MessageID string    `json:"message_id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Lang      string    `json:"lang"`
	At        time.Time `json:"at"`
}

// Search runs the parsed query against the index.
func (i *MessageIndex) Search(ctx context.Context, q *Query) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(q.Terms).SetField("body"))
	if q.Room != "" {
		query.AddMust(bluge.NewTermQuery(q.Room).SetField("room"))
	}
	if q.Lang != "" {
		query.AddMust(bluge.NewTermQuery(q.Lang).SetField("lang"))
	}

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(q.Limit, query))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var hit Hit
		if err := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "room":
				hit.Room = string(value)
			case "sender":
				hit.Sender = string(value)
			case "body":
				hit.Body = string(value)
			case "lang":
				hit.Lang = string(value)
			case "at":
				if at, err := bluge.DecodeDateTime(value); err == nil {
					hit.At = at
				}
			}
			return true
		}); err != nil {
			i.log.Warn("stored field visit failed", "error", err)
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
