// Package transcript renders a ticket's message history into bounded chunks.
package transcript

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

// DefaultChunkSize matches the platform's embed description limit.
const DefaultChunkSize = 4000

const timestampLayout = "2006-01-02 15:04:05"

// HistoryFunc fetches a channel's full history, oldest first.
type HistoryFunc func(ctx context.Context) ([]domain.TicketMessage, error)

// Builder packs rendered lines into chunks of at most ChunkSize runes.
type Builder struct {
	ChunkSize int
	Location  *time.Location
}

// NewBuilder returns a builder; non-positive sizes use DefaultChunkSize.
func NewBuilder(chunkSize int, loc *time.Location) Builder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if loc == nil {
		loc = time.UTC
	}
	return Builder{ChunkSize: chunkSize, Location: loc}
}

// RenderLine formats one message, followed by one line per attachment.
func (b Builder) RenderLine(m domain.TicketMessage) string {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s (%s): %s\n", m.CreatedAt.In(loc).Format(timestampLayout), m.AuthorName, m.AuthorID, m.Content)
	for _, url := range m.Attachments {
		fmt.Fprintf(&sb, "📎 ATTACHMENT: %s\n", url)
	}
	return sb.String()
}

// Build returns a lazy, one-shot sequence of chunks. History is fetched when
// iteration starts; iterating again fetches again. A new chunk starts when the
// next line would push the current one past the bound. A single line longer
// than the bound is split across chunks.
func (b Builder) Build(ctx context.Context, fetch HistoryFunc) iter.Seq2[string, error] {
	limit := b.ChunkSize
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	return func(yield func(string, error) bool) {
		messages, err := fetch(ctx)
		if err != nil {
			yield("", fmt.Errorf("fetch history: %w", err))
			return
		}

		var buf strings.Builder
		size := 0
		flush := func() bool {
			if size == 0 {
				return true
			}
			chunk := buf.String()
			buf.Reset()
			size = 0
			return yield(chunk, nil)
		}

		for _, m := range messages {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			line := b.RenderLine(m)
			n := utf8.RuneCountInString(line)
			if size+n > limit {
				if !flush() {
					return
				}
			}
			for n > limit {
				runes := []rune(line)
				if !yield(string(runes[:limit]), nil) {
					return
				}
				line = string(runes[limit:])
				n -= limit
			}
			buf.WriteString(line)
			size += n
		}
		flush()
	}
}

// Collect drains a chunk sequence, stopping at the first error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var chunks []string
	for chunk, err := range seq {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
