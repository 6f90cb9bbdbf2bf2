package domain

import "time"

// TicketMessage is one message read back from a ticket channel.
type TicketMessage struct {
	ID          string
	AuthorID    string
	AuthorName  string
	Content     string
	Attachments []string
	CreatedAt   time.Time
}

// TranscriptChunk is one stored piece of a closed ticket's transcript.
type TranscriptChunk struct {
	TicketID string
	Sequence int
	Body     string
}
