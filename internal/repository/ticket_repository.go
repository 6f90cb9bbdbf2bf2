package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

// TicketFilter captures archive search parameters.
type TicketFilter struct {
	OwnerID      *string
	States       []domain.TicketState
	RewardKey    *string
	GrantApplied *bool
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// TicketRepository archives ticket metadata and transcripts.
type TicketRepository interface {
	Save(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	SaveTranscript(ctx context.Context, ticketID string, chunks []string) error
	ListTranscript(ctx context.Context, ticketID string) ([]domain.TranscriptChunk, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, owner_id, owner_name, channel_id, channel_name, origin_channel_id,
               state, reward_key, created_at, updated_at, delivered_at, closed_at, closed_by_id, grant_applied`

// Save upserts the ticket row keyed by ID.
func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, external_key, owner_id, owner_name, channel_id, channel_name, origin_channel_id,
            state, reward_key, created_at, updated_at, delivered_at, closed_at, closed_by_id, grant_applied)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (id) DO UPDATE SET
            state=EXCLUDED.state, reward_key=EXCLUDED.reward_key, updated_at=EXCLUDED.updated_at,
            delivered_at=EXCLUDED.delivered_at, closed_at=EXCLUDED.closed_at,
            closed_by_id=EXCLUDED.closed_by_id, grant_applied=EXCLUDED.grant_applied`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.ExternalKey,
		ticket.OwnerID,
		ticket.OwnerName,
		ticket.ChannelID,
		ticket.ChannelName,
		ticket.OriginChannelID,
		ticket.State,
		ticket.RewardKey,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.DeliveredAt,
		ticket.ClosedAt,
		ticket.ClosedByID,
		ticket.GrantApplied,
	)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id::text=$1 OR external_key=$1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tickets[0], nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RewardKey != nil {
		args = append(args, domain.NormalizeRewardKey(*filter.RewardKey))
		clauses = append(clauses, fmt.Sprintf("reward_key=$%d", len(args)))
	}
	if filter.GrantApplied != nil {
		args = append(args, *filter.GrantApplied)
		clauses = append(clauses, fmt.Sprintf("grant_applied=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// SaveTranscript replaces the stored chunks for a ticket in one batch.
func (r *ticketRepository) SaveTranscript(ctx context.Context, ticketID string, chunks []string) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM ticket_transcripts WHERE ticket_id=$1`, ticketID)
	for i, chunk := range chunks {
		batch.Queue(`INSERT INTO ticket_transcripts (ticket_id, sequence, body) VALUES ($1,$2,$3)`, ticketID, i+1, chunk)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *ticketRepository) ListTranscript(ctx context.Context, ticketID string) ([]domain.TranscriptChunk, error) {
	const query = `SELECT ticket_id, sequence, body FROM ticket_transcripts WHERE ticket_id=$1 ORDER BY sequence ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TranscriptChunk
	for rows.Next() {
		var chunk domain.TranscriptChunk
		if err := rows.Scan(&chunk.TicketID, &chunk.Sequence, &chunk.Body); err != nil {
			return nil, err
		}
		result = append(result, chunk)
	}
	return result, rows.Err()
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ExternalKey,
			&ticket.OwnerID,
			&ticket.OwnerName,
			&ticket.ChannelID,
			&ticket.ChannelName,
			&ticket.OriginChannelID,
			&ticket.State,
			&ticket.RewardKey,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.DeliveredAt,
			&ticket.ClosedAt,
			&ticket.ClosedByID,
			&ticket.GrantApplied,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
