package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/mini-inbox/internal/domain"
	apperrors "github.com/spec-kit/mini-inbox/pkg/util/errorutil"
)

var (
	// ErrTicketNotFound is returned when no ticket has the requested id.
	ErrTicketNotFound = fmt.Errorf("ticket %w", apperrors.ErrNotFound)
	// ErrTicketExists is returned by Create when the id is already taken.
	ErrTicketExists = errors.New("ticket already exists")
)

// TicketRepository encapsulates ticket persistence. Implementations serialize
// concurrent patches to the same ticket themselves.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	List(ctx context.Context) ([]domain.Ticket, error)
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ApplyPatch(ctx context.Context, id int64, patch domain.TicketPatch) (*domain.Ticket, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// PgxPool is the subset of *pgxpool.Pool the Postgres repository uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type ticketRepository struct {
	pool PgxPool
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(pool PgxPool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, created_at, customer_name, channel, subject, status, priority`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID != 0 {
		const query = `
        INSERT INTO tickets (id, created_at, customer_name, channel, subject, status, priority)
        VALUES ($1, COALESCE($2, NOW()), $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO NOTHING
        RETURNING created_at`
		err := r.pool.QueryRow(ctx, query,
			ticket.ID,
			nullableTime(ticket),
			ticket.CustomerName,
			ticket.Channel,
			ticket.Subject,
			ticket.Status,
			ticket.Priority,
		).Scan(&ticket.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTicketExists
		}
		if err != nil {
			return err
		}
		// keep the sequence ahead of explicitly seeded ids
		_, err = r.pool.Exec(ctx, `SELECT setval(pg_get_serial_sequence('tickets','id'), GREATEST((SELECT MAX(id) FROM tickets), 1))`)
		return err
	}

	const query = `
        INSERT INTO tickets (created_at, customer_name, channel, subject, status, priority)
        VALUES (COALESCE($1, NOW()), $2, $3, $4, $5, $6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		nullableTime(ticket),
		ticket.CustomerName,
		ticket.Channel,
		ticket.Subject,
		ticket.Status,
		ticket.Priority,
	).Scan(&ticket.ID, &ticket.CreatedAt)
}

func (r *ticketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
	return scanTicket(row)
}

// ApplyPatch updates in a single statement so the row lock covers read and write.
func (r *ticketRepository) ApplyPatch(ctx context.Context, id int64, patch domain.TicketPatch) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=COALESCE($1, status), priority=COALESCE($2, priority)
        WHERE id=$3
        RETURNING ` + ticketColumns
	row := r.pool.QueryRow(ctx, query, patch.Status, patch.Priority, id)
	return scanTicket(row)
}

func (r *ticketRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&count)
	return count, err
}

func (r *ticketRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

func nullableTime(ticket *domain.Ticket) any {
	if ticket.CreatedAt.IsZero() {
		return nil
	}
	return ticket.CreatedAt
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.CreatedAt,
		&ticket.CustomerName,
		&ticket.Channel,
		&ticket.Subject,
		&ticket.Status,
		&ticket.Priority,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.CreatedAt,
			&ticket.CustomerName,
			&ticket.Channel,
			&ticket.Subject,
			&ticket.Status,
			&ticket.Priority,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
