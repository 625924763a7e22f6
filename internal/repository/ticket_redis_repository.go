package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/mini-inbox/internal/domain"
)

const maxPatchAttempts = 5

// raiseSeq moves the id sequence forward to at least ARGV[1].
var raiseSeq = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur < tonumber(ARGV[1]) then
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// redisTicket is the stored JSON shape of a ticket.
type redisTicket struct {
	ID           int64                 `json:"id"`
	CreatedAt    time.Time             `json:"created_at"`
	CustomerName string                `json:"customer_name"`
	Channel      string                `json:"channel"`
	Subject      string                `json:"subject"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
}

func toRedisTicket(t *domain.Ticket) redisTicket {
	return redisTicket{
		ID:           t.ID,
		CreatedAt:    t.CreatedAt,
		CustomerName: t.CustomerName,
		Channel:      t.Channel,
		Subject:      t.Subject,
		Status:       t.Status,
		Priority:     t.Priority,
	}
}

func (r redisTicket) toDomain() domain.Ticket {
	return domain.Ticket{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		CustomerName: r.CustomerName,
		Channel:      r.Channel,
		Subject:      r.Subject,
		Status:       r.Status,
		Priority:     r.Priority,
	}
}

type redisTicketRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisTicketRepository stores each ticket as a JSON string under
// <prefix>ticket:<id> and keeps ids in the <prefix>tickets sorted set.
func NewRedisTicketRepository(client *redis.Client, prefix string) TicketRepository {
	return &redisTicketRepository{client: client, prefix: prefix}
}

func (r *redisTicketRepository) ticketKey(id int64) string {
	return r.prefix + "ticket:" + strconv.FormatInt(id, 10)
}

func (r *redisTicketRepository) indexKey() string {
	return r.prefix + "tickets"
}

func (r *redisTicketRepository) seqKey() string {
	return r.prefix + "tickets:seq"
}

func (r *redisTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == 0 {
		id, err := r.client.Incr(ctx, r.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("allocate ticket id: %w", err)
		}
		ticket.ID = id
	} else if err := raiseSeq.Run(ctx, r.client, []string{r.seqKey()}, ticket.ID).Err(); err != nil {
		return fmt.Errorf("advance ticket id: %w", err)
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(toRedisTicket(ticket))
	if err != nil {
		return err
	}
	// The value and its index entry land in one MULTI/EXEC. Re-adding an
	// existing id to the index is a no-op, so a lost SETNX needs no undo.
	var created *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, r.ticketKey(ticket.ID), data, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(ticket.ID), Member: ticket.ID})
		return nil
	})
	if err != nil {
		return err
	}
	if !created.Val() {
		return ErrTicketExists
	}
	return nil
}

func (r *redisTicketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	ids, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.Ticket, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.prefix+"ticket:"+id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, val := range values {
		raw, ok := val.(string)
		if !ok {
			continue
		}
		var stored redisTicket
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		result = append(result, stored.toDomain())
	}
	return result, nil
}

func (r *redisTicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	raw, err := r.client.Get(ctx, r.ticketKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	var stored redisTicket
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	t := stored.toDomain()
	return &t, nil
}

// ApplyPatch uses WATCH/MULTI so a concurrent writer on the same key forces a retry.
func (r *redisTicketRepository) ApplyPatch(ctx context.Context, id int64, patch domain.TicketPatch) (*domain.Ticket, error) {
	key := r.ticketKey(id)
	var updated domain.Ticket

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrTicketNotFound
		}
		if err != nil {
			return err
		}
		var stored redisTicket
		if err := json.Unmarshal(raw, &stored); err != nil {
			return err
		}
		updated = stored.toDomain()
		patch.Apply(&updated)
		data, err := json.Marshal(toRedisTicket(&updated))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxPatchAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, fmt.Errorf("patch ticket %d: %w", id, redis.TxFailedErr)
}

func (r *redisTicketRepository) Count(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.indexKey()).Result()
	return int(n), err
}

func (r *redisTicketRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return errors.New("redis client not configured")
	}
	return r.client.Ping(ctx).Err()
}
