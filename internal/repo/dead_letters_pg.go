package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fenil3357/Dead-Letter-Exchange-RabbitMq/pkg/models"
)

const DefaultListLimit = 50

type DeadLettersPG struct {
	DB *pgxpool.Pool
}

func (r *DeadLettersPG) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, `
		create table if not exists dead_letters (
			id             bigserial primary key,
			message_id     text not null default '',
			order_id       integer not null default 0,
			source         text not null,
			reason         text not null default '',
			attempts       integer not null default 0,
			original_queue text not null default '',
			body           jsonb not null,
			received_at    timestamptz not null default now()
		)
	`)
	return err
}

func (r *DeadLettersPG) Record(ctx context.Context, dl models.DeadLetter) error {
	_, err := r.DB.Exec(ctx, `
		insert into dead_letters(message_id, order_id, source, reason, attempts, original_queue, body, received_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, dl.MessageID, dl.OrderID, dl.Source, dl.Reason, dl.Attempts, dl.OriginalQueue, []byte(dl.Body), dl.ReceivedAt)
	return err
}

// List returns the newest dead letters first.
func (r *DeadLettersPG) List(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.DB.Query(ctx, `
		select message_id, order_id, source, reason, attempts, original_queue, body, received_at
		from dead_letters
		order by received_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DeadLetter, error) {
		var (
			dl   models.DeadLetter
			body []byte
		)
		err := row.Scan(&dl.MessageID, &dl.OrderID, &dl.Source, &dl.Reason, &dl.Attempts, &dl.OriginalQueue, &body, &dl.ReceivedAt)
		dl.Body = body
		return dl, err
	})
}
