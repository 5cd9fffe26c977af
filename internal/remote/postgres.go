package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the notification channel profile writes are announced on.
const DefaultChannel = "profile_changes"

// PostgresOptions configures a Postgres backend.
type PostgresOptions struct {
	// Channel is the LISTEN/NOTIFY channel. Defaults to DefaultChannel.
	Channel string
	Logger  logrus.FieldLogger
}

// Postgres is a Backend storing each record as a JSONB document.
//
// Writes stamp server timestamps with the database clock and announce the
// record id with pg_notify in the same transaction, so a notification is
// only ever seen for a committed write. Subscriptions hold a dedicated
// connection that LISTENs on the channel and re-reads the record on every
// notification for its id.
type Postgres struct {
	pool    *pgxpool.Pool
	channel string
	log     logrus.FieldLogger
}

// NewPostgres creates a backend over pool. The schema must be migrated.
func NewPostgres(pool *pgxpool.Pool, opts PostgresOptions) *Postgres {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &Postgres{
		pool:    pool,
		channel: opts.Channel,
		log:     opts.Logger.WithField("backend", "postgres"),
	}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Postgres) ReadOnce(ctx context.Context, id string) (Record, bool, error) {
	rec, found, err := readRecord(ctx, p.pool, id)
	if err != nil {
		return Record{}, false, opError(OpRead, id, err)
	}
	return rec, found, nil
}

func readRecord(ctx context.Context, q querier, id string) (Record, bool, error) {
	var fields map[string]any
	err := q.QueryRow(ctx, `SELECT fields FROM profiles WHERE id = $1`, id).Scan(&fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{ID: id}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return Record{ID: id, Fields: fields}, true, nil
}

func (p *Postgres) Create(ctx context.Context, id string, fields map[string]any) error {
	return opError(OpCreate, id, p.write(ctx, id, fields, func(ctx context.Context, tx pgx.Tx, doc []byte) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, fields) VALUES ($1, $2::jsonb)
			ON CONFLICT (id) DO NOTHING
		`, id, doc)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyExists
		}
		return nil
	}))
}

func (p *Postgres) Update(ctx context.Context, id string, partial map[string]any) error {
	return opError(OpUpdate, id, p.write(ctx, id, partial, func(ctx context.Context, tx pgx.Tx, doc []byte) error {
		tag, err := tx.Exec(ctx, `
			UPDATE profiles SET fields = fields || $2::jsonb, updated_at = now()
			WHERE id = $1
		`, id, doc)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	}))
}

// write runs apply inside a transaction with server times resolved against
// the database clock, then announces the id.
func (p *Postgres) write(ctx context.Context, id string, fields map[string]any, apply func(context.Context, pgx.Tx, []byte) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var now time.Time
		if err := tx.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
			return fmt.Errorf("read server time: %w", err)
		}
		doc, err := json.Marshal(ResolveServerTimes(fields, now.UTC()))
		if err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		if err := apply(ctx, tx, doc); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, p.channel, id); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Subscribe(ctx context.Context, id string, onChange func(Record, bool), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := p.listen(ctx, id, onChange); err != nil && ctx.Err() == nil {
			p.log.WithError(err).WithField("identity_id", id).Debug("feed ended")
			onError(opError(OpSubscribe, id, err))
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (p *Postgres) listen(ctx context.Context, id string, onChange func(Record, bool)) error {
	pc, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener: %w", err)
	}
	// The listening connection never goes back to the pool.
	conn := pc.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// LISTEN before the first read, so no commit falls between the two.
	if err := deliver(ctx, conn, id, onChange); err != nil {
		return err
	}
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload != id {
			continue
		}
		if err := deliver(ctx, conn, id, onChange); err != nil {
			return err
		}
	}
}

func deliver(ctx context.Context, conn *pgx.Conn, id string, onChange func(Record, bool)) error {
	rec, found, err := readRecord(ctx, conn, id)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	onChange(rec, found)
	return nil
}

var _ Backend = (*Postgres)(nil)
