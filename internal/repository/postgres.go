package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/pkg/logger"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	snapshotTable = "referral_snapshots"
	snapshotRowID = 1

	defaultSQLDriver = "pgx"
)

const createSnapshotTable = `
CREATE TABLE IF NOT EXISTS referral_snapshots (
    id         SMALLINT PRIMARY KEY,
    version    BIGINT NOT NULL,
    payload    JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

type snapshotRow struct {
	Version int64  `db:"version"`
	Payload []byte `db:"payload"`
}

// PostgresStore keeps the snapshot in a single row and relies on the
// version column for optimistic concurrency.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(cfg DatabaseConfig) (*PostgresStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = defaultSQLDriver
	}

	db, err := sqlx.Connect(driver, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(createSnapshotTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate snapshot table: %w", err)
	}

	logger.Logger().Info("Connected to database successfully")

	return NewPostgresStoreWithDB(db), nil
}

func NewPostgresStoreWithDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Load(ctx context.Context) (*model.Snapshot, error) {
	query, args, err := squirrel.
		Select("version", "payload").
		From(snapshotTable).
		Where(squirrel.Eq{"id": snapshotRowID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build snapshot select query")
	}

	var row snapshotRow
	err = p.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewSnapshot(), nil
		}
		return nil, errors.Wrap(err, "select snapshot")
	}

	snapshot := model.NewSnapshot()
	snapshot.Version = row.Version
	if err := json.Unmarshal(row.Payload, &snapshot.Users); err != nil {
		return nil, errors.Wrap(err, "decode snapshot payload")
	}
	if snapshot.Users == nil {
		snapshot.Users = make(map[int64]*model.UserRecord)
	}

	return snapshot, nil
}

func (p *PostgresStore) Save(ctx context.Context, s *model.Snapshot) error {
	payload, err := json.Marshal(s.Users)
	if err != nil {
		return errors.Wrap(err, "encode snapshot payload")
	}

	now := time.Now().UTC()

	var builder interface {
		ToSql() (string, []interface{}, error)
	}
	if s.Version == 0 {
		builder = squirrel.
			Insert(snapshotTable).
			SetMap(map[string]interface{}{
				"id":         snapshotRowID,
				"version":    1,
				"payload":    payload,
				"updated_at": now,
			}).
			Suffix("ON CONFLICT (id) DO NOTHING").
			PlaceholderFormat(squirrel.Dollar)
	} else {
		builder = squirrel.
			Update(snapshotTable).
			Set("payload", payload).
			Set("updated_at", now).
			Set("version", squirrel.Expr("version + 1")).
			Where(squirrel.Eq{"id": snapshotRowID, "version": s.Version}).
			PlaceholderFormat(squirrel.Dollar)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return errors.Wrap(err, "build snapshot save query")
	}

	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "save snapshot")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(ErrConflict, "version %d", s.Version)
	}

	s.Version++
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
