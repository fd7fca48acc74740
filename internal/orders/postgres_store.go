package orders

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps order records in a single table keyed by the same
// ORDER#<id> value the DynamoDB layout uses.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// MigratePostgres applies the embedded migrations.
func MigratePostgres(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateIfAbsent relies on the primary key: ON CONFLICT DO NOTHING affects zero
// rows when the order already exists.
func (s *PostgresStore) CreateIfAbsent(ctx context.Context, orderID string, fields map[string]interface{}) (CreateOutcome, error) {
	record, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("marshal order record: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (pk, order_id, record) VALUES ($1, $2, $3) ON CONFLICT (pk) DO NOTHING`,
		Key(orderID), orderID, record,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert order: %w", ErrTransientPersist, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", ErrTransientPersist, err)
	}
	if n == 0 {
		return AlreadyExists, nil
	}
	return Created, nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (map[string]interface{}, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM orders WHERE pk = $1`, Key(orderID)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}

	var rec map[string]interface{}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return rec, nil
}
