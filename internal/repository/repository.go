package repository

import (
	"context"
	"fmt"
	"sync"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrStoreIO  = errors.New("store io failure")
	ErrConflict = errors.New("snapshot was modified concurrently")

	ErrUnknownDriver = errors.New("unknown storage driver")
)

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	maxConflictRetries = 3
)

// SnapshotStore persists the whole user store as one unit. Save must fail
// with ErrConflict when the stored version differs from s.Version, and
// bumps s.Version on success.
type SnapshotStore interface {
	Load(ctx context.Context) (*model.Snapshot, error)
	Save(ctx context.Context, s *model.Snapshot) error
	Close() error
}

type Repository struct {
	store SnapshotStore
	sync.Mutex
}

func NewWithStore(store SnapshotStore) *Repository {
	return &Repository{store: store}
}

func (r *Repository) Close() error {
	return r.store.Close()
}

// Transaction loads a fresh snapshot, hands it to t and saves it when t
// returns nil. A t error discards every change. Version conflicts are
// retried against a fresh load.
func (r *Repository) Transaction(ctx context.Context, t func(s *model.Snapshot) error) error {
	r.Lock()
	defer r.Unlock()

	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = r.transaction(ctx, t)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		logger.Logger().Warn("snapshot conflict, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func (r *Repository) transaction(ctx context.Context, t func(s *model.Snapshot) error) error {
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreIO, errors.Wrap(err, "load snapshot"))
	}

	if err := t(snapshot); err != nil {
		return err
	}

	if err := r.store.Save(ctx, snapshot); err != nil {
		if errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStoreIO, errors.Wrap(err, "save snapshot"))
	}
	return nil
}

// Snapshot returns a fresh copy of the store for read-only use.
func (r *Repository) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	r.Lock()
	defer r.Unlock()

	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreIO, errors.Wrap(err, "load snapshot"))
	}
	return snapshot, nil
}

type Config struct {
	Driver   string         `mapstructure:"driver"`
	FilePath string         `mapstructure:"filePath"`
	Database DatabaseConfig `mapstructure:"database"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

func New(cfg Config) (*Repository, error) {
	var (
		store SnapshotStore
		err   error
	)

	switch cfg.Driver {
	case DriverFile, "":
		store, err = NewFileStore(cfg.FilePath)
	case DriverPostgres:
		store, err = NewPostgresStore(cfg.Database)
	case DriverMemory:
		store = NewMemoryStore()
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	logger.Logger().Info("Snapshot store ready", zap.String("driver", cfg.Driver))

	return NewWithStore(store), nil
}

func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}
