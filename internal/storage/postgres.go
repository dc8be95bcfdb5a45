package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"time"

	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/model"
	"pitchcoach/pkg/resilience"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// MigrationsDir is resolved relative to the working directory.
var MigrationsDir = "migrations"

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ConnectPolicy governs the startup ping while the database comes up.
var ConnectPolicy = resilience.Policy{
	MaxAttempts:     5,
	InitialInterval: time.Second,
	MaxInterval:     10 * time.Second,
	Multiplier:      2.0,
}

type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to databaseURL and applies pending migrations.
func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	err = resilience.RetryWithExponentialBackoff(ctx, ConnectPolicy, func() error {
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("Database not reachable yet", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")

	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func migrationsURL() (string, error) {
	path, err := filepath.Abs(MigrationsDir)
	if err != nil {
		return "", fmt.Errorf("failed to get migrations path: %w", err)
	}

	if runtime.GOOS == "windows" {
		u := &url.URL{
			Scheme: "file",
			Path:   filepath.ToSlash(path),
		}
		return u.String(), nil
	}
	return fmt.Sprintf("file://%s", path), nil
}

// withMigrator opens a migrate instance over a plain database/sql handle.
func withMigrator(databaseURL string, fn func(m *migrate.Migrate) error) error {
	source, err := migrationsURL()
	if err != nil {
		return err
	}

	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	logger.Info("Running migrations", zap.String("path", source))
	return fn(m)
}

func runMigrations(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No new migrations to apply")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		logger.Info("Migrations applied successfully")
		return nil
	})
}

// ResetMigrations drops every table and re-applies the schema. Development only.
func ResetMigrations(databaseURL string) error {
	logger.Warn("Resetting database - this will drop all data!")

	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		if err := m.Drop(); err != nil {
			return fmt.Errorf("failed to drop database: %w", err)
		}
		logger.Info("Database dropped successfully")

		if err := m.Up(); err != nil {
			return fmt.Errorf("failed to run migrations after reset: %w", err)
		}
		logger.Info("Database reset and migrations applied successfully")
		return nil
	})
}

func (s *PostgresStorage) Close() {
	s.pool.Close()
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertUser creates the user on first sight and refreshes name and image afterwards.
func (s *PostgresStorage) UpsertUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()

	query := `
		INSERT INTO users (id, email, name, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, users.name),
			image = COALESCE(EXCLUDED.image, users.image),
			updated_at = EXCLUDED.updated_at
		RETURNING id, name, image, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Image,
		now,
	).Scan(&user.ID, &user.Name, &user.Image, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
		SELECT id, email, name, image, created_at, updated_at
		FROM users
		WHERE email = $1`

	var user model.User
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Image,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

const analysisColumns = `id, user_id, chat_id, message_id, audio_key, status, transcript, tips,
	optimized_script, score, word_counts, attempts, error_text, meta, created_at, updated_at`

func wordCountsParam(a *model.Analysis) []model.WordCount {
	if a.WordCounts == nil {
		return []model.WordCount{}
	}
	return a.WordCounts
}

func (s *PostgresStorage) CreateAnalysis(ctx context.Context, a *model.Analysis) error {
	query := `
		INSERT INTO analyses (` + analysisColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := s.pool.Exec(ctx, query,
		a.ID,
		a.UserID,
		a.ChatID,
		a.MessageID,
		a.AudioKey,
		a.Status,
		a.Transcript,
		a.Tips,
		a.OptimizedScript,
		a.Score,
		wordCountsParam(a),
		a.Attempts,
		a.ErrorText,
		a.Meta,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}

	return nil
}

func scanAnalysis(row pgx.Row) (*model.Analysis, error) {
	var a model.Analysis
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.ChatID,
		&a.MessageID,
		&a.AudioKey,
		&a.Status,
		&a.Transcript,
		&a.Tips,
		&a.OptimizedScript,
		&a.Score,
		&a.WordCounts,
		&a.Attempts,
		&a.ErrorText,
		&a.Meta,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStorage) GetAnalysisByID(ctx context.Context, id string) (*model.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1`

	a, err := scanAnalysis(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return a, nil
}

func (s *PostgresStorage) UpdateAnalysis(ctx context.Context, a *model.Analysis) error {
	query := `
		UPDATE analyses SET
			status = $2,
			transcript = $3,
			tips = $4,
			optimized_script = $5,
			score = $6,
			word_counts = $7,
			attempts = $8,
			error_text = $9,
			meta = $10,
			updated_at = $11
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		a.ID,
		a.Status,
		a.Transcript,
		a.Tips,
		a.OptimizedScript,
		a.Score,
		wordCountsParam(a),
		a.Attempts,
		a.ErrorText,
		a.Meta,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis %s: %w", a.ID, ErrNotFound)
	}

	return nil
}

// ListAnalysesByUser returns the newest analyses first.
func (s *PostgresStorage) ListAnalysesByUser(ctx context.Context, userID string, limit int) ([]*model.Analysis, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM analyses
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return analyses, nil
}

// GetLatestAnalysisByChat returns the newest finished analysis for a Telegram chat.
func (s *PostgresStorage) GetLatestAnalysisByChat(ctx context.Context, chatID int64) (*model.Analysis, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM analyses
		WHERE chat_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`

	a, err := scanAnalysis(s.pool.QueryRow(ctx, query, chatID, model.AnalysisStatusDone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis for chat %d: %w", chatID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest analysis: %w", err)
	}

	return a, nil
}
