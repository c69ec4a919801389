package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "sql/migrations"

	// migrationLockKey — ключ advisory lock, под которым инстансы применяют миграции по очереди.
	migrationLockKey     = int64(51730277)
	migrationLockTimeout = 5 * time.Second

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

// Migration — up/down скрипты одной версии схемы.
type Migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// ID возвращает имя миграции в виде 0002_outbox.
func (m Migration) ID() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// MigrationState описывает состояние схемы.
type MigrationState struct {
	// Version — последняя применённая версия (0, если ничего не применено).
	Version int64
	// Applied — число применённых миграций.
	Applied int
	// Pending — встроенные миграции, которые ещё не применены.
	Pending []string
}

// MigrateUp применяет steps неприменённых миграций; steps<=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []Migration, applied []int64) error {
		for _, m := range planUp(all, applied, steps) {
			err := runStep(ctx, conn, m.Up,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			if err != nil {
				return fmt.Errorf("apply migration %s: %w", m.ID(), err)
			}
			s.logger.WithField("migration", m.ID()).Info("migration applied")
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []Migration, applied []int64) error {
		plan, err := planDown(all, applied, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			err := runStep(ctx, conn, m.Down,
				`DELETE FROM schema_migrations WHERE version = $1`, m.Version)
			if err != nil {
				return fmt.Errorf("rollback migration %s: %w", m.ID(), err)
			}
			s.logger.WithField("migration", m.ID()).Info("migration rolled back")
		}
		return nil
	})
}

// MigrationStatus возвращает текущую версию схемы и список неприменённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errStoreNotInitialized
	}
	all, err := readMigrations(migrationsFS, migrationsDir)
	if err != nil {
		return MigrationState{}, err
	}
	if _, err := s.db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(ctx, s.db)
	if err != nil {
		return MigrationState{}, err
	}

	state := MigrationState{Applied: len(applied), Pending: []string{}}
	if len(applied) > 0 {
		state.Version = applied[len(applied)-1]
	}
	for _, m := range planUp(all, applied, 0) {
		state.Pending = append(state.Pending, m.ID())
	}
	return state, nil
}

// withMigrationLock держит advisory lock на выделенном соединении, пока выполняется fn.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn, all []Migration, applied []int64) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	all, err := readMigrations(migrationsFS, migrationsDir)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	return fn(conn, all, applied)
}

// runStep выполняет скрипт миграции и запись в schema_migrations в одной транзакции.
func runStep(ctx context.Context, conn *sql.Conn, script, bookkeeping string, args ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute script: %w", err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update schema_migrations: %w", err)
	}
	return tx.Commit()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, q queryer) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

// planUp возвращает до steps неприменённых миграций по возрастанию версии; steps<=0 — все.
func planUp(all []Migration, applied []int64, steps int) []Migration {
	var plan []Migration
	for _, m := range all {
		if steps > 0 && len(plan) == steps {
			break
		}
		if !slices.Contains(applied, m.Version) {
			plan = append(plan, m)
		}
	}
	return plan
}

// planDown возвращает до steps последних применённых миграций по убыванию версии.
// Применённая версия без встроенных скриптов откатить нельзя.
func planDown(all []Migration, applied []int64, steps int) ([]Migration, error) {
	var plan []Migration
	for i := len(applied) - 1; i >= 0 && len(plan) < steps; i-- {
		idx := slices.IndexFunc(all, func(m Migration) bool { return m.Version == applied[i] })
		if idx < 0 {
			return nil, fmt.Errorf("cannot rollback unknown migration version %d", applied[i])
		}
		plan = append(plan, all[idx])
	}
	return plan, nil
}

// readMigrations читает пары скриптов из dir и сортирует их по версии.
func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, direction, err := parseMigrationFile(entry.Name())
		if err != nil {
			return nil, err
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration %d has two names: %s and %s", version, m.Name, name)
		}

		script := &m.Up
		if direction == "down" {
			script = &m.Down
		}
		if *script != "" {
			return nil, fmt.Errorf("duplicate %s script for migration %s", direction, m.ID())
		}
		*script = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.ID())
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return migrations, nil
}

// parseMigrationFile разбирает имя вида 0002_outbox.up.sql.
func parseMigrationFile(file string) (version int64, name, direction string, err error) {
	invalid := fmt.Errorf("invalid migration file name: %s", file)

	stem, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return 0, "", "", invalid
	}
	dot := strings.LastIndexByte(stem, '.')
	if dot < 0 {
		return 0, "", "", invalid
	}
	stem, direction = stem[:dot], stem[dot+1:]
	if direction != "up" && direction != "down" {
		return 0, "", "", invalid
	}

	digits, name, ok := strings.Cut(stem, "_")
	if !ok || name == "" || strings.IndexFunc(name, notIdentRune) >= 0 {
		return 0, "", "", invalid
	}
	version, err = strconv.ParseInt(digits, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", invalid
	}
	return version, name, direction, nil
}

func notIdentRune(r rune) bool {
	return r != '_' && !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
