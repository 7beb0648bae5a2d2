package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsDir = "sql/migrations"
	// schemaLockKey сериализует миграции нескольких экземпляров order-replay на одной базе.
	schemaLockKey   = int64(0x6f72646572)
	schemaLedgerDDL = `
CREATE TABLE IF NOT EXISTS order_replay_schema (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	statusTimeout = 5 * time.Second
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// requiredTables таблицы, без которых EventLog и SnapshotStore не работают.
var requiredTables = []string{"order_events", "order_snapshots"}

var (
	// ErrChecksumMismatch — применённая миграция была изменена после применения.
	ErrChecksumMismatch = errors.New("applied migration checksum mismatch")
	// ErrSchemaIncomplete — после миграций в базе нет таблиц журнала или снапшотов.
	ErrSchemaIncomplete = errors.New("order replay schema is incomplete")
	errStoreNotReady    = errors.New("postgres store is not initialized")
)

// SchemaStatus состояние схемы журнала заказов.
type SchemaStatus struct {
	// Version последняя применённая миграция, 0 если ничего не применено.
	Version int64
	// Applied число применённых миграций.
	Applied int
	// Latest последняя миграция, встроенная в бинарь.
	Latest int64
}

// Pending говорит, остались ли неприменённые миграции.
func (s SchemaStatus) Pending() bool { return s.Version < s.Latest }

type schemaMigration struct {
	Version  int64
	Name     string
	Up       string
	Down     string
	Checksum string
}

func (m schemaMigration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// appliedMigration строка журнала order_replay_schema.
type appliedMigration struct {
	Version  int64
	Checksum string
}

// planUp выбирает неприменённые миграции по возрастанию версии.
// Изменённый текст уже применённой миграции делает план недействительным.
func planUp(available []schemaMigration, applied []appliedMigration, steps int) ([]schemaMigration, error) {
	done := make(map[int64]string, len(applied))
	for _, a := range applied {
		done[a.Version] = a.Checksum
	}

	var plan []schemaMigration
	for _, m := range available {
		checksum, ok := done[m.Version]
		if ok {
			if checksum != m.Checksum {
				return nil, fmt.Errorf("%s: %w", m.label(), ErrChecksumMismatch)
			}
			continue
		}
		if steps > 0 && len(plan) == steps {
			break
		}
		plan = append(plan, m)
	}
	return plan, nil
}

// planDown выбирает steps последних применённых миграций от новой к старой.
func planDown(available []schemaMigration, applied []appliedMigration, steps int) ([]schemaMigration, error) {
	byVersion := make(map[int64]schemaMigration, len(available))
	for _, m := range available {
		byVersion[m.Version] = m
	}

	versions := make([]int64, 0, len(applied))
	for _, a := range applied {
		versions = append(versions, a.Version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if steps < len(versions) {
		versions = versions[:steps]
	}

	plan := make([]schemaMigration, 0, len(versions))
	for _, v := range versions {
		m, ok := byVersion[v]
		if !ok {
			return nil, fmt.Errorf("migration %d is applied but not embedded", v)
		}
		plan = append(plan, m)
	}
	return plan, nil
}

// MigrateUp применяет steps неприменённых миграций; steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withSchemaLock(ctx, func(conn *sql.Conn, available []schemaMigration, applied []appliedMigration) error {
		plan, err := planUp(available, applied, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := runMigration(ctx, conn, m.label()+" up", m.Up,
				`INSERT INTO order_replay_schema (version, name, checksum) VALUES ($1, $2, $3)`,
				m.Version, m.Name, m.Checksum); err != nil {
				return err
			}
			s.logger.WithField("migration", m.label()).Info("migration applied")
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withSchemaLock(ctx, func(conn *sql.Conn, available []schemaMigration, applied []appliedMigration) error {
		plan, err := planDown(available, applied, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := runMigration(ctx, conn, m.label()+" down", m.Down,
				`DELETE FROM order_replay_schema WHERE version = $1`, m.Version); err != nil {
				return err
			}
			s.logger.WithField("migration", m.label()).Info("migration rolled back")
		}
		return nil
	})
}

// MigrationStatus возвращает текущую версию схемы и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	status, err := s.SchemaStatus(ctx)
	if err != nil {
		return 0, 0, err
	}
	return status.Version, status.Applied, nil
}

// SchemaStatus читает журнал миграций и сравнивает его со встроенными файлами.
func (s *Store) SchemaStatus(ctx context.Context) (SchemaStatus, error) {
	if s == nil || s.db == nil {
		return SchemaStatus{}, errStoreNotReady
	}
	available, err := parseMigrations(migrationsFS)
	if err != nil {
		return SchemaStatus{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, schemaLedgerDDL); err != nil {
		return SchemaStatus{}, wrap("ensure schema ledger", err)
	}
	status := SchemaStatus{Latest: available[len(available)-1].Version}
	if err := s.db.QueryRowContext(queryCtx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM order_replay_schema`,
	).Scan(&status.Version, &status.Applied); err != nil {
		return SchemaStatus{}, wrap("query schema status", err)
	}
	return status, nil
}

// EnsureSchema доводит схему до последней версии и проверяет, что таблицы
// журнала событий и снапшотов существуют.
func (s *Store) EnsureSchema(ctx context.Context) (SchemaStatus, error) {
	if err := s.MigrateUp(ctx, 0); err != nil {
		return SchemaStatus{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	var missing []string
	for _, table := range requiredTables {
		var exists bool
		if err := s.db.QueryRowContext(queryCtx,
			`SELECT to_regclass($1) IS NOT NULL`, table,
		).Scan(&exists); err != nil {
			return SchemaStatus{}, wrap("check table "+table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return SchemaStatus{}, fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), ErrSchemaIncomplete)
	}

	return s.SchemaStatus(ctx)
}

// withSchemaLock держит advisory lock на выделенном соединении, пока выполняется fn.
func (s *Store) withSchemaLock(
	ctx context.Context,
	fn func(conn *sql.Conn, available []schemaMigration, applied []appliedMigration) error,
) error {
	if s == nil || s.db == nil {
		return errStoreNotReady
	}
	available, err := parseMigrations(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return wrap("acquire migration connection", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, schemaLockKey); err != nil {
		return wrap("acquire schema lock", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, schemaLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaLedgerDDL); err != nil {
		return wrap("ensure schema ledger", err)
	}
	applied, err := readLedger(ctx, conn)
	if err != nil {
		return err
	}
	return fn(conn, available, applied)
}

// runMigration выполняет тело миграции и запись в журнал одной транзакцией.
func runMigration(ctx context.Context, conn *sql.Conn, label, body, ledgerSQL string, ledgerArgs ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin "+label, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s: %w", label, err)
	}
	if _, err := tx.ExecContext(ctx, ledgerSQL, ledgerArgs...); err != nil {
		return fmt.Errorf("record %s: %w", label, err)
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit "+label, err)
	}
	return nil
}

func readLedger(ctx context.Context, conn *sql.Conn) ([]appliedMigration, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum FROM order_replay_schema ORDER BY version`)
	if err != nil {
		return nil, wrap("read schema ledger", err)
	}
	defer rows.Close()

	var applied []appliedMigration
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.Version, &a.Checksum); err != nil {
			return nil, fmt.Errorf("scan schema ledger: %w", err)
		}
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("read schema ledger", err)
	}
	return applied, nil
}

// parseMigrationName разбирает имя вида 0001_order_events.up.sql.
func parseMigrationName(file string) (version int64, name, direction string, err error) {
	stem, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return 0, "", "", fmt.Errorf("migration %q: not an .sql file", file)
	}
	dot := strings.LastIndexByte(stem, '.')
	if dot < 0 {
		return 0, "", "", fmt.Errorf("migration %q: missing up/down suffix", file)
	}
	stem, direction = stem[:dot], stem[dot+1:]
	if direction != "up" && direction != "down" {
		return 0, "", "", fmt.Errorf("migration %q: direction %q", file, direction)
	}

	digits, name, ok := strings.Cut(stem, "_")
	if !ok || name == "" {
		return 0, "", "", fmt.Errorf("migration %q: missing name", file)
	}
	version, err = strconv.ParseInt(digits, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("migration %q: bad version %q", file, digits)
	}
	return version, name, direction, nil
}

// parseMigrations читает пары up/down из каталога миграций и сортирует их по версии.
func parseMigrations(fsys fs.FS) ([]schemaMigration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[int64]*schemaMigration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, direction, err := parseMigrationName(entry.Name())
		if err != nil {
			return nil, err
		}
		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		m := byVersion[version]
		if m == nil {
			m = &schemaMigration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %d named both %s and %s", version, m.Name, name)
		}
		target := &m.Up
		if direction == "down" {
			target = &m.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("migration %s: duplicate %s file", m.label(), direction)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migrations embedded")
	}

	migrations := make([]schemaMigration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", m.label())
		}
		sum := sha256.Sum256([]byte(m.Up))
		m.Checksum = hex.EncodeToString(sum[:])
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
