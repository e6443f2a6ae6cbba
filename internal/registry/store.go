package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"github.com/websoft9/trop/internal/errs"
	"github.com/websoft9/trop/internal/port"
	"github.com/websoft9/trop/internal/reservation"
)

// Store is the registry's embedded SQLite-backed implementation of
// §4.4. Every write path in the engine is single-connection: SQLite
// has no real concept of concurrent writers, so MaxOpenConns is
// pinned to 1 and maximumLockWaitSeconds is enforced through
// PRAGMA busy_timeout — the first write statement of a transaction
// upgrades SQLite's lock from deferred to reserved, giving the
// writer-exclusive behaviour §5 calls for without needing a
// driver-specific BEGIN IMMEDIATE hook.
type Store struct {
	db             *dbx.DB
	sqlDB          *sql.DB
	lockWaitSecs   int
	queryable
}

// queryable holds every read/write helper shared between the
// top-level Store and a Tx opened on it; both embed it over their own
// dbx.Builder (DB or Tx) so the allocator's ReservedChecker interface
// and the planner/executor's store interface are satisfied by either.
type queryable struct {
	b dbx.Builder
}

// Open opens (creating if absent) the SQLite file at path, applies the
// schema, and verifies the stored schema_version is one this build
// understands.
func Open(path string, lockWaitSecs int) (*Store, error) {
	if lockWaitSecs <= 0 {
		lockWaitSecs = 30
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.IOf("opening registry %s: %v", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := dbx.NewFromDB(sqlDB, "sqlite")

	s := &Store{db: db, sqlDB: sqlDB, lockWaitSecs: lockWaitSecs, queryable: queryable{b: db}}

	if _, err := sqlDB.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", lockWaitSecs*1000)); err != nil {
		return nil, errs.IOf("setting busy_timeout: %v", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, errs.IOf("setting journal_mode: %v", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errs.IOf("setting foreign_keys: %v", err)
	}

	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

func (s *Store) migrate() error {
	for _, stmt := range []string{createMetadataTable, createReservationsTable, createPortIndex, createProjectIndex, createLastUsedIndex} {
		if _, err := s.db.NewQuery(stmt).Execute(); err != nil {
			return errs.IOf("applying schema: %v", err)
		}
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version == 0 {
		if _, err := s.db.NewQuery(
			"INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', {:v})",
		).Bind(dbx.Params{"v": strconv.Itoa(CurrentSchemaVersion)}).Execute(); err != nil {
			return errs.IOf("stamping schema_version: %v", err)
		}
		return nil
	}
	if version > CurrentSchemaVersion {
		return errs.DatabaseCorruptionf("registry schema_version %d is newer than this build understands (max %d)", version, CurrentSchemaVersion)
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var row struct {
		Value string `db:"value"`
	}
	err := s.db.Select("value").From("metadata").Where(dbx.HashExp{"key": "schema_version"}).One(&row)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errs.IOf("reading schema_version: %v", err)
	}
	v, err := strconv.Atoi(row.Value)
	if err != nil {
		return 0, errs.DatabaseCorruptionf("schema_version %q is not an integer", row.Value)
	}
	return v, nil
}

// IntegrityCheck runs SQLite's own PRAGMA integrity_check and reports
// corruption as errs.DatabaseCorruption.
func (s *Store) IntegrityCheck() error {
	var rows []struct {
		Result string `db:"integrity_check"`
	}
	if err := s.db.NewQuery("PRAGMA integrity_check").All(&rows); err != nil {
		return errs.IOf("running integrity_check: %v", err)
	}
	if len(rows) == 1 && rows[0].Result == "ok" {
		return nil
	}
	var problems []string
	for _, r := range rows {
		problems = append(problems, r.Result)
	}
	return errs.DatabaseCorruptionf("%s", strings.Join(problems, "; "))
}

// Tx is a transaction-scoped view of the store, opened by WithTx. Its
// embedded queryable gives it the same read/write methods as Store,
// so the planner/executor and the allocator's ReservedChecker can
// operate identically inside or outside a transaction.
type Tx struct {
	queryable
	tx *dbx.Tx
}

// WithTx opens a transaction, runs fn against it, and commits on nil
// return or rolls back and returns the error otherwise. A SQLITE_BUSY
// (lock contention beyond busy_timeout) is translated to
// errs.LockWaitTimeout so callers can distinguish "retry" from "abort".
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	dtx, err := s.db.Begin()
	if err != nil {
		if isBusy(err) {
			return errs.LockWaitTimeoutf(s.lockWaitSecs)
		}
		return errs.IOf("beginning transaction: %v", err)
	}
	tx := &Tx{queryable: queryable{b: dtx}, tx: dtx}

	if err := fn(tx); err != nil {
		_ = dtx.Rollback()
		if isBusy(err) {
			return errs.LockWaitTimeoutf(s.lockWaitSecs)
		}
		return err
	}
	if err := dtx.Commit(); err != nil {
		if isBusy(err) {
			return errs.LockWaitTimeoutf(s.lockWaitSecs)
		}
		return errs.IOf("committing transaction: %v", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

// row is the physical shape of one reservations row. Tag/Project/Task
// are nullable; Port is stored as INTEGER though the domain type is a
// 16-bit Port, matching the row encoding in spec §6.
type row struct {
	Path       string         `db:"path"`
	Tag        sql.NullString `db:"tag"`
	Port       int            `db:"port"`
	Project    sql.NullString `db:"project"`
	Task       sql.NullString `db:"task"`
	CreatedAt  int64          `db:"created_at"`
	LastUsedAt int64          `db:"last_used_at"`
}

func toRow(r reservation.Reservation) row {
	out := row{
		Path:       r.Key.Path,
		Port:       int(r.Port),
		CreatedAt:  r.CreatedAt,
		LastUsedAt: r.LastUsedAt,
	}
	if r.Key.HasTag {
		out.Tag = sql.NullString{String: r.Key.Tag, Valid: true}
	}
	if r.HasProject {
		out.Project = sql.NullString{String: r.Project, Valid: true}
	}
	if r.HasTask {
		out.Task = sql.NullString{String: r.Task, Valid: true}
	}
	return out
}

func fromRow(r row) reservation.Reservation {
	res := reservation.Reservation{
		Port:       uint16(r.Port),
		CreatedAt:  r.CreatedAt,
		LastUsedAt: r.LastUsedAt,
	}
	if r.Tag.Valid {
		res.Key, _ = reservation.WithTag(r.Path, r.Tag.String, reservation.ExplicitPath)
	} else {
		res.Key, _ = reservation.NoTag(r.Path, reservation.ExplicitPath)
	}
	if r.Project.Valid {
		res.Project = r.Project.String
		res.HasProject = true
	}
	if r.Task.Valid {
		res.Task = r.Task.String
		res.HasTask = true
	}
	return res
}

// keyExpr builds the (path, tag) match expression used by every
// keyed query, using SQLite's NULL-safe "IS" operator so that a
// tagless key (bound tag = nil) matches rows with tag IS NULL — the
// engine-level "NULL == NULL" identity semantics required by I1.
// The (path, tag) primary key itself treats NULL tags as distinct, so
// UpsertByKey pairs this match with a delete-then-insert.
func keyExpr(key reservation.Key) dbx.Expression {
	var tagParam any
	if key.HasTag {
		tagParam = key.Tag
	}
	return dbx.NewExp("path = {:path} AND tag IS {:tag}", dbx.Params{"path": key.Path, "tag": tagParam})
}

// GetByKey returns the reservation at key, or (false, nil) if absent.
func (q queryable) GetByKey(key reservation.Key) (reservation.Reservation, bool, error) {
	var r row
	err := q.b.Select("path", "tag", "port", "project", "task", "created_at", "last_used_at").
		From("reservations").Where(keyExpr(key)).One(&r)
	if err == sql.ErrNoRows {
		return reservation.Reservation{}, false, nil
	}
	if err != nil {
		return reservation.Reservation{}, false, errs.IOf("get_by_key: %v", err)
	}
	return fromRow(r), true, nil
}

// GetByPort returns the reservation holding port, or (false, nil).
func (q queryable) GetByPort(p port.Port) (reservation.Reservation, bool, error) {
	var r row
	err := q.b.Select("path", "tag", "port", "project", "task", "created_at", "last_used_at").
		From("reservations").Where(dbx.HashExp{"port": int(p)}).One(&r)
	if err == sql.ErrNoRows {
		return reservation.Reservation{}, false, nil
	}
	if err != nil {
		return reservation.Reservation{}, false, errs.IOf("get_by_port: %v", err)
	}
	return fromRow(r), true, nil
}

// ListAll returns every reservation ordered by (path, tag).
func (q queryable) ListAll() ([]reservation.Reservation, error) {
	var rows []row
	err := q.b.Select("path", "tag", "port", "project", "task", "created_at", "last_used_at").
		From("reservations").OrderBy("path", "tag").All(&rows)
	if err != nil {
		return nil, errs.IOf("list_all: %v", err)
	}
	return fromRows(rows), nil
}

// ListByPathPrefix returns every reservation whose path starts with
// prefix, ordered by (path, tag).
func (q queryable) ListByPathPrefix(prefix string) ([]reservation.Reservation, error) {
	var rows []row
	err := q.b.Select("path", "tag", "port", "project", "task", "created_at", "last_used_at").
		From("reservations").
		Where(dbx.NewExp("path GLOB {:prefix}", dbx.Params{"prefix": globEscape(prefix) + "*"})).
		OrderBy("path", "tag").All(&rows)
	if err != nil {
		return nil, errs.IOf("list_by_path_prefix: %v", err)
	}
	return fromRows(rows), nil
}

// globEscape brackets GLOB's special characters so they match
// literally; GLOB, unlike LIKE, compares case-sensitively.
func globEscape(s string) string {
	s = strings.ReplaceAll(s, "[", "[[]")
	s = strings.ReplaceAll(s, "*", "[*]")
	s = strings.ReplaceAll(s, "?", "[?]")
	return s
}

// ReservedPortsInRange returns the ascending, distinct ports reserved
// within r.
func (q queryable) ReservedPortsInRange(r port.Range) ([]port.Port, error) {
	var ports []int
	err := q.b.Select("port").From("reservations").
		Where(dbx.NewExp("port BETWEEN {:min} AND {:max}", dbx.Params{"min": int(r.Min), "max": int(r.Max)})).
		OrderBy("port").Column(&ports)
	if err != nil {
		return nil, errs.IOf("reserved_ports_in_range: %v", err)
	}
	out := make([]port.Port, len(ports))
	for i, p := range ports {
		out[i] = port.Port(p)
	}
	return out, nil
}

// IsPortReserved implements port.ReservedChecker.
func (q queryable) IsPortReserved(p port.Port) (bool, error) {
	var n int
	err := q.b.Select("COUNT(*)").From("reservations").Where(dbx.HashExp{"port": int(p)}).Row(&n)
	if err != nil {
		return false, errs.IOf("is_port_reserved: %v", err)
	}
	return n > 0, nil
}

// FindExpired returns reservations whose last_used_at is older than
// maxAgeSecs relative to now, ascending by last_used_at.
func (q queryable) FindExpired(now int64, maxAgeSecs int64) ([]reservation.Reservation, error) {
	cutoff := now - maxAgeSecs
	var rows []row
	err := q.b.Select("path", "tag", "port", "project", "task", "created_at", "last_used_at").
		From("reservations").
		Where(dbx.NewExp("last_used_at < {:cutoff}", dbx.Params{"cutoff": cutoff})).
		OrderBy("last_used_at").All(&rows)
	if err != nil {
		return nil, errs.IOf("find_expired: %v", err)
	}
	return fromRows(rows), nil
}

// ListProjects returns every distinct non-null project, sorted.
func (q queryable) ListProjects() ([]string, error) {
	var projects []string
	err := q.b.Select("DISTINCT project").From("reservations").
		Where(dbx.NewExp("project IS NOT NULL")).Column(&projects)
	if err != nil {
		return nil, errs.IOf("list_projects: %v", err)
	}
	sort.Strings(projects)
	return projects, nil
}

// TryCreateAtomic inserts r, reporting (false, nil) rather than an
// error when the insert fails solely because the port column's
// UNIQUE constraint collided with a concurrent winner (I2). Any other
// failure is a real error.
func (q queryable) TryCreateAtomic(r reservation.Reservation) (bool, error) {
	_, err := q.b.Insert("reservations", insertParams(r)).Execute()
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err, "port") {
		return false, nil
	}
	return false, errs.IOf("try_create_atomic: %v", err)
}

// UpsertByKey creates or replaces the row at r.Key. Tags are matched
// with keyExpr's NULL-safe IS comparison, so an existing tagless row
// is found and replaced even though SQLite's bare "=" would not match
// it against a bound NULL.
func (q queryable) UpsertByKey(r reservation.Reservation) error {
	if _, err := q.b.Delete("reservations", keyExpr(r.Key)).Execute(); err != nil {
		return errs.IOf("upsert_by_key (delete phase): %v", err)
	}
	if _, err := q.b.Insert("reservations", insertParams(r)).Execute(); err != nil {
		if isUniqueViolation(err, "port") {
			return errs.IOf("upsert_by_key: port %d already reserved by another key", r.Port)
		}
		return errs.IOf("upsert_by_key (insert phase): %v", err)
	}
	return nil
}

func insertParams(r reservation.Reservation) dbx.Params {
	p := dbx.Params{
		"path":         r.Key.Path,
		"port":         int(r.Port),
		"created_at":   r.CreatedAt,
		"last_used_at": r.LastUsedAt,
	}
	if r.Key.HasTag {
		p["tag"] = r.Key.Tag
	} else {
		p["tag"] = nil
	}
	if r.HasProject {
		p["project"] = r.Project
	} else {
		p["project"] = nil
	}
	if r.HasTask {
		p["task"] = r.Task
	} else {
		p["task"] = nil
	}
	return p
}

// UpdateLastUsed bumps the row at key to now, returning false if the
// key is absent rather than treating it as an error.
func (q queryable) UpdateLastUsed(key reservation.Key, now int64) (bool, error) {
	res, err := q.b.Update("reservations", dbx.Params{"last_used_at": now}, keyExpr(key)).Execute()
	if err != nil {
		return false, errs.IOf("update_last_used: %v", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Delete removes the row at key, returning false if it was absent.
func (q queryable) Delete(key reservation.Key) (bool, error) {
	res, err := q.b.Delete("reservations", keyExpr(key)).Execute()
	if err != nil {
		return false, errs.IOf("delete: %v", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func fromRows(rows []row) []reservation.Reservation {
	out := make([]reservation.Reservation, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out
}

// Now is the wall-clock source the rest of the engine uses for
// CreatedAt/LastUsedAt/cleanup cutoffs, isolated here so tests can
// substitute a fixed clock.
func Now() int64 { return time.Now().Unix() }
