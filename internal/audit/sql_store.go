// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tomtom215/audittrail/internal/logging"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name string

	idColumn    string
	preamble    []string
	lockHead    string
	placeholder func(n int) string
}

var (
	// DuckDB is the embedded default.
	DuckDB = Dialect{
		Name:        "duckdb",
		idColumn:    "id BIGINT PRIMARY KEY DEFAULT nextval('audit_events_id_seq')",
		preamble:    []string{"CREATE SEQUENCE IF NOT EXISTS audit_events_id_seq START 1"},
		placeholder: func(int) string { return "?" },
	}

	// Postgres serves shared deployments.
	Postgres = Dialect{
		Name:        "postgres",
		idColumn:    "id BIGSERIAL PRIMARY KEY",
		lockHead:    " FOR UPDATE",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// DialectByName returns the dialect for a configured driver name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case DuckDB.Name:
		return DuckDB, nil
	case Postgres.Name:
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("%w: unknown database driver %q", ErrInvalidArgument, name)
}

// queryArgs collects bind values and renders dialect placeholders.
type queryArgs struct {
	d      *Dialect
	values []interface{}
}

func (a *queryArgs) add(v interface{}) string {
	a.values = append(a.values, v)
	return a.d.placeholder(len(a.values))
}

// SQLStore implements Store and PolicyStore on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect

	// mu serializes writers within the process.
	mu sync.Mutex
}

// NewSQLStore creates a store on db. Call CreateSchema before use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Dialect returns the store's SQL dialect.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// eventColumns lists the columns written on insert, in bind order.
const eventColumns = `sequence_number, previous_hash, content_hash, created_at,
	user_id, user_name, ip_address, user_agent, session_id,
	action, entity_name, entity_id, property_name, old_value, new_value,
	old_state, new_state, description, context, severity, category,
	additional_data, duration_ns, success, error_message, stack_trace,
	correlation_id, module, process, http_method, http_path, http_status,
	permanent_retention, expires_at`

const eventColumnCount = 34

// selectColumns lists the columns read by scanEvent, in scan order.
const selectColumns = "id, integrity_verified, " + eventColumns

// CreateSchema creates the audit tables and indexes if they don't exist.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	statements := append([]string{}, s.dialect.preamble...)
	statements = append(statements, `
		CREATE TABLE IF NOT EXISTS audit_events (
			`+s.dialect.idColumn+`,
			sequence_number BIGINT NOT NULL UNIQUE,
			previous_hash TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			integrity_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,

			-- Actor
			user_id TEXT NOT NULL DEFAULT '',
			user_name TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',

			-- Change
			action TEXT NOT NULL,
			entity_name TEXT NOT NULL DEFAULT '',
			entity_id TEXT NOT NULL DEFAULT '',
			property_name TEXT NOT NULL DEFAULT '',
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			old_state TEXT,
			new_state TEXT,
			description TEXT NOT NULL DEFAULT '',
			context TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL,
			category TEXT NOT NULL,
			additional_data TEXT,

			-- Outcome
			duration_ns BIGINT NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error_message TEXT NOT NULL DEFAULT '',
			stack_trace TEXT NOT NULL DEFAULT '',

			-- Correlation and policy tags
			correlation_id TEXT NOT NULL DEFAULT '',
			module TEXT NOT NULL DEFAULT '',
			process TEXT NOT NULL DEFAULT '',

			-- HTTP request
			http_method TEXT NOT NULL DEFAULT '',
			http_path TEXT NOT NULL DEFAULT '',
			http_status INTEGER NOT NULL DEFAULT 0,

			-- Retention
			permanent_retention BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_user_name ON audit_events(user_name)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entity_name ON audit_events(entity_name)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_correlation_id ON audit_events(correlation_id)`,
		`CREATE TABLE IF NOT EXISTS audit_chain_head (
			id INTEGER PRIMARY KEY,
			last_sequence BIGINT NOT NULL,
			last_hash TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_policies (
			module TEXT NOT NULL,
			process TEXT NOT NULL,
			enabled BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			updated_by TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (module, process)
		)`,
	)

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	a := queryArgs{d: &s.dialect}
	seed := fmt.Sprintf(
		"INSERT INTO audit_chain_head (id, last_sequence, last_hash, updated_at) VALUES (1, 0, %s, %s) ON CONFLICT (id) DO NOTHING",
		a.add(GenesisHash), a.add(time.Now().UTC()))
	if _, err := s.db.ExecContext(ctx, seed, a.values...); err != nil {
		return fmt.Errorf("failed to seed chain head: %w", err)
	}

	logging.Info().Str("dialect", s.dialect.Name).Msg("Audit schema created/verified")
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendBatch implements Store. Failures are wrapped as ErrChainConflict,
// ErrEventRejected or ErrStoreUnavailable.
func (s *SQLStore) AppendBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.appendBatch(ctx, events)
	if err == nil || errors.Is(err, ErrChainConflict) {
		return err
	}
	return fmt.Errorf("%w: %w", classifyStoreError(err), err)
}

const pgUniqueViolation = "23505"

// classifyStoreError separates data errors, which fail again on retry,
// from transient ones. A duplicate sequence number means another writer
// advanced the chain.
func classifyStoreError(err error) error {
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		switch duckErr.Type {
		case duckdb.ErrorTypeConstraint:
			if strings.Contains(duckErr.Msg, "sequence_number") {
				return ErrChainConflict
			}
			return ErrEventRejected
		case duckdb.ErrorTypeInvalidInput, duckdb.ErrorTypeConversion,
			duckdb.ErrorTypeOutOfRange, duckdb.ErrorTypeMismatchType:
			return ErrEventRejected
		}
		return ErrStoreUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation && strings.Contains(pgErr.ConstraintName, "sequence_number") {
			return ErrChainConflict
		}
		// Class 22 is data exception, class 23 integrity constraint violation.
		if strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23") {
			return ErrEventRejected
		}
	}
	return ErrStoreUnavailable
}

func (s *SQLStore) appendBatch(ctx context.Context, events []*Event) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn().Err(rbErr).Msg("audit batch rollback failed")
			}
		}
	}()

	head, err := s.chainHead(ctx, tx, s.dialect.lockHead)
	if err != nil {
		return err
	}
	if err := checkExtends(head, events); err != nil {
		return err
	}

	insert := s.insertQuery()
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(events))
	for i, e := range events {
		if err := stmt.QueryRowContext(ctx, eventParams(e)...).Scan(&ids[i]); err != nil {
			return fmt.Errorf("insert event %d: %w", e.SequenceNumber, err)
		}
	}

	last := events[len(events)-1]
	a := queryArgs{d: &s.dialect}
	update := fmt.Sprintf("UPDATE audit_chain_head SET last_sequence = %s, last_hash = %s, updated_at = %s WHERE id = 1",
		a.add(last.SequenceNumber), a.add(last.ContentHash), a.add(time.Now().UTC()))
	if _, err := tx.ExecContext(ctx, update, a.values...); err != nil {
		return fmt.Errorf("advance chain head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for i, e := range events {
		e.ID = ids[i]
	}
	return nil
}

// insertQuery returns the INSERT statement for audit events.
func (s *SQLStore) insertQuery() string {
	placeholders := make([]string, eventColumnCount)
	for i := range placeholders {
		placeholders[i] = s.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO audit_events (%s) VALUES (%s) RETURNING id",
		eventColumns, strings.Join(placeholders, ", "))
}

// eventParams returns insert values in eventColumns order.
func eventParams(e *Event) []interface{} {
	var expiresAt interface{}
	if e.ExpiresAt != nil {
		expiresAt = normalizeTime(*e.ExpiresAt)
	}
	return []interface{}{
		e.SequenceNumber, e.PreviousHash, e.ContentHash, normalizeTime(e.Timestamp),
		e.UserID, e.UserName, e.IPAddress, e.UserAgent, e.SessionID,
		e.Action, e.EntityName, e.EntityID, e.PropertyName, e.OldValue, e.NewValue,
		rawText(e.OldState), rawText(e.NewState), e.Description, e.Context, string(e.Severity), string(e.Category),
		rawText(e.AdditionalData), int64(e.Duration), e.Success, e.ErrorMessage, e.StackTrace,
		e.CorrelationID, e.Module, e.Process, e.HTTPMethod, e.HTTPPath, e.HTTPStatus,
		e.PermanentRetention, expiresAt,
	}
}

// rawText stores JSON blobs as text so the hashed bytes survive unchanged.
func rawText(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLStore) chainHead(ctx context.Context, q queryRower, suffix string) (ChainHead, error) {
	var head ChainHead
	err := q.QueryRowContext(ctx, "SELECT last_sequence, last_hash FROM audit_chain_head WHERE id = 1"+suffix).
		Scan(&head.Sequence, &head.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ChainHead{Hash: GenesisHash}, nil
	}
	if err != nil {
		return ChainHead{}, fmt.Errorf("read chain head: %w", err)
	}
	return head, nil
}

// ChainHead implements Store.
func (s *SQLStore) ChainHead(ctx context.Context) (ChainHead, error) {
	return s.chainHead(ctx, s.db, "")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEvent reads a row selected with selectColumns.
func scanEvent(row rowScanner) (*Event, error) {
	var (
		e                         Event
		oldState, newState, extra sql.NullString
		severity, category        string
		duration                  int64
		expiresAt                 sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.IntegrityVerified,
		&e.SequenceNumber, &e.PreviousHash, &e.ContentHash, &e.Timestamp,
		&e.UserID, &e.UserName, &e.IPAddress, &e.UserAgent, &e.SessionID,
		&e.Action, &e.EntityName, &e.EntityID, &e.PropertyName, &e.OldValue, &e.NewValue,
		&oldState, &newState, &e.Description, &e.Context, &severity, &category,
		&extra, &duration, &e.Success, &e.ErrorMessage, &e.StackTrace,
		&e.CorrelationID, &e.Module, &e.Process, &e.HTTPMethod, &e.HTTPPath, &e.HTTPStatus,
		&e.PermanentRetention, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = e.Timestamp.UTC()
	e.Severity = Severity(severity)
	e.Category = Category(category)
	e.Duration = time.Duration(duration)
	e.OldState = nullRaw(oldState)
	e.NewState = nullRaw(newState)
	e.AdditionalData = nullRaw(extra)
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		e.ExpiresAt = &t
	}
	return &e, nil
}

func nullRaw(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

// queryEvents runs query and scans every row. A row that fails to scan
// fails the whole query so verification never mistakes it for a gap.
func (s *SQLStore) queryEvents(ctx context.Context, query string, args []interface{}) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event row: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id int64) (*Event, error) {
	a := queryArgs{d: &s.dialect}
	query := fmt.Sprintf("SELECT %s FROM audit_events WHERE id = %s", selectColumns, a.add(id))

	e, err := scanEvent(s.db.QueryRowContext(ctx, query, a.values...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return e, nil
}

// buildFilterConditions builds WHERE conditions from a search filter.
func (s *SQLStore) buildFilterConditions(f SearchFilter, a *queryArgs) string {
	var conditions []string

	if f.Text != "" {
		conditions = append(conditions, "LOWER(description) LIKE "+a.add(likePattern(f.Text))+` ESCAPE '\'`)
	}
	if f.UserName != "" {
		conditions = append(conditions, "LOWER(user_name) LIKE "+a.add(likePattern(f.UserName))+` ESCAPE '\'`)
	}
	if f.Action != "" {
		conditions = append(conditions, "action = "+a.add(f.Action))
	}
	if f.EntityType != "" {
		conditions = append(conditions, "entity_name = "+a.add(f.EntityType))
	}
	if f.EntityID != "" {
		conditions = append(conditions, "entity_id = "+a.add(f.EntityID))
	}
	if f.Start != nil {
		conditions = append(conditions, "created_at >= "+a.add(f.Start.UTC()))
	}
	if f.End != nil {
		conditions = append(conditions, "created_at <= "+a.add(f.End.UTC()))
	}

	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern returns a case-folded substring pattern with wildcards escaped.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// Search implements Store.
func (s *SQLStore) Search(ctx context.Context, filter SearchFilter, skip, take int) ([]Event, error) {
	a := queryArgs{d: &s.dialect}
	query := fmt.Sprintf("SELECT %s FROM audit_events%s ORDER BY created_at DESC, sequence_number DESC LIMIT %d OFFSET %d",
		selectColumns, s.buildFilterConditions(filter, &a), take, skip)
	return s.queryEvents(ctx, query, a.values)
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context, filter SearchFilter) (int64, error) {
	a := queryArgs{d: &s.dialect}
	query := "SELECT COUNT(*) FROM audit_events" + s.buildFilterConditions(filter, &a)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, a.values...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// ListBySequence implements Store.
func (s *SQLStore) ListBySequence(ctx context.Context, from, to int64, limit int) ([]Event, error) {
	a := queryArgs{d: &s.dialect}
	query := fmt.Sprintf("SELECT %s FROM audit_events WHERE sequence_number >= %s AND sequence_number <= %s ORDER BY sequence_number",
		selectColumns, a.add(from), a.add(to))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryEvents(ctx, query, a.values)
}

// MarkIntegrity implements Store.
func (s *SQLStore) MarkIntegrity(ctx context.Context, from, to int64, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := queryArgs{d: &s.dialect}
	query := fmt.Sprintf("UPDATE audit_events SET integrity_verified = %s WHERE sequence_number >= %s AND sequence_number <= %s",
		a.add(verified), a.add(from), a.add(to))
	if _, err := s.db.ExecContext(ctx, query, a.values...); err != nil {
		return fmt.Errorf("failed to mark integrity: %w", err)
	}
	return nil
}

// DeleteExpired implements Store. The chain head is left untouched.
func (s *SQLStore) DeleteExpired(ctx context.Context, createdBefore, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := queryArgs{d: &s.dialect}
	query := fmt.Sprintf(`DELETE FROM audit_events
		WHERE permanent_retention = FALSE
		AND (created_at < %s OR (expires_at IS NOT NULL AND expires_at < %s))`,
		a.add(createdBefore.UTC()), a.add(now.UTC()))

	result, err := s.db.ExecContext(ctx, query, a.values...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return deleted, nil
}

// countByColumn executes a GROUP BY query and returns counts per value.
func (s *SQLStore) countByColumn(ctx context.Context, column string) (map[string]int64, error) {
	result := make(map[string]int64)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_events GROUP BY %s", column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		result[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return result, nil
}

// Stats implements Store.
func (s *SQLStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE permanent_retention), MIN(created_at), MAX(created_at)
		FROM audit_events`).Scan(&stats.TotalEvents, &stats.PermanentEvents, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit totals: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time.UTC()
		stats.OldestEvent = &t
	}
	if newest.Valid {
		t := newest.Time.UTC()
		stats.NewestEvent = &t
	}

	if stats.EventsBySeverity, err = s.countByColumn(ctx, "severity"); err != nil {
		return nil, err
	}
	if stats.EventsByCategory, err = s.countByColumn(ctx, "category"); err != nil {
		return nil, err
	}
	if stats.Head, err = s.ChainHead(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

// ListPolicies implements PolicyStore.
func (s *SQLStore) ListPolicies(ctx context.Context) ([]PolicyRule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT module, process, enabled, updated_at, updated_by FROM audit_policies ORDER BY module, process")
	if err != nil {
		return nil, fmt.Errorf("failed to list audit policies: %w", err)
	}
	defer rows.Close()

	rules := []PolicyRule{}
	for rows.Next() {
		var r PolicyRule
		if err := rows.Scan(&r.Module, &r.Process, &r.Enabled, &r.UpdatedAt, &r.UpdatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan audit policy: %w", err)
		}
		r.UpdatedAt = r.UpdatedAt.UTC()
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit policies: %w", err)
	}
	return rules, nil
}

// SetPolicy implements PolicyStore.
func (s *SQLStore) SetPolicy(ctx context.Context, rule PolicyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := queryArgs{d: &s.dialect}
	query := fmt.Sprintf(`INSERT INTO audit_policies (module, process, enabled, updated_at, updated_by)
		VALUES (%s, %s, %s, %s, %s)
		ON CONFLICT (module, process) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		a.add(rule.Module), a.add(rule.Process), a.add(rule.Enabled), a.add(rule.UpdatedAt.UTC()), a.add(rule.UpdatedBy))
	if _, err := s.db.ExecContext(ctx, query, a.values...); err != nil {
		return fmt.Errorf("failed to save audit policy: %w", err)
	}
	return nil
}
