package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"optify/internal/core"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("SQLite repository ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// AddTransaction stores t, assigning an id and creation time when missing.
func (r *SQLiteRepository) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.UserID == "" {
		return core.Transaction{}, core.ErrEmptyUser
	}
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, user_id, type, amount_cents, description, date, category, employee_id, platform_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, string(t.Type), t.Amount.Cents, t.Description, t.Date,
		string(t.Category), t.EmployeeID, t.PlatformID, t.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"user_id", t.UserID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"category", t.Category)

	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, amount_cents, description, date, category, employee_id, platform_id, created_at
		FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, f Filter) ([]core.Transaction, error) {
	var (
		conds = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, strings.TrimSpace(f.Date))
	}
	if f.Month != "" {
		conds = append(conds, "substr(date, 1, 8) = ?")
		args = append(args, strings.TrimSpace(f.Month)+"-")
	}
	if f.EmployeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.PlatformID != "" {
		conds = append(conds, "platform_id = ?")
		args = append(args, f.PlatformID)
	}

	query := `
		SELECT id, user_id, type, amount_cents, description, date, category, employee_id, platform_id, created_at
		FROM transactions WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY date, created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t         core.Transaction
		typ, cat  string
		createdAt string
	)
	err := s.Scan(&t.ID, &t.UserID, &typ, &t.Amount.Cents, &t.Description, &t.Date,
		&cat, &t.EmployeeID, &t.PlatformID, &createdAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Category = core.Category(cat)
	if ts, err := time.Parse(timeLayout, createdAt); err == nil {
		t.CreatedAt = ts
	}
	return t, nil
}

func (r *SQLiteRepository) GetState(ctx context.Context, userID string) (*core.GlobalFinancialState, error) {
	var doc string
	err := r.db.QueryRowContext(ctx,
		`SELECT document FROM financial_states WHERE user_id = ?`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("financial state for %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get financial state: %w", err)
	}

	var st core.GlobalFinancialState
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return nil, fmt.Errorf("decode financial state: %w", err)
	}
	return &st, nil
}

func (r *SQLiteRepository) PutState(ctx context.Context, st core.GlobalFinancialState) (bool, error) {
	if st.UserID == "" {
		return false, core.ErrEmptyUser
	}
	doc, err := json.Marshal(st)
	if err != nil {
		return false, fmt.Errorf("encode financial state: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO financial_states (user_id, version, computed_at, document)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			version = excluded.version,
			computed_at = excluded.computed_at,
			document = excluded.document
		WHERE excluded.version > financial_states.version`,
		st.UserID, st.Version, st.ComputedAt.UTC().Format(timeLayout), string(doc))
	if err != nil {
		return false, fmt.Errorf("put financial state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put financial state: %w", err)
	}
	if n == 0 {
		slog.DebugContext(ctx, "Discarded stale financial state",
			"user_id", st.UserID, "version", st.Version)
		return false, nil
	}
	return true, nil
}

func (r *SQLiteRepository) StateVersions(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, version FROM financial_states`)
	if err != nil {
		return nil, fmt.Errorf("list state versions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			uid     string
			version int64
		)
		if err := rows.Scan(&uid, &version); err != nil {
			return nil, fmt.Errorf("scan state version: %w", err)
		}
		out[uid] = version
	}
	return out, rows.Err()
}
