package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/models"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Foreign keys are a per-connection setting, so they go on the DSN rather
	// than a one-off PRAGMA.
	if !strings.Contains(dataSourceName, "?") {
		dataSourceName += "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.Info("database connection established and schema initialized",
		zap.String("op", "store.NewSQLiteStore"), zap.String("driver", "sqlite3"))
	return s, nil
}

// initSchema creates the database tables if they don't already exist and adds new columns if necessary.
// Decimal fields are TEXT so no precision is lost; calendar dates are TEXT in YYYY-MM-DD form.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		owner_key TEXT NOT NULL,
		principal TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		tenure_months INTEGER NOT NULL,
		emi TEXT NOT NULL,
		start_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_loans_owner ON loans(owner_key);
	CREATE TABLE IF NOT EXISTS schedule_entries (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		emi_amount TEXT NOT NULL,
		principal_component TEXT NOT NULL,
		interest_component TEXT NOT NULL,
		remaining_principal TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_date TEXT,
		payment_method TEXT NOT NULL DEFAULT '',
		is_adjusted INTEGER NOT NULL DEFAULT 0,
		UNIQUE(loan_id, month),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE INDEX IF NOT EXISTS idx_schedule_due ON schedule_entries(status, due_date);
	CREATE TABLE IF NOT EXISTS adjustment_events (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		event_date TEXT NOT NULL,
		reduction_mode TEXT NOT NULL DEFAULT '',
		new_emi TEXT NOT NULL,
		new_tenure INTEGER NOT NULL,
		interest_saved TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		schedule_entry_id TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		owner_key TEXT NOT NULL,
		syllabus TEXT NOT NULL,
		name TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		completed_at DATETIME,
		next_review_date TEXT,
		interval_days INTEGER NOT NULL DEFAULT 0,
		ease_factor REAL NOT NULL DEFAULT 2.5,
		review_count INTEGER NOT NULL DEFAULT 0,
		last_reviewed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_topics_review ON topics(owner_key, next_review_date);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added to loans after the first schema; older databases get them here.
	columns := []string{
		"name TEXT NOT NULL DEFAULT ''",
		"emi_overridden INTEGER NOT NULL DEFAULT 0",
		"closed_on TEXT",
	}

	for _, col := range columns {
		_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE loans ADD COLUMN %s", col))
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}

	return nil
}

// isDuplicateColumnError checks if the error indicates a duplicate column.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

func nullDate(d *civil.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*civil.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		logRollback(s.logger, op, err)
		return err
	}
	return tx.Commit()
}

// logRollback reports an aborted transaction. Missing rows are routine.
func logRollback(logger *zap.Logger, op string, err error) {
	level := zap.WarnLevel
	if errors.Is(err, ErrNotFound) {
		level = zap.DebugLevel
	}
	if ce := logger.Check(level, "transaction rolled back"); ce != nil {
		ce.Write(zap.String("op", op), zap.Error(err))
	}
}

// --- loans ---

const loanColumns = `id, owner_key, name, principal, annual_rate, tenure_months, emi, emi_overridden, start_date, status, closed_on, created_at, updated_at`

// CreateLoan inserts a new loan and its schedule in one transaction.
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan, schedule []models.ScheduleEntry) error {
	return s.withTx(ctx, "store.CreateLoan", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			loan.ID, loan.OwnerKey, loan.Name, loan.Principal, loan.AnnualRate, loan.TenureMonths, loan.EMI,
			loan.EMIOverridden, loan.StartDate.String(), loan.Status, nullDate(loan.ClosedOn), loan.CreatedAt, loan.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create loan: %w", err)
		}
		return insertEntries(ctx, tx, schedule)
	})
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	return updateLoan(ctx, s.db, loan)
}

func updateLoan(ctx context.Context, q querier, loan *models.Loan) error {
	result, err := q.ExecContext(ctx,
		`UPDATE loans SET owner_key = ?, name = ?, principal = ?, annual_rate = ?, tenure_months = ?, emi = ?, emi_overridden = ?, start_date = ?, status = ?, closed_on = ?, updated_at = ? WHERE id = ?`,
		loan.OwnerKey, loan.Name, loan.Principal, loan.AnnualRate, loan.TenureMonths, loan.EMI, loan.EMIOverridden,
		loan.StartDate.String(), loan.Status, nullDate(loan.ClosedOn), loan.UpdatedAt, loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return expectOneRow(result, "loan", loan.ID)
}

func expectOneRow(result sql.Result, kind string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// DeleteLoan removes a loan with its schedule and events within a transaction.
func (s *SQLiteStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, "store.DeleteLoan", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM adjustment_events WHERE loan_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete associated events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE loan_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete associated schedule: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete loan: %w", err)
		}
		return expectOneRow(result, "loan", id)
	})
}

// ListLoans retrieves every loan belonging to ownerKey, oldest first.
func (s *SQLiteStore) ListLoans(ctx context.Context, ownerKey string) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE owner_key = ? ORDER BY created_at ASC`, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// ListActiveLoans retrieves all active loans.
func (s *SQLiteStore) ListActiveLoans(ctx context.Context) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE status = ?`, models.LoanStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to get all active loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var (
		loan     models.Loan
		start    string
		closedOn sql.NullString
	)
	err := row.Scan(&loan.ID, &loan.OwnerKey, &loan.Name, &loan.Principal, &loan.AnnualRate, &loan.TenureMonths, &loan.EMI,
		&loan.EMIOverridden, &start, &loan.Status, &closedOn, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if loan.StartDate, err = civil.ParseDate(start); err != nil {
		return nil, fmt.Errorf("bad start_date %q: %w", start, err)
	}
	if loan.ClosedOn, err = parseNullDate(closedOn); err != nil {
		return nil, fmt.Errorf("bad closed_on %q: %w", closedOn.String, err)
	}
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// --- schedule ---

const entryColumns = `id, loan_id, month, due_date, emi_amount, principal_component, interest_component, remaining_principal, status, paid_date, payment_method, is_adjusted`

func insertEntries(ctx context.Context, q querier, entries []models.ScheduleEntry) error {
	for _, e := range entries {
		_, err := q.ExecContext(ctx,
			`INSERT INTO schedule_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.LoanID, e.Month, e.DueDate.String(), e.EMIAmount, e.PrincipalComponent, e.InterestComponent,
			e.RemainingPrincipal, e.Status, nullDate(e.PaidDate), e.PaymentMethod, e.IsAdjusted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert schedule entry %d: %w", e.Month, err)
		}
	}
	return nil
}

func replaceSchedule(ctx context.Context, q querier, loanID uuid.UUID, entries []models.ScheduleEntry) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM schedule_entries WHERE loan_id = ?`, loanID); err != nil {
		return fmt.Errorf("failed to clear schedule: %w", err)
	}
	return insertEntries(ctx, q, entries)
}

// SaveSchedule replaces the loan's schedule with entries.
func (s *SQLiteStore) SaveSchedule(ctx context.Context, loanID uuid.UUID, entries []models.ScheduleEntry) error {
	return s.withTx(ctx, "store.SaveSchedule", func(tx *sql.Tx) error {
		return replaceSchedule(ctx, tx, loanID, entries)
	})
}

// GetSchedule returns the loan's schedule ordered by month.
func (s *SQLiteStore) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]models.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM schedule_entries WHERE loan_id = ? ORDER BY month ASC`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// SavePayment writes a paid instalment and the loan it belongs to.
func (s *SQLiteStore) SavePayment(ctx context.Context, loan *models.Loan, entry *models.ScheduleEntry) error {
	return s.withTx(ctx, "store.SavePayment", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE schedule_entries SET status = ?, paid_date = ?, payment_method = ? WHERE id = ? AND loan_id = ?`,
			entry.Status, nullDate(entry.PaidDate), entry.PaymentMethod, entry.ID, entry.LoanID,
		)
		if err != nil {
			return fmt.Errorf("failed to update schedule entry: %w", err)
		}
		if err := expectOneRow(result, "schedule entry", entry.ID); err != nil {
			return err
		}
		return updateLoan(ctx, tx, loan)
	})
}

// ListDueEntries returns Pending entries of active loans due within [from, to].
func (s *SQLiteStore) ListDueEntries(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.loan_id, e.month, e.due_date, e.emi_amount, e.principal_component, e.interest_component, e.remaining_principal, e.status, e.paid_date, e.payment_method, e.is_adjusted
		FROM schedule_entries e JOIN loans l ON l.id = e.loan_id
		WHERE e.status = ? AND l.status = ? AND e.due_date >= ? AND e.due_date <= ?
		ORDER BY e.due_date ASC, e.month ASC`,
		models.EntryStatusPending, models.LoanStatusActive, from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	for rows.Next() {
		var (
			e        models.ScheduleEntry
			due      string
			paidDate sql.NullString
		)
		err := rows.Scan(&e.ID, &e.LoanID, &e.Month, &due, &e.EMIAmount, &e.PrincipalComponent, &e.InterestComponent,
			&e.RemainingPrincipal, &e.Status, &paidDate, &e.PaymentMethod, &e.IsAdjusted)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		if e.DueDate, err = civil.ParseDate(due); err != nil {
			return nil, fmt.Errorf("bad due_date %q: %w", due, err)
		}
		if e.PaidDate, err = parseNullDate(paidDate); err != nil {
			return nil, fmt.Errorf("bad paid_date %q: %w", paidDate.String, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for schedule: %w", err)
	}
	return entries, nil
}

// --- adjustments ---

// ApplyAdjustment replaces the loan's schedule, updates the loan and appends
// event in a single transaction.
func (s *SQLiteStore) ApplyAdjustment(ctx context.Context, loan *models.Loan, entries []models.ScheduleEntry, event *models.AdjustmentEvent) error {
	return s.withTx(ctx, "store.ApplyAdjustment", func(tx *sql.Tx) error {
		if err := updateLoan(ctx, tx, loan); err != nil {
			return err
		}
		if err := replaceSchedule(ctx, tx, loan.ID, entries); err != nil {
			return err
		}

		var entryID uuid.NullUUID
		if event.ScheduleEntryID != nil {
			entryID = uuid.NullUUID{UUID: *event.ScheduleEntryID, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO adjustment_events (id, loan_id, type, amount, event_date, reduction_mode, new_emi, new_tenure, interest_saved, payment_method, schedule_entry_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.LoanID, event.Type, event.Amount, event.EventDate.String(), event.ReductionMode, event.NewEMI,
			event.NewTenure, event.InterestSaved, event.PaymentMethod, entryID, event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to record adjustment event: %w", err)
		}
		return nil
	})
}

// ListEvents retrieves the adjustment history of a loan, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, loanID uuid.UUID) ([]*models.AdjustmentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, loan_id, type, amount, event_date, reduction_mode, new_emi, new_tenure, interest_saved, payment_method, schedule_entry_id, created_at
		FROM adjustment_events WHERE loan_id = ? ORDER BY created_at ASC`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var events []*models.AdjustmentEvent
	for rows.Next() {
		var (
			event     models.AdjustmentEvent
			eventDate string
			entryID   uuid.NullUUID
		)
		err := rows.Scan(&event.ID, &event.LoanID, &event.Type, &event.Amount, &eventDate, &event.ReductionMode, &event.NewEMI,
			&event.NewTenure, &event.InterestSaved, &event.PaymentMethod, &entryID, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if event.EventDate, err = civil.ParseDate(eventDate); err != nil {
			return nil, fmt.Errorf("bad event_date %q: %w", eventDate, err)
		}
		if entryID.Valid {
			id := entryID.UUID
			event.ScheduleEntryID = &id
		}
		events = append(events, &event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan events: %w", err)
	}
	return events, nil
}

// --- topics ---

const topicColumns = `id, owner_key, syllabus, name, completed, completed_at, next_review_date, interval_days, ease_factor, review_count, last_reviewed_at, created_at, updated_at`

// CreateTopic inserts a new topic.
func (s *SQLiteStore) CreateTopic(ctx context.Context, topic *models.Topic) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (`+topicColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		topic.ID, topic.OwnerKey, topic.Syllabus, topic.Name, topic.Completed, topic.CompletedAt, nullDate(topic.NextReviewDate),
		topic.IntervalDays, topic.EaseFactor, topic.ReviewCount, topic.LastReviewedAt, topic.CreatedAt, topic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}

// GetTopic retrieves a topic by its ID.
func (s *SQLiteStore) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id)
	topic, err := scanTopic(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("topic %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return topic, nil
}

// UpdateTopic overwrites every mutable column of a topic.
func (s *SQLiteStore) UpdateTopic(ctx context.Context, topic *models.Topic) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE topics SET syllabus = ?, name = ?, completed = ?, completed_at = ?, next_review_date = ?, interval_days = ?, ease_factor = ?, review_count = ?, last_reviewed_at = ?, updated_at = ? WHERE id = ?`,
		topic.Syllabus, topic.Name, topic.Completed, topic.CompletedAt, nullDate(topic.NextReviewDate), topic.IntervalDays,
		topic.EaseFactor, topic.ReviewCount, topic.LastReviewedAt, topic.UpdatedAt, topic.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}
	return expectOneRow(result, "topic", topic.ID)
}

// UpdateReview writes the outcome of one review as a single statement.
func (s *SQLiteStore) UpdateReview(ctx context.Context, id uuid.UUID, fields models.ReviewFields) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE topics SET next_review_date = ?, interval_days = ?, ease_factor = ?, review_count = ?, last_reviewed_at = ?, updated_at = ? WHERE id = ?`,
		fields.NextReviewDate.String(), fields.IntervalDays, fields.EaseFactor, fields.ReviewCount, fields.LastReviewedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	return expectOneRow(result, "topic", id)
}

// DeleteTopic removes a topic.
func (s *SQLiteStore) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	return expectOneRow(result, "topic", id)
}

// ListTopics returns the owner's topics, optionally restricted to one syllabus.
func (s *SQLiteStore) ListTopics(ctx context.Context, ownerKey, syllabus string) ([]*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE owner_key = ?`
	args := []any{ownerKey}
	if syllabus != "" {
		query += ` AND syllabus = ?`
		args = append(args, syllabus)
	}
	query += ` ORDER BY syllabus ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	return scanTopics(rows)
}

// ListDueTopics returns scheduled topics due on or before on.
func (s *SQLiteStore) ListDueTopics(ctx context.Context, ownerKey string, on civil.Date) ([]*models.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE next_review_date IS NOT NULL AND next_review_date <= ?`
	args := []any{on.String()}
	if ownerKey != "" {
		query += ` AND owner_key = ?`
		args = append(args, ownerKey)
	}
	query += ` ORDER BY next_review_date ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list due topics: %w", err)
	}
	defer rows.Close()

	return scanTopics(rows)
}

func scanTopic(row rowScanner) (*models.Topic, error) {
	var (
		topic        models.Topic
		completedAt  sql.NullTime
		nextReview   sql.NullString
		lastReviewed sql.NullTime
	)
	err := row.Scan(&topic.ID, &topic.OwnerKey, &topic.Syllabus, &topic.Name, &topic.Completed, &completedAt, &nextReview,
		&topic.IntervalDays, &topic.EaseFactor, &topic.ReviewCount, &lastReviewed, &topic.CreatedAt, &topic.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		topic.CompletedAt = &completedAt.Time
	}
	if lastReviewed.Valid {
		topic.LastReviewedAt = &lastReviewed.Time
	}
	if topic.NextReviewDate, err = parseNullDate(nextReview); err != nil {
		return nil, fmt.Errorf("bad next_review_date %q: %w", nextReview.String, err)
	}
	return &topic, nil
}

func scanTopics(rows *sql.Rows) ([]*models.Topic, error) {
	var topics []*models.Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic row: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for topics: %w", err)
	}
	return topics, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
