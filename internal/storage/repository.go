package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tally/internal/core"

	sqlite "modernc.org/sqlite"
)

// SQLiteRepository is the template store and instance store backed by a
// local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite permits one writer at a time; a second pooled connection fails
	// with SQLITE_BUSY mid-transaction. A single shared connection queues
	// the parallel generator workers instead.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness-constraint
// failure. A violation on the (template, date) index is the benign signal
// that a concurrent run already generated the row.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		// SQLITE_CONSTRAINT_UNIQUE and SQLITE_CONSTRAINT_PRIMARYKEY
		return code == 2067 || code == 1555
	}
	return false
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullCents(m core.Money) any {
	if m.Cents == 0 {
		return nil
	}
	return m.Cents
}

func parseNullDate(ns sql.NullString) (core.Date, error) {
	if !ns.Valid || ns.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(ns.String)
}

const templateColumns = `id, owner_id, kind, description, amount_cents, is_split,
	original_amount_cents, split_with, expense_type, income_source,
	frequency, start_date, end_date, last_generated_date, next_generation_date, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (core.RecurringTemplate, error) {
	var (
		t                         core.RecurringTemplate
		startDate                 string
		originalCents             sql.NullInt64
		splitWith, expenseType    sql.NullString
		incomeSource              sql.NullString
		endDate, lastGen, nextGen sql.NullString
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Kind, &t.Description, &t.Amount.Cents, &t.IsSplit,
		&originalCents, &splitWith, &expenseType, &incomeSource,
		&t.Frequency, &startDate, &endDate, &lastGen, &nextGen, &t.IsActive)
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	t.OriginalAmount = core.Money{Cents: originalCents.Int64}
	t.SplitWith = splitWith.String
	t.ExpenseType = expenseType.String
	t.IncomeSource = incomeSource.String
	if t.StartDate, err = core.ParseDate(startDate); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("parse start date: %w", err)
	}
	if t.EndDate, err = parseNullDate(endDate); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("parse end date: %w", err)
	}
	if t.LastGenerated, err = parseNullDate(lastGen); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("parse last generated date: %w", err)
	}
	if t.NextGeneration, err = parseNullDate(nextGen); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("parse next generation date: %w", err)
	}
	return t, nil
}

// CreateTemplate inserts a new recurring template and returns its id.
func (r *SQLiteRepository) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, fmt.Errorf("validate template: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_templates (owner_id, kind, description, amount_cents, is_split,
			original_amount_cents, split_with, expense_type, income_source,
			frequency, start_date, end_date, last_generated_date, next_generation_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerID, string(t.Kind), t.Description, t.Amount.Cents, t.IsSplit,
		nullCents(t.OriginalAmount), nullString(t.SplitWith), nullString(t.ExpenseType), nullString(t.IncomeSource),
		string(t.Frequency), t.StartDate.String(), nullDate(t.EndDate),
		nullDate(t.LastGenerated), nullDate(t.NextGeneration), t.IsActive)
	if err != nil {
		return 0, fmt.Errorf("insert template: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetTemplate(ctx context.Context, id int64) (core.RecurringTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("get template %d: %w", id, err)
	}
	return t, nil
}

// ListTemplates returns every template, paused ones included.
func (r *SQLiteRepository) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []core.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// ListActiveDueBefore returns the active templates whose advisory
// next_generation_date is unset or falls on or before windowEnd. This is the
// cheap pre-filter; per-date existence checks remain the authority.
func (r *SQLiteRepository) ListActiveDueBefore(ctx context.Context, windowEnd core.Date) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM recurring_templates
		WHERE is_active = 1
		  AND (next_generation_date IS NULL OR next_generation_date <= ?)
		ORDER BY id`, windowEnd.String())
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	defer rows.Close()

	var templates []core.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// UpdateBookmark advances the template's generation bookmark.
func (r *SQLiteRepository) UpdateBookmark(ctx context.Context, id int64, lastGenerated, nextGeneration core.Date) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recurring_templates
		SET last_generated_date = ?, next_generation_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		nullDate(lastGenerated), nullDate(nextGeneration), id)
	if err != nil {
		return fmt.Errorf("update bookmark for template %d: %w", id, err)
	}
	return nil
}

// UpdateTemplate rewrites the user-editable fields. The generation bookmark
// is owned by the generator and left untouched.
func (r *SQLiteRepository) UpdateTemplate(ctx context.Context, t core.RecurringTemplate) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validate template: %w", err)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE recurring_templates
		SET description = ?, amount_cents = ?, is_split = ?, original_amount_cents = ?,
		    split_with = ?, expense_type = ?, income_source = ?,
		    frequency = ?, start_date = ?, end_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		t.Description, t.Amount.Cents, t.IsSplit, nullCents(t.OriginalAmount),
		nullString(t.SplitWith), nullString(t.ExpenseType), nullString(t.IncomeSource),
		string(t.Frequency), t.StartDate.String(), nullDate(t.EndDate), t.ID)
	if err != nil {
		return fmt.Errorf("update template %d: %w", t.ID, err)
	}
	return nil
}

// SetActive toggles the pause flag only; instances and bookmark are untouched.
func (r *SQLiteRepository) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recurring_templates SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active, id)
	if err != nil {
		return fmt.Errorf("set template %d active=%v: %w", id, active, err)
	}
	return nil
}

// DeleteTemplateRow removes the template row itself. Callers must reconcile
// the template's instances first so no instance is left pointing at a
// nonexistent template.
func (r *SQLiteRepository) DeleteTemplateRow(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recurring_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template %d: %w", id, err)
	}
	return nil
}

const instanceColumns = `id, owner_id, kind, description, amount_cents, txn_date, is_split,
	original_amount_cents, split_with, expense_type, income_source,
	recurring_template_id, is_generated`

func scanInstance(row rowScanner) (core.TransactionInstance, error) {
	var (
		i                      core.TransactionInstance
		txnDate                string
		originalCents          sql.NullInt64
		splitWith, expenseType sql.NullString
		incomeSource           sql.NullString
		templateID             sql.NullInt64
	)
	err := row.Scan(&i.ID, &i.OwnerID, &i.Kind, &i.Description, &i.Amount.Cents, &txnDate, &i.IsSplit,
		&originalCents, &splitWith, &expenseType, &incomeSource,
		&templateID, &i.IsGenerated)
	if err != nil {
		return core.TransactionInstance{}, err
	}
	i.OriginalAmount = core.Money{Cents: originalCents.Int64}
	i.SplitWith = splitWith.String
	i.ExpenseType = expenseType.String
	i.IncomeSource = incomeSource.String
	i.TemplateID = templateID.Int64
	if i.Date, err = core.ParseDate(txnDate); err != nil {
		return core.TransactionInstance{}, fmt.Errorf("parse txn date: %w", err)
	}
	return i, nil
}

func nullTemplateID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

const insertInstanceSQL = `
	INSERT INTO transaction_instances (owner_id, kind, description, amount_cents, txn_date, is_split,
		original_amount_cents, split_with, expense_type, income_source,
		recurring_template_id, is_generated)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func instanceArgs(i core.TransactionInstance) []any {
	return []any{
		i.OwnerID, string(i.Kind), i.Description, i.Amount.Cents, i.Date.String(), i.IsSplit,
		nullCents(i.OriginalAmount), nullString(i.SplitWith), nullString(i.ExpenseType), nullString(i.IncomeSource),
		nullTemplateID(i.TemplateID), i.IsGenerated,
	}
}

// CreateInstance inserts a single (typically hand-entered) instance.
func (r *SQLiteRepository) CreateInstance(ctx context.Context, i core.TransactionInstance) (int64, error) {
	if err := i.Validate(); err != nil {
		return 0, fmt.Errorf("validate instance: %w", err)
	}
	res, err := r.db.ExecContext(ctx, insertInstanceSQL, instanceArgs(i)...)
	if err != nil {
		return 0, fmt.Errorf("insert instance: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetInstance(ctx context.Context, id int64) (core.TransactionInstance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM transaction_instances WHERE id = ?`, id)
	i, err := scanInstance(row)
	if err != nil {
		return core.TransactionInstance{}, fmt.Errorf("get instance %d: %w", id, err)
	}
	return i, nil
}

func (r *SQLiteRepository) ListInstancesByTemplate(ctx context.Context, templateID int64) ([]core.TransactionInstance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+instanceColumns+`
		FROM transaction_instances
		WHERE recurring_template_id = ?
		ORDER BY txn_date`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list instances for template %d: %w", templateID, err)
	}
	defer rows.Close()

	var instances []core.TransactionInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return instances, nil
}

// ExistsForTemplateOnDate reports whether any instance is already linked to
// the template on the given date.
func (r *SQLiteRepository) ExistsForTemplateOnDate(ctx context.Context, templateID int64, date core.Date) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transaction_instances
			WHERE recurring_template_id = ? AND txn_date = ?
		)`, templateID, date.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check instance existence: %w", err)
	}
	return exists, nil
}

// BatchInsert inserts the staged instances in one transaction and returns
// the ids of the rows actually created. Rows that collide with the
// (template, date) unique index are skipped: a concurrent run got there
// first, which is exactly the state we wanted.
func (r *SQLiteRepository) BatchInsert(ctx context.Context, instances []core.TransactionInstance) ([]int64, error) {
	if len(instances) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertInstanceSQL)
	if err != nil {
		return nil, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	var inserted []int64
	for _, i := range instances {
		res, err := stmt.ExecContext(ctx, instanceArgs(i)...)
		if err != nil {
			if isUniqueViolation(err) {
				slog.InfoContext(ctx, "Instance already generated, skipping",
					"template_id", i.TemplateID,
					"date", i.Date.String())
				continue
			}
			return nil, fmt.Errorf("insert instance for template %d on %s: %w", i.TemplateID, i.Date, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("instance insert id: %w", err)
		}
		inserted = append(inserted, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch insert: %w", err)
	}
	return inserted, nil
}

// LatestGeneratedDate returns the txn date of the template's most recent
// machine-generated instance, or the zero date when none remain.
func (r *SQLiteRepository) LatestGeneratedDate(ctx context.Context, templateID int64) (core.Date, error) {
	var latest sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(txn_date) FROM transaction_instances
		WHERE recurring_template_id = ? AND is_generated = 1`,
		templateID).Scan(&latest)
	if err != nil {
		return core.Date{}, fmt.Errorf("latest generated date for template %d: %w", templateID, err)
	}
	return parseNullDate(latest)
}

// DeleteFutureGenerated removes the template's machine-generated instances
// dated strictly after the given day. Used by "edit all future instances":
// the next run regenerates them with the updated template values.
func (r *SQLiteRepository) DeleteFutureGenerated(ctx context.Context, templateID int64, after core.Date) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM transaction_instances
		WHERE recurring_template_id = ? AND is_generated = 1 AND txn_date > ?`,
		templateID, after.String())
	if err != nil {
		return 0, fmt.Errorf("delete future generated instances for template %d: %w", templateID, err)
	}
	return res.RowsAffected()
}

// DeleteFutureLinked removes every instance linked to the template dated
// strictly after the given day, generated or not. Used by template deletion.
func (r *SQLiteRepository) DeleteFutureLinked(ctx context.Context, templateID int64, after core.Date) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM transaction_instances
		WHERE recurring_template_id = ? AND txn_date > ?`,
		templateID, after.String())
	if err != nil {
		return 0, fmt.Errorf("delete future instances for template %d: %w", templateID, err)
	}
	return res.RowsAffected()
}

// UnlinkThrough detaches the template's past and present instances
// (txn_date <= through) so the historical ledger survives template deletion.
func (r *SQLiteRepository) UnlinkThrough(ctx context.Context, templateID int64, through core.Date) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transaction_instances
		SET recurring_template_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE recurring_template_id = ? AND txn_date <= ?`,
		templateID, through.String())
	if err != nil {
		return 0, fmt.Errorf("unlink instances for template %d: %w", templateID, err)
	}
	return res.RowsAffected()
}

// Detach unlinks a single instance from its series ("edit this instance only").
func (r *SQLiteRepository) Detach(ctx context.Context, instanceID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transaction_instances
		SET recurring_template_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, instanceID)
	if err != nil {
		return fmt.Errorf("detach instance %d: %w", instanceID, err)
	}
	return nil
}

// GetPendingSyncInstances returns instances not yet mirrored to the ledger
// spreadsheet, oldest first.
func (r *SQLiteRepository) GetPendingSyncInstances(ctx context.Context, limit int) ([]core.TransactionInstance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+instanceColumns+`
		FROM transaction_instances
		WHERE sync_status = 'pending'
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync instances: %w", err)
	}
	defer rows.Close()

	var instances []core.TransactionInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending instance: %w", err)
		}
		instances = append(instances, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending instances: %w", err)
	}
	return instances, nil
}

// MarkSynced marks an instance as successfully mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transaction_instances
		SET sync_status = 'synced', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark instance synced: %w", err)
	}
	slog.InfoContext(ctx, "Instance marked as synced", "id", id)
	return nil
}

// MarkSyncError marks an instance as having mirror errors.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transaction_instances
		SET sync_status = 'error', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark instance sync error: %w", err)
	}
	slog.WarnContext(ctx, "Instance marked with sync error", "id", id)
	return nil
}
