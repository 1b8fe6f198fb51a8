package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"kidcheck/internal/apperr"
)

// Repository persists attendance sessions in Postgres. It relies on the
// partial unique index attendance_one_open_per_child to linearize racing
// check-ins for the same child: exactly one insert wins, the loser gets a
// unique violation surfaced as a ConflictError.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, child_id, parent_id, check_in_time, check_out_time, check_in_staff_id, COALESCE(check_out_staff_id::text, ''), COALESCE(notes, ''), date::text`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	var out sql.NullTime
	if err := row.Scan(&rec.ID, &rec.ChildID, &rec.ParentID, &rec.CheckInTime, &out, &rec.CheckInStaffID, &rec.CheckOutStaffID, &rec.Notes, &rec.Date); err != nil {
		return Record{}, err
	}
	if out.Valid {
		t := out.Time
		rec.CheckOutTime = &t
	}
	return rec, nil
}

// InsertOpen writes a new open session.
func (r *Repository) InsertOpen(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, child_id, parent_id, check_in_time, check_in_staff_id, notes, date)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7::date)
	`, rec.ID, rec.ChildID, rec.ParentID, rec.CheckInTime, rec.CheckInStaffID, rec.Notes, rec.Date)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, &apperr.ConflictError{ChildID: rec.ChildID, Reason: "already checked in"}
		}
		return Record{}, err
	}
	return rec, nil
}

// closeSet appends the check-out note to any existing note rather than
// overwriting it; the check-in note survives.
const closeSet = `
	check_out_time = $1,
	check_out_staff_id = $2,
	notes = CASE
		WHEN $3 = '' THEN notes
		WHEN notes IS NULL OR notes = '' THEN $3
		ELSE notes || ' | ' || $3
	END`

// CloseByRecordID closes one open session by record id. A record that is
// already closed matches nothing: close is append-only.
func (r *Repository) CloseByRecordID(ctx context.Context, recordID, staffID, notes string, now time.Time) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records SET `+closeSet+`
		WHERE id = $4 AND check_out_time IS NULL
		RETURNING `+recordColumns+`
	`, now, staffID, notes, recordID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, &apperr.NotFoundError{Kind: "open session", ID: recordID}
	}
	return rec, err
}

// CloseByChildID closes the child's single open session.
func (r *Repository) CloseByChildID(ctx context.Context, childID, staffID, notes string, now time.Time, sameDayOnly bool) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records SET `+closeSet+`
		WHERE child_id = $4 AND check_out_time IS NULL
		  AND (NOT $5 OR date = $6::date)
		RETURNING `+recordColumns+`
	`, now, staffID, notes, childID, sameDayOnly, now.Format("2006-01-02"))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, &apperr.NotFoundError{Kind: "open session for child", ID: childID}
	}
	return rec, err
}

// CloseAllForParent closes every open session for the parent's linked
// children in a single UPDATE inside one transaction, so the family is
// either fully checked out or untouched.
func (r *Repository) CloseAllForParent(ctx context.Context, parentID, staffID, notes string, now time.Time, sameDayOnly bool) ([]Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE attendance_records SET `+closeSet+`
		WHERE check_out_time IS NULL
		  AND child_id IN (SELECT child_id FROM parent_children WHERE parent_id = $4)
		  AND (NOT $5 OR date = $6::date)
		RETURNING `+recordColumns+`
	`, now, staffID, notes, parentID, sameDayOnly, now.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return recs, nil
}

// OpenForChild returns the child's open session, or nil when there is none.
func (r *Repository) OpenForChild(ctx context.Context, childID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE child_id = $1 AND check_out_time IS NULL
	`, childID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListOpenForParent returns open sessions whose child is linked to the parent.
func (r *Repository) ListOpenForParent(ctx context.Context, parentID string, sameDayOnly bool, now time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE check_out_time IS NULL
		  AND child_id IN (SELECT child_id FROM parent_children WHERE parent_id = $1)
		  AND (NOT $2 OR date = $3::date)
		ORDER BY check_in_time
	`, parentID, sameDayOnly, now.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// List returns records matching the filter, newest first. The date range
// is an inclusive match against check_in_time.
func (r *Repository) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE TRUE`
	args := []any{}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += ` AND check_in_time >= $` + itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += ` AND check_in_time <= $` + itoa(len(args))
	}
	if f.ChildID != "" {
		args = append(args, f.ChildID)
		query += ` AND child_id = $` + itoa(len(args))
	}
	if f.ParentID != "" {
		args = append(args, f.ParentID)
		query += ` AND parent_id = $` + itoa(len(args))
	}
	query += ` ORDER BY check_in_time DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func itoa(i int) string { return strconv.Itoa(i) }
