package roster

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"kidcheck/internal/apperr"
)

// Repository persists roster data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateParent inserts a parent with a fresh id and QR secret.
func (r *Repository) CreateParent(ctx context.Context, p Parent) (Parent, error) {
	if p.FirstName == "" || p.LastName == "" {
		return Parent{}, &apperr.ValidationError{Field: "name", Reason: "first and last name required"}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.QRSecret == "" {
		p.QRSecret = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO parents (id, first_name, last_name, email, phone, qr_secret)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.QRSecret)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return Parent{}, err
	}
	return p, nil
}

// GetParent returns a parent with its linked child ids.
func (r *Repository) GetParent(ctx context.Context, id string) (Parent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, phone, qr_secret, created_at
		FROM parents WHERE id = $1
	`, id)
	var p Parent
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.QRSecret, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Parent{}, &apperr.NotFoundError{Kind: "parent", ID: id}
		}
		return Parent{}, err
	}
	ids, err := r.childIDs(ctx, p.ID)
	if err != nil {
		return Parent{}, err
	}
	p.ChildIDs = ids
	return p, nil
}

// ListParents returns all parents with linked child ids.
func (r *Repository) ListParents(ctx context.Context) ([]Parent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, email, phone, qr_secret, created_at
		FROM parents ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var parents []Parent
	for rows.Next() {
		var p Parent
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.QRSecret, &p.CreatedAt); err != nil {
			return nil, err
		}
		parents = append(parents, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range parents {
		ids, err := r.childIDs(ctx, parents[i].ID)
		if err != nil {
			return nil, err
		}
		parents[i].ChildIDs = ids
	}
	return parents, nil
}

func (r *Repository) childIDs(ctx context.Context, parentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT child_id FROM parent_children WHERE parent_id = $1 ORDER BY child_id
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateChild inserts a child linked to an existing parent. A child
// without a parent link cannot be created.
func (r *Repository) CreateChild(ctx context.Context, parentID string, c Child) (Child, error) {
	if parentID == "" {
		return Child{}, &apperr.ValidationError{Field: "parentId", Reason: "parent required"}
	}
	if c.FirstName == "" || c.LastName == "" {
		return Child{}, &apperr.ValidationError{Field: "name", Reason: "first and last name required"}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Child{}, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM parents WHERE id = $1)`, parentID).Scan(&exists); err != nil {
		return Child{}, err
	}
	if !exists {
		return Child{}, &apperr.NotFoundError{Kind: "parent", ID: parentID}
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO children (id, first_name, last_name, date_of_birth, allergies, medical_notes, photo_url)
		VALUES ($1,$2,$3,NULLIF($4,'')::date,$5,$6,$7)
		RETURNING created_at
	`, c.ID, c.FirstName, c.LastName, c.DateOfBirth, c.Allergies, c.MedicalNotes, c.PhotoURL)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return Child{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO parent_children (parent_id, child_id) VALUES ($1, $2)
	`, parentID, c.ID); err != nil {
		return Child{}, err
	}
	return c, tx.Commit()
}

// ListChildren returns all children.
func (r *Repository) ListChildren(ctx context.Context) ([]Child, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, COALESCE(date_of_birth::text, ''), COALESCE(allergies, ''), COALESCE(medical_notes, ''), photo_url, created_at
		FROM children ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChildren(rows)
}

// ChildrenOf returns the children linked to a parent.
func (r *Repository) ChildrenOf(ctx context.Context, parentID string) ([]Child, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.first_name, c.last_name, COALESCE(c.date_of_birth::text, ''), COALESCE(c.allergies, ''), COALESCE(c.medical_notes, ''), c.photo_url, c.created_at
		FROM children c
		JOIN parent_children pc ON pc.child_id = c.id
		WHERE pc.parent_id = $1
		ORDER BY c.last_name, c.first_name
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChildren(rows)
}

func scanChildren(rows *sql.Rows) ([]Child, error) {
	var children []Child
	for rows.Next() {
		var c Child
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.DateOfBirth, &c.Allergies, &c.MedicalNotes, &c.PhotoURL, &c.CreatedAt); err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, rows.Err()
}

// ChildBelongsTo reports whether the child is linked to the parent.
func (r *Repository) ChildBelongsTo(ctx context.Context, parentID, childID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM parent_children WHERE parent_id = $1 AND child_id = $2)
	`, parentID, childID).Scan(&exists)
	return exists, err
}

// ParentOfChild returns the first linked parent for a child, used when a
// check-in names only the child.
func (r *Repository) ParentOfChild(ctx context.Context, childID string) (string, error) {
	var parentID string
	err := r.db.QueryRowContext(ctx, `
		SELECT parent_id FROM parent_children WHERE child_id = $1 ORDER BY parent_id LIMIT 1
	`, childID).Scan(&parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &apperr.NotFoundError{Kind: "child", ID: childID}
	}
	return parentID, err
}

// CreateStaff inserts a staff account.
func (r *Repository) CreateStaff(ctx context.Context, s Staff) (Staff, error) {
	if s.Email == "" {
		return Staff{}, &apperr.ValidationError{Field: "email", Reason: "required"}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Role == "" {
		s.Role = "staff"
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO staff (id, first_name, last_name, email, password_hash, role)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING active, created_at
	`, s.ID, s.FirstName, s.LastName, s.Email, s.PasswordHash, s.Role)
	if err := row.Scan(&s.Active, &s.CreatedAt); err != nil {
		return Staff{}, err
	}
	return s, nil
}

// StaffByEmail returns a staff account for login, or nil if unknown.
func (r *Repository) StaffByEmail(ctx context.Context, email string) (*Staff, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, password_hash, role, active, created_at
		FROM staff WHERE email = $1
	`, email)
	var s Staff
	if err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.PasswordHash, &s.Role, &s.Active, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
