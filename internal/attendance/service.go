// Package attendance implements the session state machine: a record is
// opened by a check-in, closed exactly once by a check-out, and a child
// can have at most one open session at any instant.
package attendance

import (
	"context"
	"time"

	"kidcheck/internal/apperr"
)

// Record is one child's open-to-closed presence session. Date is fixed
// from the check-in instant and never recomputed.
type Record struct {
	ID              string     `json:"id"`
	ChildID         string     `json:"childId"`
	ParentID        string     `json:"parentId"`
	CheckInTime     time.Time  `json:"checkInTime"`
	CheckOutTime    *time.Time `json:"checkOutTime,omitempty"`
	CheckInStaffID  string     `json:"checkInStaffId"`
	CheckOutStaffID string     `json:"checkOutStaffId,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Date            string     `json:"date"`
}

// Open reports whether the session has not been closed yet.
func (r Record) Open() bool { return r.CheckOutTime == nil }

// Selector picks the open sessions a Close call targets: one record, one
// child's open session, or every open session for a parent. Exactly one
// field must be set.
type Selector struct {
	RecordID string
	ChildID  string
	ParentID string
}

func (s Selector) valid() bool {
	n := 0
	for _, v := range []string{s.RecordID, s.ChildID, s.ParentID} {
		if v != "" {
			n++
		}
	}
	return n == 1
}

// Action is a bulk mark direction.
type Action string

const (
	ActionCheckIn  Action = "CheckIn"
	ActionCheckOut Action = "CheckOut"
)

// Filter narrows record listings for the read side.
type Filter struct {
	From     time.Time
	To       time.Time
	ChildID  string
	ParentID string
}

// Store is the persistence contract for sessions. The SQL repository is
// the production implementation; the database is the source of truth for
// the one-open-session invariant, and CloseAllForParent is atomic.
type Store interface {
	InsertOpen(ctx context.Context, rec Record) (Record, error)
	CloseByRecordID(ctx context.Context, recordID, staffID, notes string, now time.Time) (Record, error)
	CloseByChildID(ctx context.Context, childID, staffID, notes string, now time.Time, sameDayOnly bool) (Record, error)
	CloseAllForParent(ctx context.Context, parentID, staffID, notes string, now time.Time, sameDayOnly bool) ([]Record, error)
	OpenForChild(ctx context.Context, childID string) (*Record, error)
	ListOpenForParent(ctx context.Context, parentID string, sameDayOnly bool, now time.Time) ([]Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
}

// Roster is the slice of reference data the engine needs: which parent a
// child belongs to.
type Roster interface {
	ParentOfChild(ctx context.Context, childID string) (string, error)
}

// Service enforces the session state machine on top of a Store.
type Service struct {
	store       Store
	roster      Roster
	sameDayOnly bool
	now         func() time.Time
}

// NewService creates the engine. sameDayOnly restricts check-out to
// sessions opened on the current calendar day.
func NewService(store Store, roster Roster, sameDayOnly bool) *Service {
	return &Service{store: store, roster: roster, sameDayOnly: sameDayOnly, now: time.Now}
}

// CheckIn opens a session for a child. It fails with a ConflictError when
// the child already has an open session; the store's uniqueness constraint
// settles concurrent check-ins that slip past the pre-check.
func (s *Service) CheckIn(ctx context.Context, childID, staffID, notes string) (Record, error) {
	if childID == "" {
		return Record{}, &apperr.ValidationError{Field: "childId", Reason: "required"}
	}
	if staffID == "" {
		return Record{}, &apperr.ValidationError{Field: "staffId", Reason: "required"}
	}
	parentID, err := s.roster.ParentOfChild(ctx, childID)
	if err != nil {
		return Record{}, err
	}
	if open, err := s.store.OpenForChild(ctx, childID); err != nil {
		return Record{}, err
	} else if open != nil {
		return Record{}, &apperr.ConflictError{ChildID: childID, Reason: "already checked in"}
	}
	now := s.now()
	rec := Record{
		ChildID:        childID,
		ParentID:       parentID,
		CheckInTime:    now,
		CheckInStaffID: staffID,
		Notes:          notes,
		Date:           now.Format("2006-01-02"),
	}
	return s.store.InsertOpen(ctx, rec)
}

// CheckOut closes the sessions the selector matches. The parent variant
// closes every open session for that parent's children in one atomic
// store operation; a partial close never escapes. NotFoundError when the
// selector matches nothing, including a record that is already closed.
func (s *Service) CheckOut(ctx context.Context, sel Selector, staffID, notes string) ([]Record, error) {
	if !sel.valid() {
		return nil, &apperr.ValidationError{Field: "selector", Reason: "exactly one of recordId, childId, parentId required"}
	}
	if staffID == "" {
		return nil, &apperr.ValidationError{Field: "staffId", Reason: "required"}
	}
	now := s.now()
	switch {
	case sel.RecordID != "":
		rec, err := s.store.CloseByRecordID(ctx, sel.RecordID, staffID, notes, now)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	case sel.ChildID != "":
		rec, err := s.store.CloseByChildID(ctx, sel.ChildID, staffID, notes, now, s.sameDayOnly)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	default:
		recs, err := s.store.CloseAllForParent(ctx, sel.ParentID, staffID, notes, now, s.sameDayOnly)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, &apperr.NotFoundError{Kind: "open session for parent", ID: sel.ParentID}
		}
		return recs, nil
	}
}

// ListOpenFor returns the open sessions for a parent's linked children,
// restricted to today when the same-day policy is on.
func (s *Service) ListOpenFor(ctx context.Context, parentID string) ([]Record, error) {
	if parentID == "" {
		return nil, &apperr.ValidationError{Field: "parentId", Reason: "required"}
	}
	return s.store.ListOpenForParent(ctx, parentID, s.sameDayOnly, s.now())
}

// Mark applies a bulk check-in or check-out to several children. Bulk
// check-out runs as per-child closes; both directions stop at the first
// failure and report it, leaving earlier successes in place. Only the
// per-parent close is all-or-nothing.
func (s *Service) Mark(ctx context.Context, childIDs []string, action Action, staffID string) ([]Record, error) {
	if len(childIDs) == 0 {
		return nil, &apperr.ValidationError{Field: "childIds", Reason: "required"}
	}
	var out []Record
	for _, childID := range childIDs {
		switch action {
		case ActionCheckIn:
			rec, err := s.CheckIn(ctx, childID, staffID, "")
			if err != nil {
				return out, err
			}
			out = append(out, rec)
		case ActionCheckOut:
			recs, err := s.CheckOut(ctx, Selector{ChildID: childID}, staffID, "")
			if err != nil {
				return out, err
			}
			out = append(out, recs...)
		default:
			return nil, &apperr.ValidationError{Field: "action", Reason: "must be CheckIn or CheckOut"}
		}
	}
	return out, nil
}

// List exposes the filtered session log for the read side.
func (s *Service) List(ctx context.Context, f Filter) ([]Record, error) {
	return s.store.List(ctx, f)
}
