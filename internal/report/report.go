// Package report is the read side: filtered views and aggregates derived
// from the attendance log, never mutating it.
package report

import (
	"time"

	"kidcheck/internal/attendance"
	"kidcheck/internal/roster"
)

// Summary aggregates a filtered record set. AvgDurationHours is computed
// over closed sessions only: an open session contributes to neither the
// numerator nor the denominator.
type Summary struct {
	TotalSessions     int     `json:"totalSessions"`
	CompletedSessions int     `json:"completedSessions"`
	AvgDurationHours  float64 `json:"avgDurationHours"`
}

// Summarize computes the aggregate view of a record set.
func Summarize(records []attendance.Record) Summary {
	s := Summary{TotalSessions: len(records)}
	var total time.Duration
	for _, rec := range records {
		if rec.CheckOutTime == nil {
			continue
		}
		s.CompletedSessions++
		total += rec.CheckOutTime.Sub(rec.CheckInTime)
	}
	if s.CompletedSessions > 0 {
		s.AvgDurationHours = total.Hours() / float64(s.CompletedSessions)
	}
	return s
}

// Apply filters records in memory: inclusive date-range match on
// CheckInTime plus exact child/parent matches. The SQL repository applies
// the same filter server-side; this form serves callers that already hold
// the log.
func Apply(records []attendance.Record, f attendance.Filter) []attendance.Record {
	var out []attendance.Record
	for _, rec := range records {
		if !f.From.IsZero() && rec.CheckInTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && rec.CheckInTime.After(f.To) {
			continue
		}
		if f.ChildID != "" && rec.ChildID != f.ChildID {
			continue
		}
		if f.ParentID != "" && rec.ParentID != f.ParentID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Row is a record joined with display names for export.
type Row struct {
	attendance.Record
	ChildName  string `json:"childName"`
	ParentName string `json:"parentName"`
}

// Enrich joins records with child and parent display names. Records whose
// child or parent is no longer in the roster keep empty names rather than
// being dropped: the export is loss-less.
func Enrich(records []attendance.Record, children []roster.Child, parents []roster.Parent) []Row {
	childNames := make(map[string]string, len(children))
	for _, c := range children {
		childNames[c.ID] = c.FirstName + " " + c.LastName
	}
	parentNames := make(map[string]string, len(parents))
	for _, p := range parents {
		parentNames[p.ID] = p.FirstName + " " + p.LastName
	}
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row{
			Record:     rec,
			ChildName:  childNames[rec.ChildID],
			ParentName: parentNames[rec.ParentID],
		})
	}
	return rows
}
