package report

import (
	"strings"
	"testing"
	"time"

	"kidcheck/internal/attendance"
	"kidcheck/internal/roster"
)

func ts(hour, min int) time.Time {
	return time.Date(2026, 3, 8, hour, min, 0, 0, time.UTC)
}

func closedAt(rec attendance.Record, t time.Time) attendance.Record {
	rec.CheckOutTime = &t
	return rec
}

func TestSummarizeSkipsOpenSessions(t *testing.T) {
	// One closed two-hour session and one still open: the open session
	// contributes to neither numerator nor denominator.
	records := []attendance.Record{
		closedAt(attendance.Record{ID: "r1", CheckInTime: ts(9, 0)}, ts(11, 0)),
		{ID: "r2", CheckInTime: ts(9, 0)},
	}
	s := Summarize(records)
	if s.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", s.TotalSessions)
	}
	if s.CompletedSessions != 1 {
		t.Errorf("CompletedSessions = %d, want 1", s.CompletedSessions)
	}
	if s.AvgDurationHours != 2.0 {
		t.Errorf("AvgDurationHours = %v, want 2.0", s.AvgDurationHours)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalSessions != 0 || s.CompletedSessions != 0 || s.AvgDurationHours != 0 {
		t.Errorf("Summarize(nil) = %+v, want zeros", s)
	}
}

func TestApplyFilters(t *testing.T) {
	records := []attendance.Record{
		{ID: "r1", ChildID: "c1", ParentID: "p1", CheckInTime: ts(9, 0)},
		{ID: "r2", ChildID: "c2", ParentID: "p1", CheckInTime: ts(10, 0)},
		{ID: "r3", ChildID: "c1", ParentID: "p2", CheckInTime: ts(14, 0)},
	}

	tests := []struct {
		name   string
		filter attendance.Filter
		want   []string
	}{
		{"no filter", attendance.Filter{}, []string{"r1", "r2", "r3"}},
		{"child", attendance.Filter{ChildID: "c1"}, []string{"r1", "r3"}},
		{"parent", attendance.Filter{ParentID: "p1"}, []string{"r1", "r2"}},
		{"range inclusive", attendance.Filter{From: ts(9, 0), To: ts(10, 0)}, []string{"r1", "r2"}},
		{"range and child", attendance.Filter{From: ts(9, 30), ChildID: "c1"}, []string{"r3"}},
		{"empty result", attendance.Filter{ChildID: "c9"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(records, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("Apply returned %d records, want %d", len(got), len(tt.want))
			}
			for i, rec := range got {
				if rec.ID != tt.want[i] {
					t.Errorf("record[%d] = %s, want %s", i, rec.ID, tt.want[i])
				}
			}
		})
	}
}

func TestEnrichKeepsUnknownReferences(t *testing.T) {
	records := []attendance.Record{
		{ID: "r1", ChildID: "c1", ParentID: "p1"},
		{ID: "r2", ChildID: "gone", ParentID: "p1"},
	}
	children := []roster.Child{{ID: "c1", FirstName: "Emma", LastName: "Smith"}}
	parents := []roster.Parent{{ID: "p1", FirstName: "John", LastName: "Smith"}}

	rows := Enrich(records, children, parents)
	if len(rows) != 2 {
		t.Fatalf("Enrich dropped records: got %d, want 2", len(rows))
	}
	if rows[0].ChildName != "Emma Smith" || rows[0].ParentName != "John Smith" {
		t.Errorf("row0 names = %q/%q", rows[0].ChildName, rows[0].ParentName)
	}
	if rows[1].ChildName != "" {
		t.Errorf("unknown child name = %q, want empty", rows[1].ChildName)
	}
}

func TestWriteCSVQuotesEveryField(t *testing.T) {
	out := ts(11, 30)
	rows := []Row{
		{
			Record: attendance.Record{
				ID:              "r1",
				CheckInTime:     ts(9, 0),
				CheckOutTime:    &out,
				CheckInStaffID:  "staff-1",
				CheckOutStaffID: "staff-2",
				Notes:           `brought "blanket", pickup by grandma` + "\nsecond line",
				Date:            "2026-03-08",
			},
			ChildName:  "Emma, Smith",
			ParentName: "John Smith",
		},
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, rows); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	got := sb.String()

	lines := strings.SplitN(got, "\n", 2)
	if lines[0] != `"date","child","parent","checkInTime","checkOutTime","checkInStaffId","checkOutStaffId","durationMinutes","notes"` {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.Contains(got, `"Emma, Smith"`) {
		t.Error("embedded comma not preserved inside quotes")
	}
	if !strings.Contains(got, `""blanket""`) {
		t.Error("embedded quotes not doubled")
	}
	if !strings.Contains(got, `"150"`) {
		t.Error("duration minutes missing or unquoted")
	}
}

func TestWriteCSVOpenSessionFields(t *testing.T) {
	rows := []Row{{
		Record:    attendance.Record{ID: "r1", CheckInTime: ts(9, 0), Date: "2026-03-08"},
		ChildName: "Liam Johnson",
	}}
	var sb strings.Builder
	if err := WriteCSV(&sb, rows); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	// Open sessions export empty checkout and duration fields, still quoted.
	if !strings.Contains(sb.String(), `,"","",`) && !strings.Contains(sb.String(), `,"",""`) {
		t.Errorf("open session fields not rendered as quoted empties: %s", sb.String())
	}
}
