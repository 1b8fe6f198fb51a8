package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// csvHeader lists the exported columns.
var csvHeader = []string{
	"date", "child", "parent", "checkInTime", "checkOutTime",
	"checkInStaffId", "checkOutStaffId", "durationMinutes", "notes",
}

// WriteCSV renders enriched rows as delimited text. Every field is quoted
// unconditionally so embedded commas, quotes, and newlines in free-text
// notes survive a round trip.
func WriteCSV(w io.Writer, rows []Row) error {
	if err := writeLine(w, csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		out := ""
		durMin := ""
		if row.CheckOutTime != nil {
			out = row.CheckOutTime.Format(time.RFC3339)
			durMin = fmt.Sprintf("%d", int64(row.CheckOutTime.Sub(row.CheckInTime).Minutes()))
		}
		fields := []string{
			row.Date,
			row.ChildName,
			row.ParentName,
			row.CheckInTime.Format(time.RFC3339),
			out,
			row.CheckInStaffID,
			row.CheckOutStaffID,
			durMin,
			row.Notes,
		}
		if err := writeLine(w, fields); err != nil {
			return err
		}
	}
	return nil
}

func writeLine(w io.Writer, fields []string) error {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quote(f)
	}
	_, err := io.WriteString(w, strings.Join(quoted, ",")+"\n")
	return err
}

// quote wraps a field in double quotes, doubling any internal quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
