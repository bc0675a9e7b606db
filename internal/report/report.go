// Package report renders the session as a plain-text report and the draw
// history as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"rollcall/internal/ledger"
	"rollcall/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// utf8BOM makes spreadsheet programs read the CSV as UTF-8.
const utf8BOM = "\xef\xbb\xbf"

type frequency struct {
	name  string
	count int
}

// Write renders st as a text report generated at now.
func Write(w io.Writer, st *models.State, now time.Time) error {
	rw := &reportWriter{w: w}
	total := len(st.Undrawn) + len(st.Drawn)

	rw.printf("Roll Call Report\n")
	rw.printf("Generated: %s\n\n", now.Format(timeLayout))

	rw.printf("Summary\n")
	rw.printf("  %-18s%d\n", "Total names:", total)
	rw.printf("  %-18s%d\n", "Drawn:", len(st.Drawn))
	rw.printf("  %-18s%d\n", "Undrawn:", len(st.Undrawn))
	rw.printf("  %-18s%d\n", "Current round:", st.Round)
	rw.printf("  %-18s%d\n", "Completed rounds:", len(st.History))

	rw.printf("\nDraw History\n")
	if len(st.History) == 0 {
		rw.printf("  (none)\n")
	}
	for _, r := range st.History {
		rw.printf("  Round %d (%s, %s): %s\n", r.Round, r.Mode, r.Timestamp.Format(timeLayout), strings.Join(r.Names, ", "))
	}

	freqs := frequencies(st.History)
	rw.printf("\nDraw Frequency\n")
	if len(freqs) == 0 {
		rw.printf("  (none)\n")
	}
	col := 0
	for _, f := range freqs {
		col = max(col, displayWidth(f.name))
	}
	for _, f := range freqs {
		rw.printf("  %s  %d\n", pad(f.name, col), f.count)
	}

	if len(st.Weights) > 0 {
		rw.printf("\nWeights\n")
		names := make([]string, 0, len(st.Weights))
		col = 0
		for name := range st.Weights {
			names = append(names, name)
			col = max(col, displayWidth(name))
		}
		sort.Strings(names)
		for _, name := range names {
			rw.printf("  %s  %d\n", pad(name, col), st.Weights[name])
		}
	}

	rw.printf("\nRemaining (%d)\n", len(st.Undrawn))
	for _, name := range st.Undrawn {
		rw.printf("  %s\n", name)
	}
	return rw.err
}

// displayWidth is the number of terminal columns s occupies. Wide and
// fullwidth East Asian characters take two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// pad right-fills s with spaces to col columns.
func pad(s string, col int) string {
	if n := displayWidth(s); n < col {
		return s + strings.Repeat(" ", col-n)
	}
	return s
}

// frequencies counts draws per name, most drawn first and then by name.
func frequencies(history []models.DrawRecord) []frequency {
	l := ledger.FromRecords(history)
	seen := make(map[string]bool)
	var out []frequency
	for _, r := range history {
		for _, name := range r.Names {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, frequency{name: name, count: l.FrequencyOf(name)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

// WriteResultsCSV writes one row per drawn name: round, name, mode and time.
func WriteResultsCSV(w io.Writer, history []models.DrawRecord) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"round", "name", "mode", "timestamp"}); err != nil {
		return err
	}
	for _, r := range history {
		for _, name := range r.Names {
			row := []string{strconv.Itoa(r.Round), name, string(r.Mode), r.Timestamp.Format(time.RFC3339)}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// reportWriter remembers the first write error so rendering code can stay
// linear.
type reportWriter struct {
	w   io.Writer
	err error
}

func (rw *reportWriter) printf(format string, args ...interface{}) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, format, args...)
}
