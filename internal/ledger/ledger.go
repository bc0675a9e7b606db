// Package ledger keeps the append-only history of completed draw rounds.
package ledger

import (
	"time"

	"rollcall/internal/models"
)

// DrawInfo locates the first round a name was drawn in.
type DrawInfo struct {
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is the ordered list of draw records. Records are copied on the way
// in and on the way out, so an appended record can never change.
type Ledger struct {
	records []models.DrawRecord
	freq    map[string]int
	first   map[string]int // name -> index of earliest record
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		records: []models.DrawRecord{},
		freq:    make(map[string]int),
		first:   make(map[string]int),
	}
}

// FromRecords rebuilds a ledger from persisted history.
func FromRecords(records []models.DrawRecord) *Ledger {
	l := New()
	for _, r := range records {
		l.Append(r)
	}
	return l
}

// Append adds a record to the end of the ledger.
func (l *Ledger) Append(r models.DrawRecord) {
	r.Names = append([]string{}, r.Names...)
	idx := len(l.records)
	l.records = append(l.records, r)

	seen := make(map[string]bool, len(r.Names))
	for _, name := range r.Names {
		if seen[name] {
			continue
		}
		seen[name] = true
		l.freq[name]++
		if _, ok := l.first[name]; !ok {
			l.first[name] = idx
		}
	}
}

// FrequencyOf counts the records whose names include name.
func (l *Ledger) FrequencyOf(name string) int {
	return l.freq[name]
}

// Frequencies returns FrequencyOf for each of names.
func (l *Ledger) Frequencies(names []string) map[string]int {
	out := make(map[string]int, len(names))
	for _, n := range names {
		out[n] = l.freq[n]
	}
	return out
}

// FindDrawInfo returns the round and time of the earliest record holding
// name.
func (l *Ledger) FindDrawInfo(name string) (DrawInfo, bool) {
	idx, ok := l.first[name]
	if !ok {
		return DrawInfo{}, false
	}
	r := l.records[idx]
	return DrawInfo{Round: r.Round, Timestamp: r.Timestamp}, true
}

// Records returns a deep copy of every record in append order.
func (l *Ledger) Records() []models.DrawRecord {
	out := make([]models.DrawRecord, len(l.records))
	for i, r := range l.records {
		r.Names = append([]string{}, r.Names...)
		out[i] = r
	}
	return out
}

// Len is the number of completed draw rounds.
func (l *Ledger) Len() int {
	return len(l.records)
}
