package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mode selects how a draw samples names from the undrawn pool.
type Mode string

const (
	ModeUniform  Mode = "uniform"
	ModeWeighted Mode = "weighted"
	ModeFair     Mode = "fair"
)

// Modes lists every supported draw mode in display order.
var Modes = []Mode{ModeUniform, ModeWeighted, ModeFair}

// ParseMode converts user input into a Mode. Matching is case-insensitive and
// accepts "regular" and "normal" as aliases for uniform. The Chinese labels
// older saves recorded in their history map to the same modes; a quick draw
// (一键抽取) always sampled uniformly.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uniform", "regular", "normal", "", "常规", "一键抽取":
		return ModeUniform, true
	case "weighted", "weight", "权重模式", "权重":
		return ModeWeighted, true
	case "fair", "balanced", "公平模式", "公平":
		return ModeFair, true
	}
	return "", false
}

// UnmarshalJSON canonicalizes known aliases. Unknown labels are kept as
// written so an old history entry never makes a save unreadable.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, ok := ParseMode(s); ok {
		*m = parsed
		return nil
	}
	*m = Mode(s)
	return nil
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeUniform, ModeWeighted, ModeFair:
		return true
	}
	return false
}

const (
	// DefaultWeight applies to any name without a weight override.
	DefaultWeight = 5
	MinWeight     = 1
	MaxWeight     = 10
)

// LegacyTimeLayout is the local-time format older saves used for every
// timestamp.
const LegacyTimeLayout = "2006-01-02 15:04:05"

// looseTime decodes RFC 3339 as well as LegacyTimeLayout.
type looseTime time.Time

func (t *looseTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = looseTime{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339, s); err == nil {
		*t = looseTime(v)
		return nil
	}
	v, err := time.ParseInLocation(LegacyTimeLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q is neither RFC 3339 nor %q", s, LegacyTimeLayout)
	}
	*t = looseTime(v)
	return nil
}

// DrawRecord is one completed round in the history ledger.
type DrawRecord struct {
	Round     int       `json:"round"`
	Names     []string  `json:"selected"`
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode"`
}

func (r *DrawRecord) UnmarshalJSON(data []byte) error {
	type plain DrawRecord
	aux := struct {
		*plain
		Timestamp looseTime `json:"timestamp"`
	}{plain: (*plain)(r), Timestamp: looseTime(r.Timestamp)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Timestamp = time.Time(aux.Timestamp)
	return nil
}

// ImportRecord remembers one bulk import so the batch can be reselected later.
type ImportRecord struct {
	Label     string    `json:"name"`
	Path      string    `json:"path"`
	Names     []string  `json:"students"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *ImportRecord) UnmarshalJSON(data []byte) error {
	type plain ImportRecord
	aux := struct {
		*plain
		Timestamp looseTime `json:"timestamp"`
	}{plain: (*plain)(r), Timestamp: looseTime(r.Timestamp)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Timestamp = time.Time(aux.Timestamp)
	return nil
}

// Settings are the engine flags persisted alongside the state.
type Settings struct {
	AutoBackup bool `json:"auto_backup"`
	AutoSave   bool `json:"auto_save"`
}

// State is the complete engine state as written to the primary save and to
// every snapshot.
type State struct {
	Undrawn       []string       `json:"unselected"`
	Drawn         []string       `json:"selected"`
	Round         int            `json:"round"`
	History       []DrawRecord   `json:"history"`
	Weights       map[string]int `json:"weights"`
	ImportHistory []ImportRecord `json:"import_history"`
	Settings      Settings       `json:"settings"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// UnmarshalJSON accepts saves in the current format and in the older one,
// whose timestamps used LegacyTimeLayout.
func (s *State) UnmarshalJSON(data []byte) error {
	type plain State
	aux := struct {
		*plain
		LastUpdated looseTime `json:"last_updated"`
	}{plain: (*plain)(s), LastUpdated: looseTime(s.LastUpdated)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.LastUpdated = time.Time(aux.LastUpdated)
	return nil
}

// NewState returns an empty state positioned at round 1.
func NewState() *State {
	s := &State{Round: 1}
	s.Normalize()
	return s
}

// Normalize replaces nil collections with empty ones and clamps the round so
// that decoded and freshly built states compare equal.
func (s *State) Normalize() {
	if s.Undrawn == nil {
		s.Undrawn = []string{}
	}
	if s.Drawn == nil {
		s.Drawn = []string{}
	}
	if s.History == nil {
		s.History = []DrawRecord{}
	}
	for i := range s.History {
		if s.History[i].Names == nil {
			s.History[i].Names = []string{}
		}
	}
	if s.Weights == nil {
		s.Weights = map[string]int{}
	}
	if s.ImportHistory == nil {
		s.ImportHistory = []ImportRecord{}
	}
	for i := range s.ImportHistory {
		if s.ImportHistory[i].Names == nil {
			s.ImportHistory[i].Names = []string{}
		}
	}
	if s.Round < 1 {
		s.Round = 1
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Undrawn = append([]string{}, s.Undrawn...)
	c.Drawn = append([]string{}, s.Drawn...)
	c.History = make([]DrawRecord, len(s.History))
	for i, r := range s.History {
		r.Names = append([]string{}, r.Names...)
		c.History[i] = r
	}
	c.Weights = make(map[string]int, len(s.Weights))
	for k, v := range s.Weights {
		c.Weights[k] = v
	}
	c.ImportHistory = make([]ImportRecord, len(s.ImportHistory))
	for i, r := range s.ImportHistory {
		r.Names = append([]string{}, r.Names...)
		c.ImportHistory[i] = r
	}
	return &c
}

// SnapshotVersion is stamped on every snapshot record.
const SnapshotVersion = "3.0"

// SnapshotRecord is the on-disk form of a snapshot: the full state plus
// identifying metadata.
type SnapshotRecord struct {
	Version   string    `json:"version"`
	BackupID  string    `json:"backup_id"`
	CreatedAt time.Time `json:"created_at"`
	Reason    string    `json:"reason,omitempty"`
	State
}

// UnmarshalJSON decodes the metadata and the embedded state separately, since
// State has its own decoder. Older records carry only a "timestamp".
func (r *SnapshotRecord) UnmarshalJSON(data []byte) error {
	var meta struct {
		Version   string    `json:"version"`
		BackupID  string    `json:"backup_id"`
		CreatedAt looseTime `json:"created_at"`
		Timestamp looseTime `json:"timestamp"`
		Reason    string    `json:"reason"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &r.State); err != nil {
		return err
	}
	r.Version = meta.Version
	r.BackupID = meta.BackupID
	r.Reason = meta.Reason
	r.CreatedAt = time.Time(meta.CreatedAt)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Time(meta.Timestamp)
	}
	return nil
}

// Info summarizes the record for listings.
func (r *SnapshotRecord) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:        r.BackupID,
		CreatedAt: r.CreatedAt,
		Reason:    r.Reason,
		Total:     len(r.Undrawn) + len(r.Drawn),
		Drawn:     len(r.Drawn),
		Round:     r.Round,
	}
}

// SnapshotInfo is a listing entry for one snapshot.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Reason    string    `json:"reason,omitempty"`
	Total     int       `json:"total"`
	Drawn     int       `json:"drawn"`
	Round     int       `json:"round"`
}

// Stats are the roster counters shown alongside the pools.
type Stats struct {
	Total           int `json:"total"`
	Drawn           int `json:"drawn"`
	Undrawn         int `json:"undrawn"`
	Round           int `json:"round"`
	CompletedRounds int `json:"completed_rounds"`
}

// Event is pushed to live clients while the session changes.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Event types.
const (
	EventDrawStarted   = "draw_started"
	EventDrawTick      = "draw_tick"
	EventDrawCompleted = "draw_completed"
	EventDrawCancelled = "draw_cancelled"
	EventStateChanged  = "state_changed"
)
