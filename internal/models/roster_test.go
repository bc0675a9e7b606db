package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"uniform", ModeUniform, true},
		{" Regular ", ModeUniform, true},
		{"", ModeUniform, true},
		{"常规", ModeUniform, true},
		{"一键抽取", ModeUniform, true},
		{"WEIGHTED", ModeWeighted, true},
		{"权重模式", ModeWeighted, true},
		{"balanced", ModeFair, true},
		{"公平模式", ModeFair, true},
		{"lucky", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDrawRecordDecodesOlderFormat(t *testing.T) {
	var rec DrawRecord
	err := json.Unmarshal([]byte(`{"round": 2, "selected": ["A"], "timestamp": "2025-03-01 09:15:00", "mode": "权重模式"}`), &rec)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Round)
	assert.Equal(t, ModeWeighted, rec.Mode)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 15, 0, 0, time.Local), rec.Timestamp)

	err = json.Unmarshal([]byte(`{"round": 1, "selected": [], "timestamp": "2026-01-05T10:00:00Z", "mode": "custom"}`), &rec)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), rec.Timestamp)
	assert.Equal(t, Mode("custom"), rec.Mode, "unknown labels are kept")

	err = json.Unmarshal([]byte(`{"timestamp": "yesterday"}`), &rec)
	assert.Error(t, err)
}

func TestSnapshotRecordDecoding(t *testing.T) {
	created := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	rec := SnapshotRecord{
		Version:   SnapshotVersion,
		BackupID:  "abc",
		CreatedAt: created,
		Reason:    "manual",
		State:     *NewState(),
	}
	rec.Undrawn = []string{"A"}
	rec.LastUpdated = created
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var got SnapshotRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rec, got)

	older := `{"version": "2.1", "unselected": ["A", "B"], "selected": [], "round": 1,
		"history": [], "timestamp": "2025-03-01 09:15:05", "backup_id": "backup_20250301_091505"}`
	require.NoError(t, json.Unmarshal([]byte(older), &got))
	assert.Equal(t, "2.1", got.Version)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 15, 5, 0, time.Local), got.CreatedAt)
	assert.Equal(t, []string{"A", "B"}, got.Undrawn)
	assert.Empty(t, got.Reason)
}
