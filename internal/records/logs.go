package records

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxLogsPerAlert caps the stored fires per alert.
const DefaultMaxLogsPerAlert = 100

// DefaultLogRetention is the age past which fires are swept.
const DefaultLogRetention = 7 * 24 * time.Hour

type rawFire struct {
	FireID   json.Number     `json:"fire_id"`
	AlertID  json.Number     `json:"alert_id"`
	FireTime string          `json:"fire_time"`
	Name     string          `json:"name"`
	Message  string          `json:"message"`
	BarTime  json.RawMessage `json:"bar_time"`
}

// ParseFire transforms one raw fire payload into a LogRecord.
func ParseFire(raw json.RawMessage) (LogRecord, error) {
	var fire rawFire
	if err := json.Unmarshal(raw, &fire); err != nil {
		return LogRecord{}, fmt.Errorf("decode fire payload: %w", err)
	}
	id, err := fire.FireID.Int64()
	if err != nil {
		return LogRecord{}, fmt.Errorf("parse fire_id %q: %w", fire.FireID.String(), err)
	}
	alertID, err := fire.AlertID.Int64()
	if err != nil {
		return LogRecord{}, fmt.Errorf("parse alert_id %q: %w", fire.AlertID.String(), err)
	}
	ts, err := ParseFireTime(fire.FireTime)
	if err != nil {
		return LogRecord{}, err
	}
	return LogRecord{
		ID:        id,
		AlertID:   alertID,
		Timestamp: ts,
		Name:      fire.Name,
		Message:   NormalizeMessage(fire.Message),
		BarTime:   fire.BarTime,
	}, nil
}

// MergeFires folds a batch of raw fire payloads into the stored collection.
// Incoming records whose id already exists are skipped entirely; new records
// are inserted at the front. After each insertion the per-alert cap is
// enforced by evicting that alert's oldest-inserted excess, global order
// otherwise preserved. Returns the merged collection and the number of new
// records.
func MergeFires(logs []LogRecord, fires []json.RawMessage, maxPerAlert int, logger zerolog.Logger) ([]LogRecord, int) {
	if maxPerAlert <= 0 {
		maxPerAlert = DefaultMaxLogsPerAlert
	}

	known := make(map[int64]struct{}, len(logs))
	for _, log := range logs {
		known[log.ID] = struct{}{}
	}

	added := 0
	for _, raw := range fires {
		record, err := ParseFire(raw)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping unparseable fire payload")
			continue
		}
		if _, ok := known[record.ID]; ok {
			continue
		}
		logs = append([]LogRecord{record}, logs...)
		known[record.ID] = struct{}{}
		logs = enforceCap(logs, record.AlertID, maxPerAlert, known)
		added++
	}
	return logs, added
}

// enforceCap trims the trailing excess of one alert's subsequence from the
// global collection.
func enforceCap(logs []LogRecord, alertID int64, maxPerAlert int, known map[int64]struct{}) []LogRecord {
	indices := make([]int, 0, maxPerAlert+1)
	for i, log := range logs {
		if log.AlertID == alertID {
			indices = append(indices, i)
		}
	}
	excess := len(indices) - maxPerAlert
	if excess <= 0 {
		return logs
	}

	evict := make(map[int]struct{}, excess)
	for _, idx := range indices[len(indices)-excess:] {
		evict[idx] = struct{}{}
		delete(known, logs[idx].ID)
	}

	trimmed := logs[:0]
	for i, log := range logs {
		if _, gone := evict[i]; gone {
			continue
		}
		trimmed = append(trimmed, log)
	}
	return trimmed
}

// DeleteFires removes every log whose id is in ids.
func DeleteFires(logs []LogRecord, ids []int64) []LogRecord {
	targets := idSet(ids)
	merged := make([]LogRecord, 0, len(logs))
	for _, log := range logs {
		if _, ok := targets[log.ID]; ok {
			continue
		}
		merged = append(merged, log)
	}
	return merged
}

// SweepLogs drops records older than the retention window relative to now.
func SweepLogs(logs []LogRecord, now time.Time, retention time.Duration) []LogRecord {
	if retention <= 0 {
		retention = DefaultLogRetention
	}
	cutoff := now.UnixMilli() - retention.Milliseconds()
	kept := make([]LogRecord, 0, len(logs))
	for _, log := range logs {
		if log.Timestamp <= cutoff {
			continue
		}
		kept = append(kept, log)
	}
	return kept
}
