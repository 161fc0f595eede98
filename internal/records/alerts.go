package records

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// ParseAlertList parses a full list_alerts payload. Entries that fail to
// parse are dropped and logged; response order is preserved. The result
// replaces the stored collection wholesale.
func ParseAlertList(raws []json.RawMessage, logger zerolog.Logger) []AlertRecord {
	alerts := make([]AlertRecord, 0, len(raws))
	for _, raw := range raws {
		record, err := ParseAlert(raw)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping unparseable alert payload")
			continue
		}
		alerts = append(alerts, record)
	}
	return alerts
}

// MergeCreate prepends a freshly created alert with status forced to active,
// whatever the raw payload claimed.
func MergeCreate(alerts []AlertRecord, record AlertRecord) []AlertRecord {
	record.Status = StatusActive
	merged := make([]AlertRecord, 0, len(alerts)+1)
	merged = append(merged, record)
	return append(merged, alerts...)
}

// MergeModify replaces the record sharing the incoming id, or appends it if
// no such record exists. Status is forced to active.
func MergeModify(alerts []AlertRecord, record AlertRecord) []AlertRecord {
	record.Status = StatusActive
	merged := make([]AlertRecord, len(alerts))
	replaced := false
	for i, existing := range alerts {
		if existing.ID == record.ID {
			merged[i] = record
			replaced = true
			continue
		}
		merged[i] = existing
	}
	if !replaced {
		merged = append(merged, record)
	}
	return merged
}

// FlipStatus sets the status of every alert whose id is in ids. IsEnabled is
// deliberately left untouched.
func FlipStatus(alerts []AlertRecord, ids []int64, status string) []AlertRecord {
	targets := idSet(ids)
	merged := make([]AlertRecord, len(alerts))
	for i, alert := range alerts {
		if _, ok := targets[alert.ID]; ok {
			alert.Status = status
		}
		merged[i] = alert
	}
	return merged
}

// DeleteAlerts removes every alert whose id is in ids.
func DeleteAlerts(alerts []AlertRecord, ids []int64) []AlertRecord {
	targets := idSet(ids)
	merged := make([]AlertRecord, 0, len(alerts))
	for _, alert := range alerts {
		if _, ok := targets[alert.ID]; ok {
			continue
		}
		merged = append(merged, alert)
	}
	return merged
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
