package records

import (
	"encoding/json"
	"strings"
)

// Alert status values. Status is flipped by stop/restart operations without
// touching IsEnabled; the asymmetry mirrors the upstream payloads and the
// popup depends on it.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// AlertRecord is the canonical local shape of a price alert.
type AlertRecord struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Ticker           string          `json:"ticker"`
	Status           string          `json:"status"`
	Description      json.RawMessage `json:"description"`
	LastTriggerTime  json.RawMessage `json:"lastTriggerTime,omitempty"`
	IsEnabled        bool            `json:"isEnabled"`
	Resolution       int             `json:"resolution"`
	Symbol           string          `json:"symbol"`
	QuoteCurrencyLogo string         `json:"quoteCurrencyLogo"`
	BaseCurrencyLogo string          `json:"baseCurrencyLogo"`
	Condition        string          `json:"condition"`
}

// LogRecord is one historical fire of an alert.
type LogRecord struct {
	ID        int64           `json:"id"`
	AlertID   int64           `json:"alertId"`
	Timestamp int64           `json:"timestamp"`
	Name      string          `json:"name"`
	Message   json.RawMessage `json:"message"`
	BarTime   json.RawMessage `json:"barTime,omitempty"`
}

// NormalizeMessage strips tabs and newlines, keeps valid JSON as-is, and
// wraps anything else as a JSON string.
func NormalizeMessage(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage(`""`)
	}
	cleaned := strings.NewReplacer("\t", "", "\n", "").Replace(s)
	if json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned)
	}
	quoted, err := json.Marshal(cleaned)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return quoted
}
