package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type rawSeries map[string]any

type rawCondition struct {
	Type        string      `json:"type"`
	Series      []rawSeries `json:"series"`
	AlertCondID string      `json:"alert_cond_id"`
}

type rawStudy struct {
	AlertConditions map[string]struct {
		Text string `json:"text"`
	} `json:"alert_conditions"`
}

type rawPresentation struct {
	MainSeries struct {
		CurrencyLogoID     string `json:"currency-logoid"`
		BaseCurrencyLogoID string `json:"base-currency-logoid"`
	} `json:"main_series"`
	Studies map[string]rawStudy `json:"studies"`
}

type rawAlert struct {
	AlertID      json.Number      `json:"alert_id"`
	Name         string           `json:"name"`
	Symbol       string           `json:"symbol"`
	Resolution   json.Number      `json:"resolution"`
	Message      string           `json:"message"`
	Active       bool             `json:"active"`
	LastFireTime json.RawMessage  `json:"last_fire_time"`
	Presentation *rawPresentation `json:"presentation_data"`
	Condition    *rawCondition    `json:"condition"`
}

// symbolMarker prefixes some embedded symbol descriptors and must be
// stripped before the descriptor parses as JSON.
const symbolMarker = '='

// ParseAlert transforms a raw alert payload into the canonical record. Any
// failure means the whole record is dropped; a partial record is never
// produced.
func ParseAlert(raw json.RawMessage) (AlertRecord, error) {
	var alert rawAlert
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&alert); err != nil {
		return AlertRecord{}, fmt.Errorf("decode alert payload: %w", err)
	}

	id, err := alert.AlertID.Int64()
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse alert_id %q: %w", alert.AlertID.String(), err)
	}

	symbol, err := parseSymbolDescriptor(alert.Symbol)
	if err != nil {
		return AlertRecord{}, err
	}

	resolution, err := parseLeadingInt(alert.Resolution.String())
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse resolution %q: %w", alert.Resolution.String(), err)
	}

	status := StatusInactive
	if alert.Active {
		status = StatusActive
	}

	record := AlertRecord{
		ID:              id,
		Name:            alert.Name,
		Ticker:          fmt.Sprintf("%s, %s", symbol, resolutionLabel(resolution)),
		Status:          status,
		Description:     NormalizeMessage(alert.Message),
		LastTriggerTime: alert.LastFireTime,
		IsEnabled:       alert.Active,
		Resolution:      resolution,
		Symbol:          symbol,
		Condition:       deriveCondition(alert.Condition, alert.Presentation),
	}
	if alert.Presentation != nil {
		record.QuoteCurrencyLogo = alert.Presentation.MainSeries.CurrencyLogoID
		record.BaseCurrencyLogo = alert.Presentation.MainSeries.BaseCurrencyLogoID
	}
	return record, nil
}

// parseSymbolDescriptor extracts the plain symbol from the embedded JSON
// descriptor, which may carry a leading marker character.
func parseSymbolDescriptor(s string) (string, error) {
	if strings.HasPrefix(s, string(symbolMarker)) {
		s = s[1:]
	}
	var descriptor struct {
		Symbol struct {
			Symbol string `json:"symbol"`
		} `json:"symbol"`
	}
	if err := json.Unmarshal([]byte(s), &descriptor); err != nil {
		return "", fmt.Errorf("decode symbol descriptor: %w", err)
	}
	if descriptor.Symbol.Symbol == "" {
		return "", fmt.Errorf("symbol descriptor missing symbol field")
	}
	return descriptor.Symbol.Symbol, nil
}

// resolutionLabel renders resolutions of an hour or more in hours.
func resolutionLabel(resolution int) string {
	if resolution >= 60 {
		return strconv.Itoa(resolution/60) + "h"
	}
	return strconv.Itoa(resolution)
}

// parseLeadingInt reads the leading decimal digits of a resolution string,
// which may carry a unit suffix.
func parseLeadingInt(s string) (int, error) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no leading digits")
	}
	return strconv.Atoi(s[:end])
}

// deriveCondition renders a human-readable condition string. A "cross"
// condition with exactly two series formats as "<type> cross <value>"; an
// "alert_cond" condition resolves its text through the per-study alert
// condition maps, first match wins. Anything else yields an empty string.
func deriveCondition(cond *rawCondition, pres *rawPresentation) string {
	if cond == nil {
		return ""
	}
	switch cond.Type {
	case "cross":
		if len(cond.Series) != 2 {
			return ""
		}
		firstType, _ := cond.Series[0]["type"].(string)
		secondType, _ := cond.Series[1]["type"].(string)
		value := conditionValue(cond.Series[1][secondType])
		return fmt.Sprintf("%s %s %s", firstType, cond.Type, value)
	case "alert_cond":
		if pres == nil {
			return ""
		}
		for _, study := range pres.Studies {
			if match, ok := study.AlertConditions[cond.AlertCondID]; ok {
				return match.Text
			}
		}
	}
	return ""
}

func conditionValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}

// fireTimeLayouts cover the timestamp formats the fires listing is known to
// send.
var fireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseFireTime converts a server-supplied fire-time string to epoch millis.
func ParseFireTime(s string) (int64, error) {
	for _, layout := range fireTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognised fire time %q", s)
}
