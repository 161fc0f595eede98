package endpoint

import "strings"

// Kind identifies one of the tracked remote alert operations.
type Kind int

const (
	// KindUnknown marks a URL outside the allow-list.
	KindUnknown Kind = iota
	KindListAlerts
	KindStopAlerts
	KindRestartAlerts
	KindDeleteAlerts
	KindCreateAlert
	KindModifyRestartAlert
	KindListFires
	KindDeleteFires
)

// Host is the single remote host whose traffic is observed.
const Host = "pricealerts.tradingview.com"

var suffixes = []struct {
	suffix string
	kind   Kind
}{
	{Host + "/list_alerts", KindListAlerts},
	{Host + "/stop_alerts", KindStopAlerts},
	{Host + "/restart_alerts", KindRestartAlerts},
	{Host + "/delete_alerts", KindDeleteAlerts},
	{Host + "/create_alert", KindCreateAlert},
	{Host + "/modify_restart_alert", KindModifyRestartAlert},
	{Host + "/list_fires", KindListFires},
	{Host + "/delete_fires", KindDeleteFires},
}

// Classify maps a URL onto the operation it performs. The second return is
// false for URLs outside the allow-list; such events are skipped entirely.
func Classify(url string) (Kind, bool) {
	for _, entry := range suffixes {
		if strings.Contains(url, entry.suffix) {
			return entry.kind, true
		}
	}
	return KindUnknown, false
}

// IsTracked reports whether a URL belongs to the allow-list.
func IsTracked(url string) bool {
	_, ok := Classify(url)
	return ok
}

// CorrelatesByRequest reports whether the operation's response body carries
// no usable payload, so the target ids must come from the original request.
func (k Kind) CorrelatesByRequest() bool {
	switch k {
	case KindStopAlerts, KindRestartAlerts, KindDeleteAlerts, KindDeleteFires:
		return true
	}
	return false
}

// String returns the operation suffix for logging.
func (k Kind) String() string {
	switch k {
	case KindListAlerts:
		return "list_alerts"
	case KindStopAlerts:
		return "stop_alerts"
	case KindRestartAlerts:
		return "restart_alerts"
	case KindDeleteAlerts:
		return "delete_alerts"
	case KindCreateAlert:
		return "create_alert"
	case KindModifyRestartAlert:
		return "modify_restart_alert"
	case KindListFires:
		return "list_fires"
	case KindDeleteFires:
		return "delete_fires"
	default:
		return "unknown"
	}
}
