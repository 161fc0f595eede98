package endpoint

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		url     string
		kind    Kind
		tracked bool
	}{
		{"https://pricealerts.tradingview.com/list_alerts", KindListAlerts, true},
		{"https://pricealerts.tradingview.com/stop_alerts", KindStopAlerts, true},
		{"https://pricealerts.tradingview.com/restart_alerts", KindRestartAlerts, true},
		{"https://pricealerts.tradingview.com/delete_alerts", KindDeleteAlerts, true},
		{"https://pricealerts.tradingview.com/create_alert", KindCreateAlert, true},
		{"https://pricealerts.tradingview.com/modify_restart_alert", KindModifyRestartAlert, true},
		{"https://pricealerts.tradingview.com/list_fires", KindListFires, true},
		{"https://pricealerts.tradingview.com/delete_fires", KindDeleteFires, true},
		{"https://pricealerts.tradingview.com/list_alerts?lang=en", KindListAlerts, true},
		{"https://pricealerts.tradingview.com/unrelated", KindUnknown, false},
		{"https://www.tradingview.com/list_alerts", KindUnknown, false},
		{"https://example.com/", KindUnknown, false},
	}

	for _, tc := range cases {
		kind, tracked := Classify(tc.url)
		if kind != tc.kind || tracked != tc.tracked {
			t.Fatalf("Classify(%q) = (%v, %v), 期望 (%v, %v)", tc.url, kind, tracked, tc.kind, tc.tracked)
		}
	}
}

func TestCorrelatesByRequest(t *testing.T) {
	byRequest := []Kind{KindStopAlerts, KindRestartAlerts, KindDeleteAlerts, KindDeleteFires}
	for _, kind := range byRequest {
		if !kind.CorrelatesByRequest() {
			t.Fatalf("%s 应依赖请求体关联", kind)
		}
	}

	byResponse := []Kind{KindListAlerts, KindCreateAlert, KindModifyRestartAlert, KindListFires, KindUnknown}
	for _, kind := range byResponse {
		if kind.CorrelatesByRequest() {
			t.Fatalf("%s 不应依赖请求体关联", kind)
		}
	}
}
