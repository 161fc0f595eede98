package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("连接 hub 失败: %v", err)
	}
	return ws
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	first := dialHub(t, srv)
	defer first.Close()
	second := dialHub(t, srv)
	defer second.Close()

	event, err := AlertsAction([]int64{1, 2}, ActionStop)
	if err != nil {
		t.Fatalf("构造事件失败: %v", err)
	}

	// 握手返回后服务端注册紧随其后, 略等片刻确保两个订阅者都已注册
	time.Sleep(100 * time.Millisecond)
	if err := hub.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify 应成功: %v", err)
	}

	for _, ws := range []*websocket.Conn{first, second} {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var received Event
		if err := ws.ReadJSON(&received); err != nil {
			t.Fatalf("读取广播失败: %v", err)
		}
		if received.Type != EventAlertsUpdated {
			t.Fatalf("事件类型不正确: %q", received.Type)
		}
		var data AlertsActionData
		if err := json.Unmarshal(received.Data, &data); err != nil {
			t.Fatalf("解析事件数据失败: %v", err)
		}
		if data.Action != ActionStop || len(data.AlertIDs) != 2 {
			t.Fatalf("事件数据不正确: %#v", data)
		}
	}
}

func TestHubNotifyWithoutSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	event, err := LogsUpdated(nil)
	if err != nil {
		t.Fatalf("构造事件失败: %v", err)
	}
	if err := hub.Notify(context.Background(), event); err != nil {
		t.Fatal("没有订阅者时广播应成功")
	}
}

func TestHubRejectsAfterClose(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("关闭后的 hub 应拒绝新连接")
	}
}
