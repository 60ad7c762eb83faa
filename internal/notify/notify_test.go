// Package notify 通知测试
package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"skin-arbitrage-monitor/internal/config"
)

func TestNew_LogFallback(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n, err := New(config.NotifyConfig{}, zap.New(core))
	if err != nil {
		t.Fatalf("创建通知器失败: %v", err)
	}
	if _, ok := n.(*Log); !ok {
		t.Fatalf("未配置 token 应回退为日志通知器，实际 %T", n)
	}
	if err := n.Notify(context.Background(), "Found item 34.93%"); err != nil {
		t.Fatalf("日志通知不应失败: %v", err)
	}
	entries := logs.FilterMessage("通知").All()
	if len(entries) != 1 || entries[0].ContextMap()["text"] != "Found item 34.93%" {
		t.Fatalf("应记录通知内容: %+v", entries)
	}
}

func TestTelegram_SendMessage(t *testing.T) {
	got := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		got <- [2]string{r.FormValue("chat_id"), r.FormValue("text")}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	cfg := config.NotifyConfig{TelegramToken: "123456:test", TelegramChatID: 42}
	n, err := New(cfg, zap.NewNop(), bot.WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("创建 Telegram 通知器失败: %v", err)
	}
	if _, ok := n.(*Telegram); !ok {
		t.Fatalf("配置 token 后应为 Telegram 通知器，实际 %T", n)
	}
	if err := n.Notify(context.Background(), "Tried to buy 1 for $3.55: true"); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	req := <-got
	if req[0] != "42" || req[1] != "Tried to buy 1 for $3.55: true" {
		t.Fatalf("请求参数不正确: %v", req)
	}
}

func TestTruncate(t *testing.T) {
	if s := truncate("abc", 5); s != "abc" {
		t.Fatalf("短文本不应截断: %q", s)
	}
	s := truncate(strings.Repeat("价", 10), 5)
	if utf8.RuneCountInString(s) != 5 || !strings.HasSuffix(s, "…") {
		t.Fatalf("截断结果不正确: %q", s)
	}
}
