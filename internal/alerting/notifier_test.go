package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWebhookNotifierSuccess(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("应使用 POST, 实际 %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("Content-Type 不正确: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, "Liquidity Bot", time.Second, testLogger())
	embed := Embed{Title: "t", Color: ColorBreach, Fields: []Field{{Name: "a", Value: "b"}}}

	if err := notifier.Send(context.Background(), embed); err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if len(received.Embeds) != 1 || received.Embeds[0].Title != "t" {
		t.Fatalf("embeds 应只包含一个元素: %+v", received)
	}
	if received.Username != "Liquidity Bot" {
		t.Fatalf("username 不正确: %q", received.Username)
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, "", time.Second, testLogger())
	err := notifier.Send(context.Background(), Embed{Title: "t"})

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("非 2xx 应返回 DeliveryError, 实际 %v", err)
	}
	if de.StatusCode != http.StatusTooManyRequests || de.Status != "Too Many Requests" {
		t.Fatalf("DeliveryError 内容不正确: %+v", de)
	}
	if calls != 1 {
		t.Fatalf("通知失败不应重试, 实际调用 %d 次", calls)
	}
}

func TestWebhookNotifierTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	notifier := NewWebhookNotifier(url, "", time.Second, testLogger())
	err := notifier.Send(context.Background(), Embed{Title: "t"})
	if err == nil {
		t.Fatal("连接失败应返回错误")
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		t.Fatal("网络错误不应包装为 DeliveryError")
	}
}

func TestStdoutNotifier(t *testing.T) {
	var buf bytes.Buffer
	if err := NewStdoutNotifier(&buf).Send(context.Background(), Embed{Title: "dry run"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(buf.String(), `"embeds"`) || !strings.Contains(buf.String(), "dry run") {
		t.Fatalf("输出应包含 payload: %s", buf.String())
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
