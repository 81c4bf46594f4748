package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	query := func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, fmt.Errorf("rpc timeout #%d", calls)
	}

	_, found, err := WithRetry(context.Background(), "USDC Market", RetryPolicy{MaxAttempts: 3}, query, noopLogger())
	if calls != 3 {
		t.Fatalf("应尝试 3 次, 实际 %d", calls)
	}
	if found {
		t.Fatal("失败时 found 应为 false")
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("应返回 *FetchError, 实际 %T", err)
	}
	if fe.Source != "USDC Market" || fe.Err != "rpc timeout #3" {
		t.Fatalf("FetchError 内容不正确: %+v", fe)
	}
}

func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	query := func(ctx context.Context) (string, bool, error) {
		calls++
		if calls < 2 {
			return "", false, errors.New("flaky")
		}
		return "ok", true, nil
	}

	got, found, err := WithRetry(context.Background(), "vault", RetryPolicy{MaxAttempts: 3}, query, noopLogger())
	if err != nil || !found || got != "ok" {
		t.Fatalf("第二次应成功: got=%q found=%v err=%v", got, found, err)
	}
	if calls != 2 {
		t.Fatalf("成功后不应继续重试, 实际调用 %d 次", calls)
	}
}

func TestWithRetryNotFoundIsNotFailure(t *testing.T) {
	calls := 0
	query := func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, nil
	}

	_, found, err := WithRetry(context.Background(), "market", RetryPolicy{MaxAttempts: 3}, query, noopLogger())
	if err != nil {
		t.Fatalf("未找到记录不应报错: %v", err)
	}
	if found {
		t.Fatal("found 应为 false")
	}
	if calls != 1 {
		t.Fatalf("未找到记录不应重试, 实际调用 %d 次", calls)
	}
}

func TestWithRetryWaitsBetweenAttempts(t *testing.T) {
	query := func(ctx context.Context) (int, bool, error) {
		return 0, false, errors.New("down")
	}

	start := time.Now()
	_, _, _ = WithRetry(context.Background(), "market", RetryPolicy{MaxAttempts: 3, Delay: 20 * time.Millisecond}, query, noopLogger())
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("两次间隔应至少 40ms, 实际 %s", elapsed)
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	query := func(ctx context.Context) (int, bool, error) {
		calls++
		cancel()
		return 0, false, errors.New("down")
	}

	_, _, err := WithRetry(ctx, "market", RetryPolicy{MaxAttempts: 5, Delay: time.Hour}, query, noopLogger())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Err != context.Canceled.Error() {
		t.Fatalf("取消后应返回 context canceled, 实际 %v", err)
	}
	if calls != 1 {
		t.Fatalf("取消后不应继续, 实际调用 %d 次", calls)
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{}.normalized()
	if p.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("默认次数应为 %d", DefaultMaxAttempts)
	}
	p = RetryPolicy{MaxAttempts: 1, Delay: -1}.normalized()
	if p.Delay != DefaultDelay {
		t.Fatalf("负延迟应回退到默认值")
	}
}
