package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestNew はNew関数を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("容量がゼロ以下の場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		if _, err := New(0, time.Minute); err == nil {
			t.Fatal("容量ゼロに対してエラーが返るべき")
		}
	})

	t.Run("ウィンドウ幅がゼロ以下の場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		if _, err := New(5, 0); err == nil {
			t.Fatal("ウィンドウ幅ゼロに対してエラーが返るべき")
		}
	})
}

// TestLimiterAllow はスライディングウィンドウの判定を検証する。
func TestLimiterAllow(t *testing.T) {
	t.Parallel()

	t.Run("容量5のとき同一キーから5回までは許可され6回目が拒否されること", func(t *testing.T) {
		t.Parallel()

		l, err := New(5, 60*time.Second)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		l.now = func() time.Time { return base }

		for i := 0; i < 5; i++ {
			if d := l.Allow("192.168.1.1"); !d.Allowed {
				t.Fatalf("%d回目のリクエストが拒否された", i+1)
			}
		}

		d := l.Allow("192.168.1.1")
		if d.Allowed {
			t.Fatal("6回目のリクエストは拒否されるべき")
		}
		if d.RetryAfter <= 0 {
			t.Errorf("RetryAfter = %v, want > 0", d.RetryAfter)
		}
	})

	t.Run("キーが異なれば互いに影響しないこと", func(t *testing.T) {
		t.Parallel()

		l, err := New(2, 60*time.Second)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		for i := 0; i < 2; i++ {
			if d := l.Allow("10.0.0.1"); !d.Allowed {
				t.Fatalf("キー10.0.0.1の%d回目が拒否された", i+1)
			}
		}
		if d := l.Allow("10.0.0.1"); d.Allowed {
			t.Fatal("キー10.0.0.1の3回目は拒否されるべき")
		}

		if d := l.Allow("10.0.0.2"); !d.Allowed {
			t.Fatal("別キー10.0.0.2の1回目は許可されるべき")
		}
	})

	t.Run("最も古いリクエストがウィンドウ外に出ると再び許可されること", func(t *testing.T) {
		t.Parallel()

		l, err := New(3, 60*time.Second)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		current := base
		l.now = func() time.Time { return current }

		// 0秒、10秒、20秒の時点でリクエストして容量を使い切る
		for i := 0; i < 3; i++ {
			current = base.Add(time.Duration(i*10) * time.Second)
			if d := l.Allow("key"); !d.Allowed {
				t.Fatalf("%d回目のリクエストが拒否された", i+1)
			}
		}

		// 30秒時点ではまだ全リクエストがウィンドウ内
		current = base.Add(30 * time.Second)
		d := l.Allow("key")
		if d.Allowed {
			t.Fatal("ウィンドウ内で容量超過のリクエストは拒否されるべき")
		}
		// 最古のリクエスト（0秒）がウィンドウ外に出るのは60秒時点
		if want := 30 * time.Second; d.RetryAfter != want {
			t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, want)
		}

		// 61秒時点では最古のリクエストがウィンドウ外に出ており許可される
		current = base.Add(61 * time.Second)
		if d := l.Allow("key"); !d.Allowed {
			t.Fatal("最古のリクエストがウィンドウ外に出た後は許可されるべき")
		}
	})

	t.Run("RetryAfterが最古のタイムスタンプから導出されること", func(t *testing.T) {
		t.Parallel()

		l, err := New(1, 60*time.Second)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		current := base
		l.now = func() time.Time { return current }

		if d := l.Allow("key"); !d.Allowed {
			t.Fatal("1回目のリクエストが拒否された")
		}

		current = base.Add(45 * time.Second)
		d := l.Allow("key")
		if d.Allowed {
			t.Fatal("容量超過のリクエストは拒否されるべき")
		}
		if want := 15 * time.Second; d.RetryAfter != want {
			t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, want)
		}
	})
}

// TestLimiterConcurrency は同時リクエスト下で許可数が容量を超えないことを検証する。
func TestLimiterConcurrency(t *testing.T) {
	t.Parallel()

	t.Run("100個の同時リクエストで容量10ちょうどだけ許可されること", func(t *testing.T) {
		t.Parallel()

		l, err := New(10, 60*time.Second)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		const requests = 100
		var wg sync.WaitGroup
		results := make([]bool, requests)

		for i := 0; i < requests; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = l.Allow("shared-key").Allowed
			}(i)
		}
		wg.Wait()

		allowed := 0
		for _, ok := range results {
			if ok {
				allowed++
			}
		}
		if allowed != 10 {
			t.Errorf("許可されたリクエスト数 = %d, want 10", allowed)
		}
	})
}

// TestLimiterSweep はアイドルレコードの削除を検証する。
func TestLimiterSweep(t *testing.T) {
	t.Parallel()

	t.Run("ウィンドウ外に出たレコードがスイープで削除されること", func(t *testing.T) {
		t.Parallel()

		l, err := New(5, 60*time.Second)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		current := base
		l.now = func() time.Time { return current }

		l.Allow("stale-key")
		l.Allow("fresh-key")

		if got := l.TrackedKeys(); got != 2 {
			t.Fatalf("TrackedKeys() = %d, want 2", got)
		}

		// fresh-keyだけがウィンドウ内に残る時刻までスイープを遅らせる
		current = base.Add(30 * time.Second)
		l.Allow("fresh-key")
		current = base.Add(61 * time.Second)
		l.Sweep()

		if got := l.TrackedKeys(); got != 1 {
			t.Errorf("TrackedKeys() = %d, want 1", got)
		}

		// 削除後も同じキーで新規リクエストは通常通り処理される
		if d := l.Allow("stale-key"); !d.Allowed {
			t.Error("スイープ後の新規リクエストは許可されるべき")
		}
	})

	t.Run("ウィンドウ内のレコードはスイープで削除されないこと", func(t *testing.T) {
		t.Parallel()

		l, err := New(5, 60*time.Second)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		l.Allow("active-key")
		l.Sweep()

		if got := l.TrackedKeys(); got != 1 {
			t.Errorf("TrackedKeys() = %d, want 1", got)
		}
	})
}

// TestLimiterStartJanitor は定期スイープのゴルーチンを検証する。
func TestLimiterStartJanitor(t *testing.T) {
	t.Parallel()

	t.Run("ジャニターが定期的にスイープを実行すること", func(t *testing.T) {
		t.Parallel()

		l, err := New(5, 10*time.Millisecond)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		l.Allow("key")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		l.StartJanitor(ctx, 5*time.Millisecond)

		// レコードがウィンドウ外に出てスイープされるのを待つ
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if l.TrackedKeys() == 0 {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Error("ジャニターがレコードをスイープしなかった")
	})
}
