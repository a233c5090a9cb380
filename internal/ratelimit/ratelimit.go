// Package ratelimit はスライディングウィンドウ方式のレート制限を提供する。
//
// クライアントキーごとにリクエストのタイムスタンプ列を保持し、
// 直近のウィンドウW内のリクエスト数が容量Nを超えた場合に拒否する。
// 固定のカレンダーバケットではなく、常に直近W秒間をカウントする。
// キーの導出（IPアドレス、ユーザーID等）は呼び出し側の責務であり、
// リミッター自身はキーの意味を関知しない。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Decision はレート制限の判定結果を表す。
type Decision struct {
	// Allowed はリクエストが許可されたかどうか。
	Allowed bool
	// RetryAfter は拒否された場合に再試行可能になるまでの時間。
	// 許可された場合は0。
	RetryAfter time.Duration
}

// record は単一キーのリクエストタイムスタンプ列。
// muはタイムスタンプ列の刈り込み・追加・カウントを1つの
// クリティカルセクションとして保護する。
type record struct {
	mu sync.Mutex
	// stamps はウィンドウ内のリクエスト時刻を昇順で保持する。
	stamps []time.Time
	// gone はスイープによってマップから削除済みであることを示す。
	// 削除とAllowの競合時に、孤立したレコードへの追記を防ぐ。
	gone bool
}

// Limiter はキーごとのスライディングウィンドウレートリミッター。
// 複数のゴルーチンから同時に使用できる。
type Limiter struct {
	// capacity はウィンドウ内で許可する最大リクエスト数。
	capacity int
	// window はスライディングウィンドウの幅。
	window time.Duration
	// now は現在時刻を返す関数。テストで固定時刻を注入するために差し替え可能。
	now func() time.Time

	// mu はrecordsマップへのアクセスを保護する。
	// 個々のレコードの更新はレコード自身のロックで行うため、
	// キーが異なるリクエスト同士が直列化されることはない。
	mu      sync.Mutex
	records map[string]*record
}

// New は新しいレートリミッターを生成する。
func New(capacity int, window time.Duration) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("容量は正の整数である必要があります: %d", capacity)
	}
	if window <= 0 {
		return nil, errors.New("ウィンドウ幅は正の値である必要があります")
	}
	return &Limiter{
		capacity: capacity,
		window:   window,
		now:      time.Now,
		records:  make(map[string]*record),
	}, nil
}

// Allow は指定キーのリクエストを許可するかどうかを判定する。
//
// ウィンドウ外の古いタイムスタンプを刈り込んだ後、残数が容量未満で
// あれば現在時刻を追記して許可する。容量に達している場合は、最も古い
// タイムスタンプがウィンドウ外に出るまでの時間をRetryAfterとして返す。
// 刈り込み・カウント・追記は同一キーに対して原子的に行われるため、
// 残り1枠に対して同時リクエストが両方許可されることはない。
func (l *Limiter) Allow(key string) Decision {
	now := l.now()
	cutoff := now.Add(-l.window)

	for {
		l.mu.Lock()
		rec, ok := l.records[key]
		if !ok {
			rec = &record{}
			l.records[key] = rec
		}
		l.mu.Unlock()

		rec.mu.Lock()
		if rec.gone {
			// スイープとの競合でレコードが削除された。マップから取り直す。
			rec.mu.Unlock()
			continue
		}

		i := 0
		for i < len(rec.stamps) && !rec.stamps[i].After(cutoff) {
			i++
		}
		rec.stamps = append(rec.stamps[:0], rec.stamps[i:]...)

		if len(rec.stamps) < l.capacity {
			rec.stamps = append(rec.stamps, now)
			rec.mu.Unlock()
			return Decision{Allowed: true}
		}

		retryAfter := rec.stamps[0].Add(l.window).Sub(now)
		rec.mu.Unlock()
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}
}

// Sweep は最新のタイムスタンプがウィンドウ外に出たレコードを削除する。
// 多数の異なるキー（IPローテーション等）によるメモリ増加を抑える
// ベストエフォートの対策であり、上限の保証ではない。
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, rec := range l.records {
		rec.mu.Lock()
		if len(rec.stamps) == 0 || !rec.stamps[len(rec.stamps)-1].After(cutoff) {
			rec.gone = true
			delete(l.records, key)
		}
		rec.mu.Unlock()
	}
}

// StartJanitor は指定間隔でSweepを実行するゴルーチンを起動する。
// コンテキストのキャンセルで停止する。
func (l *Limiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// TrackedKeys は現在追跡中のキー数を返す。ヘルスチェックの統計用。
func (l *Limiter) TrackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Capacity はウィンドウ内で許可する最大リクエスト数を返す。
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Window はスライディングウィンドウの幅を返す。
func (l *Limiter) Window() time.Duration {
	return l.window
}
