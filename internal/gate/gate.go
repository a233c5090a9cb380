// Package gate はリクエストゲートキーパーを提供する。
//
// 受信リクエストごとに、レート制限の判定、Bearerトークンの検証、
// 権限の評価をこの順序で実行し、許可または構造化された拒否結果を返す。
// レート制限を認証より先に評価するのは、無効な認証情報の連続送信に
// よってトークン検証の計算コストを浪費させないためである。
//
// どのルートにどの権限・ティア・認証要否が適用されるかは、起動時に
// 解決されるルートポリシーテーブルで宣言的に管理する。
package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/sreejagatab/codebridge/internal/ratelimit"
	"github.com/sreejagatab/codebridge/internal/token"
)

// Tier はルートに適用するレート制限ティアを表す。
type Tier int

const (
	// TierStandard は通常エンドポイント用の標準ティア。
	TierStandard Tier = iota
	// TierStrict はログイン等の機微なエンドポイント用の厳格ティア。
	TierStrict
)

// Kind はゲートキーパーの判定結果の種類を表す。
type Kind int

const (
	// Allowed はリクエストが許可されたことを表す。
	Allowed Kind = iota
	// Unauthenticated は認証に失敗したことを表す（HTTP 401相当）。
	Unauthenticated
	// Forbidden は権限が不足していることを表す（HTTP 403相当）。
	Forbidden
	// RateLimited はレート制限に達したことを表す（HTTP 429相当）。
	RateLimited
)

// Result はゲートキーパーの判定結果を表す。リクエストごとに生成され、
// 永続化されることはない。
type Result struct {
	// Kind は判定結果の種類。
	Kind Kind
	// Reason は拒否された場合の理由。
	Reason string
	// RetryAfter はレート制限で拒否された場合の再試行までの時間。
	RetryAfter time.Duration
	// Claims は認証に成功した場合の検証済みクレーム。
	// 匿名アクセスが許可されたルートではnilになりうる。
	Claims *token.Claims
}

// Policy は1つのルートに適用するゲートキーパーの方針を表す。
type Policy struct {
	// Method はHTTPメソッド。
	Method string
	// Path はGinのルートパターン（例: "/api/projects/:id"）。
	Path string
	// Permission はルートが要求する権限。空文字列は権限不要を表す。
	Permission string
	// Tier は適用するレート制限ティア。
	Tier Tier
	// AuthRequired は有効なトークンの提示を必須とするかどうか。
	// falseの場合、トークンなしの匿名アクセスを許可する。
	AuthRequired bool
	// Exempt はレート制限と認証の両方を免除するかどうか。
	// ヘルスチェック等の公開エンドポイントに使用する。
	Exempt bool
}

// Gatekeeper はルートポリシーに従ってリクエストを許可・拒否する。
// 内部のレートリミッターを除き状態を持たず、複数のゴルーチンから
// 同時に使用できる。
type Gatekeeper struct {
	// tokens はトークン検証サービス。
	tokens *token.Service
	// standard は標準ティアのレートリミッター。
	standard *ratelimit.Limiter
	// strict は厳格ティアのレートリミッター。
	strict *ratelimit.Limiter
	// policies はメソッドとルートパターンからポリシーを引くテーブル。
	policies map[string]Policy
}

// New は新しいゲートキーパーを生成する。
// ポリシーテーブルは起動時に一度だけ構築され、以降は読み取り専用となる。
func New(tokens *token.Service, standard, strict *ratelimit.Limiter, policies []Policy) (*Gatekeeper, error) {
	if tokens == nil {
		return nil, errors.New("トークンサービスが設定されていません")
	}
	if standard == nil || strict == nil {
		return nil, errors.New("レートリミッターが設定されていません")
	}

	table := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if p.Method == "" || p.Path == "" {
			return nil, fmt.Errorf("不完全なポリシー: %+v", p)
		}
		key := policyKey(p.Method, p.Path)
		if _, ok := table[key]; ok {
			return nil, fmt.Errorf("ポリシーが重複しています: %s %s", p.Method, p.Path)
		}
		table[key] = p
	}

	return &Gatekeeper{
		tokens:   tokens,
		standard: standard,
		strict:   strict,
		policies: table,
	}, nil
}

// Check はリクエストをポリシーに従って判定する。HTTPに依存しない
// 純粋なパイプラインであり、ミドルウェアアダプタから呼び出される。
//
// clientKeyはレート制限のキー（通常はクライアントIP）、
// authHeaderはAuthorizationヘッダーの生の値を指定する。
func (g *Gatekeeper) Check(method, path, clientKey, authHeader string) Result {
	policy, ok := g.policies[policyKey(method, path)]
	if !ok {
		// 未登録のルートは標準ティアのレート制限のみ適用する。
		// 認証を課さないのは、存在しないルートへの404応答を
		// 認証エラーで覆い隠さないため。
		policy = Policy{Tier: TierStandard}
	}

	if policy.Exempt {
		return Result{Kind: Allowed}
	}

	// 1. レート制限。認証より先に評価する。
	limiter := g.standard
	if policy.Tier == TierStrict {
		limiter = g.strict
	}
	if d := limiter.Allow(clientKey); !d.Allowed {
		return Result{
			Kind:       RateLimited,
			Reason:     "レート制限を超過しました。しばらくしてから再試行してください",
			RetryAfter: d.RetryAfter,
		}
	}

	// 2. Bearerトークンの抽出。
	bearer, err := extractBearer(authHeader)
	if err != nil {
		return Result{Kind: Unauthenticated, Reason: "Bearer トークン形式が不正です"}
	}
	if bearer == "" {
		if policy.AuthRequired {
			return Result{Kind: Unauthenticated, Reason: "認証トークンがありません"}
		}
		// 匿名アクセス許可ルート。権限が要求されていれば空クレームで評価する。
		if !token.Allows(nil, policy.Permission) {
			return Result{Kind: Forbidden, Reason: "権限が不足しています"}
		}
		return Result{Kind: Allowed}
	}

	// 3. トークン検証。
	claims, err := g.tokens.Verify(bearer)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredToken):
			return Result{Kind: Unauthenticated, Reason: "トークンの有効期限が切れています"}
		case errors.Is(err, token.ErrMalformedToken):
			return Result{Kind: Unauthenticated, Reason: "トークンが無効です"}
		default:
			// 想定外の内部エラーはフェイルクローズで拒否する。
			return Result{Kind: Unauthenticated, Reason: "トークンを検証できません"}
		}
	}

	// 4. 権限評価。
	if !token.Allows(claims, policy.Permission) {
		return Result{Kind: Forbidden, Reason: "権限が不足しています"}
	}

	return Result{Kind: Allowed, Claims: claims}
}

// extractBearer はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーが空の場合は空文字列を返す。Bearer以外のスキームはエラーを返す。
func extractBearer(authHeader string) (string, error) {
	if authHeader == "" {
		return "", nil
	}
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return "", errors.New("Bearerスキームではありません")
	}
	return authHeader[len(prefix):], nil
}

// policyKey はポリシーテーブルの検索キーを生成する。
func policyKey(method, path string) string {
	return method + " " + path
}
