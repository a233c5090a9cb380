// Package token はJWTアクセストークンの発行と検証を提供する。
//
// トークンはHS256で署名されたステートレスなクレデンシャルであり、
// サーバー側にセッション記録を持たない。失効はトークンの有効期限のみで
// 行われ、明示的な取り消し（revocation）は存在しない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// issuer はトークンのiss（発行者）クレームに設定される値。
const issuer = "codebridge-api"

var (
	// ErrMalformedToken はトークンのエンコードまたは署名が不正であることを表す。
	ErrMalformedToken = errors.New("トークンの形式または署名が不正です")
	// ErrExpiredToken はトークンの有効期限が切れていることを表す。
	ErrExpiredToken = errors.New("トークンの有効期限が切れています")
)

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// 検証済みトークンから取り出され、以降は読み取り専用として扱う。
type Claims struct {
	jwt.RegisteredClaims
	// Permissions は認証済みユーザーに付与された権限のリスト。
	Permissions []string `json:"permissions"`
	// Superuser はすべての権限チェックを通過する特権ユーザーかどうか。
	Superuser bool `json:"superuser,omitempty"`
}

// Service はJWTトークンの発行と検証を行う。
// 署名用の秘密鍵は設定から注入され、初期化後は読み取り専用となる。
type Service struct {
	// secret はHS256署名用の秘密鍵。
	secret []byte
	// defaultTTL はTTL未指定時のトークン有効期間。
	defaultTTL time.Duration
	// now は現在時刻を返す関数。テストで固定時刻を注入するために差し替え可能。
	now func() time.Time
}

// NewService は新しいトークンサービスを生成する。
// 秘密鍵が空の場合はエラーを返す（フェイルクローズ）。
func NewService(secret string, defaultTTL time.Duration) (*Service, error) {
	if secret == "" {
		return nil, errors.New("JWT署名用の秘密鍵が設定されていません")
	}
	if defaultTTL <= 0 {
		return nil, fmt.Errorf("トークンの有効期間が不正です: %v", defaultTTL)
	}
	return &Service{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Issue は指定されたサブジェクトと権限を持つ署名済みトークンを発行する。
// 有効期限はnow+ttlとなる。ttl=0のトークンは発行時点で期限切れとなる。
func (s *Service) Issue(subject string, permissions []string, superuser bool, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("サブジェクトが空のトークンは発行できません")
	}

	issuedAt := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Permissions: permissions,
		Superuser:   superuser,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// IssueWithDefaultTTL はデフォルトの有効期間でトークンを発行する。
func (s *Service) IssueWithDefaultTTL(subject string, permissions []string, superuser bool) (string, error) {
	return s.Issue(subject, permissions, superuser, s.defaultTTL)
}

// DefaultTTL はデフォルトのトークン有効期間を返す。
func (s *Service) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Verify はトークン文字列を検証し、クレームを返す。
// 有効期限切れの場合はErrExpiredToken、それ以外の検証失敗
// （不正なエンコード、署名不一致、サブジェクト欠落等）は
// ErrMalformedTokenを返す。署名比較はHMACにより定数時間で行われる。
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(_ *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedToken, err)
	}
	if !parsed.Valid {
		return nil, ErrMalformedToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: サブジェクトがありません", ErrMalformedToken)
	}
	return claims, nil
}
