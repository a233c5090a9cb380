// Package identity はユーザーアカウントの管理とパスワード認証を提供する。
//
// パスワードはbcryptでハッシュ化して保存する。認証に成功したユーザーの
// ユーザー名・権限セット・スーパーユーザーフラグがトークン発行の入力となる。
package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials はユーザー名またはパスワードが一致しないことを表す。
	// どちらが誤っているかは呼び出し側に開示しない。
	ErrInvalidCredentials = errors.New("ユーザー名またはパスワードが正しくありません")
	// ErrInactiveUser はアカウントが無効化されていることを表す。
	ErrInactiveUser = errors.New("アカウントが無効化されています")
	// ErrDuplicateUsername は同名のユーザーが既に存在することを表す。
	ErrDuplicateUsername = errors.New("同じユーザー名のユーザーが既に存在します")
)

// User は認証対象のユーザーアカウントを表す。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Username はログイン用のユーザー名。
	Username string
	// Email はメールアドレス。
	Email string
	// Permissions は付与された権限のリスト。
	Permissions []string
	// Superuser はすべての権限チェックを通過する特権ユーザーかどうか。
	Superuser bool
	// Active はアカウントが有効かどうか。
	Active bool
}

// Store はSQLiteに永続化されたユーザーアカウントへのアクセスを提供する。
type Store struct {
	db *sql.DB
}

// NewStore は新しいユーザーストアを生成する。
// usersテーブルはマイグレーション済みであることを前提とする。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create は新しいユーザーを作成する。パスワードはbcryptでハッシュ化される。
func (s *Store) Create(ctx context.Context, username, email, password string, permissions []string, superuser bool) (*User, error) {
	if username == "" {
		return nil, errors.New("ユーザー名は必須です")
	}
	if password == "" {
		return nil, errors.New("パスワードは必須です")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	permsJSON, err := json.Marshal(permissions)
	if err != nil {
		return nil, fmt.Errorf("権限リストのシリアライズに失敗: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, permissions, is_superuser, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`, id, username, email, string(hash), string(permsJSON), boolToInt(superuser))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}

	return &User{
		ID:          id,
		Username:    username,
		Email:       email,
		Permissions: permissions,
		Superuser:   superuser,
		Active:      true,
	}, nil
}

// GetByUsername はユーザー名でユーザーを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, string, error) {
	var (
		u           User
		hash        string
		permsJSON   string
		isSuperuser int
		isActive    int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, permissions, is_superuser, is_active
		FROM users WHERE username = ?
	`, username).Scan(&u.ID, &u.Username, &u.Email, &hash, &permsJSON, &isSuperuser, &isActive)
	if err != nil {
		return nil, "", err
	}

	if err := json.Unmarshal([]byte(permsJSON), &u.Permissions); err != nil {
		return nil, "", fmt.Errorf("権限リストのデシリアライズに失敗: %w", err)
	}
	u.Superuser = isSuperuser != 0
	u.Active = isActive != 0

	return &u, hash, nil
}

// Authenticate はユーザー名とパスワードでユーザーを認証する。
// ユーザーが存在しない場合とパスワードが一致しない場合は、
// どちらもErrInvalidCredentialsを返す。
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, hash, err := s.GetByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !u.Active {
		return nil, ErrInactiveUser
	}

	return u, nil
}

// SeedDemoUsers はデモ用ユーザーを作成する。既に存在する場合は何もしない。
//
// デモ認証情報:
//   - admin / admin123 （read, write, delete権限 + スーパーユーザー）
//   - user / user123 （read, write権限）
func (s *Store) SeedDemoUsers(ctx context.Context) error {
	demos := []struct {
		username    string
		email       string
		password    string
		permissions []string
		superuser   bool
	}{
		{"admin", "admin@codebridge.com", "admin123", []string{"read", "write", "delete"}, true},
		{"user", "user@codebridge.com", "user123", []string{"read", "write"}, false},
	}

	for _, d := range demos {
		_, err := s.Create(ctx, d.username, d.email, d.password, d.permissions, d.superuser)
		if err != nil && !errors.Is(err, ErrDuplicateUsername) {
			return fmt.Errorf("デモユーザー %s の作成に失敗: %w", d.username, err)
		}
	}
	return nil
}

// boolToInt はbool値をSQLiteのINTEGER（0/1）に変換する。
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation はUNIQUE制約違反のエラーかどうかを判定する。
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}
