package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sreejagatab/codebridge/internal/gate"
	"github.com/sreejagatab/codebridge/internal/identity"
)

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Username はユーザー名。
	Username string `json:"username" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// handleLogin はユーザー認証とトークン発行のハンドラを返す。
// 認証に成功するとアクセストークンを返す。
//
// デモ認証情報: admin/admin123（全権限）、user/user123（read/write）
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名とパスワードは必須です"})
			return
		}

		user, err := s.users.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrInactiveUser) {
				c.Header("WWW-Authenticate", "Bearer")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが正しくありません"})
				return
			}
			log.Printf("認証処理エラー: username=%s, error=%v", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "認証処理に失敗しました"})
			return
		}

		tokenStr, err := s.tokens.IssueWithDefaultTTL(user.Username, user.Permissions, user.Superuser)
		if err != nil {
			log.Printf("トークン発行エラー: username=%s, error=%v", user.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			return
		}

		log.Printf("ログイン成功: username=%s", user.Username)
		c.JSON(http.StatusOK, gin.H{
			"access_token": tokenStr,
			"token_type":   "bearer",
			"expires_in":   int(s.tokens.DefaultTTL().Seconds()),
		})
	}
}

// handleMe は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := gate.ClaimsFrom(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証情報が取得できません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"username":      claims.Subject,
				"permissions":   claims.Permissions,
				"superuser":     claims.Superuser,
				"authenticated": true,
			},
		})
	}
}

// handleLogout はログアウトのハンドラを返す。
// トークンはステートレスであり、サーバー側での無効化は行わない。
// クライアントにトークンの破棄を指示するのみのプレースホルダー。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "ログアウトしました。アクセストークンを破棄してください",
		})
	}
}
