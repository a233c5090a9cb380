package gate

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sreejagatab/codebridge/internal/token"
)

// contextKeyClaims はGinコンテキストに検証済みクレームを格納するキー。
const contextKeyClaims = "auth_claims"

// Middleware はゲートキーパーをGinミドルウェアとして返す。
// 全ルートに適用し、ルートごとの方針はポリシーテーブルで解決する。
// 許可されたリクエストには検証済みクレームをコンテキストに設定する。
func (g *Gatekeeper) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			// ルーターに登録されていないパス（404になるリクエスト）
			path = c.Request.URL.Path
		}

		result := g.Check(c.Request.Method, path, c.ClientIP(), c.GetHeader("Authorization"))

		switch result.Kind {
		case RateLimited:
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": result.Reason,
			})
		case Unauthenticated:
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": result.Reason,
			})
		case Forbidden:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": result.Reason,
			})
		default:
			if result.Claims != nil {
				c.Set(contextKeyClaims, result.Claims)
			}
			c.Next()
		}
	}
}

// ClaimsFrom はGinコンテキストから検証済みクレームを取得する。
// 匿名アクセスの場合はnilを返す。
func ClaimsFrom(c *gin.Context) *token.Claims {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.Claims)
	return claims
}

// SubjectFrom はGinコンテキストから認証済みサブジェクト（ユーザー名）を
// 取得する。匿名アクセスの場合は空文字列を返す。
func SubjectFrom(c *gin.Context) string {
	if claims := ClaimsFrom(c); claims != nil {
		return claims.Subject
	}
	return ""
}

// retryAfterSeconds はRetryAfterをRetry-Afterヘッダー用の秒数に変換する。
// 秒未満は切り上げ、最低1秒を返す。
func retryAfterSeconds(r Result) int {
	secs := int(math.Ceil(r.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
