package server

import (
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth は詳細なヘルスチェックのハンドラを返す。
// 稼働時間、ランタイム情報、レートリミッターの統計を含む。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "codebridge-api",
			"version":   version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
			"runtime": gin.H{
				"go_version": runtime.Version(),
				"goroutines": runtime.NumGoroutine(),
				"os":         runtime.GOOS,
				"arch":       runtime.GOARCH,
			},
			"rate_limiter": gin.H{
				"standard": gin.H{
					"capacity":     s.standard.Capacity(),
					"window":       s.standard.Window().String(),
					"tracked_keys": s.standard.TrackedKeys(),
				},
				"strict": gin.H{
					"capacity":     s.strict.Capacity(),
					"window":       s.strict.Window().String(),
					"tracked_keys": s.strict.TrackedKeys(),
				},
			},
		})
	}
}

// handleHealthSimple はロードバランサー向けの軽量なヘルスチェックのハンドラを返す。
func (s *Server) handleHealthSimple() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleHealthDatabase はデータベース接続のヘルスチェックのハンドラを返す。
// 接続確認に加えて主要テーブルの行数を返す。
func (s *Server) handleHealthDatabase() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			log.Printf("データベース接続エラー: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "データベースに接続できません",
			})
			return
		}

		counts := gin.H{}
		for _, table := range []string{"users", "projects", "content"} {
			var count int
			if err := s.db.QueryRowContext(c.Request.Context(), "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
				log.Printf("行数取得エラー: table=%s, error=%v", table, err)
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "データベースの照会に失敗しました",
				})
				return
			}
			counts[table] = count
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"tables":    counts,
		})
	}
}
