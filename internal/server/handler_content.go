package server

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sreejagatab/codebridge/internal/gate"
)

// allowedContentTypes は受け付けるコンテンツ種別。
var allowedContentTypes = map[string]bool{
	"blog":     true,
	"article":  true,
	"tutorial": true,
	"guide":    true,
	"review":   true,
}

// allowedContentStatuses は受け付けるコンテンツステータス。
var allowedContentStatuses = map[string]bool{
	"draft":     true,
	"enhanced":  true,
	"published": true,
	"archived":  true,
}

// slugPattern はスラッグに使える文字を定義する（小文字英数字とハイフンのみ）。
var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// createContentRequest はコンテンツ作成リクエストのJSON構造。
type createContentRequest struct {
	// ProjectID は元となるプロジェクトのID。
	ProjectID string `json:"project_id" binding:"required"`
	// ContentType はコンテンツの種類。
	ContentType string `json:"content_type" binding:"required"`
	// Title はタイトル。
	Title string `json:"title" binding:"required"`
	// Slug はURLフレンドリーなスラッグ。
	Slug string `json:"slug" binding:"required"`
	// RawContent は元のコンテンツ本文。
	RawContent string `json:"raw_content"`
	// EnhancedContent は加工済みのコンテンツ本文。
	EnhancedContent string `json:"enhanced_content"`
	// MetaDescription はSEO用のメタディスクリプション。
	MetaDescription string `json:"meta_description"`
	// Tags はタグのリスト。
	Tags []string `json:"tags"`
	// Status はステータス。省略時はdraft。
	Status string `json:"status"`
}

// validate はコンテンツ作成リクエストの値を検証する。
func (r *createContentRequest) validate() error {
	r.ContentType = strings.ToLower(r.ContentType)
	if !allowedContentTypes[r.ContentType] {
		return errors.New("コンテンツ種別はblog, article, tutorial, guide, reviewのいずれかである必要があります")
	}
	if !slugPattern.MatchString(r.Slug) {
		return errors.New("スラッグは小文字英数字とハイフンのみ使用できます")
	}
	if r.Status == "" {
		r.Status = "draft"
	}
	r.Status = strings.ToLower(r.Status)
	if !allowedContentStatuses[r.Status] {
		return errors.New("ステータスはdraft, enhanced, published, archivedのいずれかである必要があります")
	}
	return nil
}

// contentSummaryResponse はコンテンツ一覧用のJSONレスポンス構造。
// 本文は含まず、文字数のみを返す。
type contentSummaryResponse struct {
	ID                    string   `json:"id"`
	ProjectID             string   `json:"project_id"`
	ContentType           string   `json:"content_type"`
	Title                 string   `json:"title"`
	Slug                  string   `json:"slug"`
	MetaDescription       string   `json:"meta_description"`
	Tags                  []string `json:"tags"`
	Status                string   `json:"status"`
	CreatedAt             string   `json:"created_at"`
	RawContentLength      int      `json:"raw_content_length"`
	EnhancedContentLength int      `json:"enhanced_content_length"`
}

// handleListContent はコンテンツ一覧取得のハンドラを返す。
// project_id, content_type, statusによる絞り込みとページネーションをサポートする。
func (s *Server) handleListContent() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, skip, err := parsePagination(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filters := ContentFilters{
			ProjectID:   c.Query("project_id"),
			ContentType: strings.ToLower(c.Query("content_type")),
			Status:      strings.ToLower(c.Query("status")),
		}

		summaries, err := s.queries.ListContent(c.Request.Context(), filters, limit, skip)
		if err != nil {
			log.Printf("コンテンツ一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツ一覧の取得に失敗しました"})
			return
		}

		total, err := s.queries.CountContent(c.Request.Context(), filters)
		if err != nil {
			log.Printf("コンテンツ数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツ一覧の取得に失敗しました"})
			return
		}

		data := make([]contentSummaryResponse, 0, len(summaries))
		for _, cs := range summaries {
			tags := cs.Tags
			if tags == nil {
				tags = []string{}
			}
			data = append(data, contentSummaryResponse{
				ID:                    cs.ID,
				ProjectID:             cs.ProjectID,
				ContentType:           cs.ContentType,
				Title:                 cs.Title,
				Slug:                  cs.Slug,
				MetaDescription:       cs.MetaDescription,
				Tags:                  tags,
				Status:                cs.Status,
				CreatedAt:             cs.CreatedAt,
				RawContentLength:      cs.RawContentLength,
				EnhancedContentLength: cs.EnhancedContentLength,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"data":     data,
			"total":    total,
			"page":     (skip / limit) + 1,
			"per_page": limit,
			"pages":    (total + limit - 1) / limit,
		})
	}
}

// handleCreateContent はコンテンツ作成のハンドラを返す。
// write権限が必要。参照先プロジェクトが存在しない場合は404、
// 同じスラッグのコンテンツが存在する場合は409を返す。
func (s *Server) handleCreateContent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createContentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project_id, content_type, title, slugは必須です"})
			return
		}
		if err := req.validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if _, err := s.queries.GetProject(c.Request.Context(), req.ProjectID); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロジェクトが見つかりません"})
			return
		} else if err != nil {
			log.Printf("プロジェクト確認エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの作成に失敗しました"})
			return
		}

		if _, err := s.queries.GetContentBySlug(c.Request.Context(), req.Slug); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "同じスラッグのコンテンツが既に存在します"})
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("スラッグ重複確認エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの作成に失敗しました"})
			return
		}

		id := uuid.New().String()
		err := s.queries.CreateContent(c.Request.Context(), CreateContentParams{
			ID:              id,
			ProjectID:       req.ProjectID,
			ContentType:     req.ContentType,
			Title:           req.Title,
			Slug:            req.Slug,
			RawContent:      req.RawContent,
			EnhancedContent: req.EnhancedContent,
			MetaDescription: req.MetaDescription,
			Tags:            req.Tags,
			Status:          req.Status,
		})
		if err != nil {
			log.Printf("コンテンツ作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの作成に失敗しました"})
			return
		}

		log.Printf("コンテンツ作成: id=%s, slug=%s, user=%s", id, req.Slug, gate.SubjectFrom(c))
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data": gin.H{
				"id":    id,
				"title": req.Title,
				"slug":  req.Slug,
			},
		})
	}
}

// boolQuery はクエリパラメータを真偽値として解釈する。
// true, True, 1などを受け付け、未設定や解釈できない値はfalseを返す。
func boolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}

// renderContentDetail はコンテンツ詳細のレスポンスを返す。
// include_raw / include_enhanced クエリパラメータで本文を含めることができる。
func renderContentDetail(c *gin.Context, content *Content) {
	tags := content.Tags
	if tags == nil {
		tags = []string{}
	}
	data := gin.H{
		"id":               content.ID,
		"project_id":       content.ProjectID,
		"content_type":     content.ContentType,
		"title":            content.Title,
		"slug":             content.Slug,
		"meta_description": content.MetaDescription,
		"tags":             tags,
		"status":           content.Status,
		"created_at":       content.CreatedAt,
	}
	if boolQuery(c, "include_raw") {
		data["raw_content"] = content.RawContent
	}
	if boolQuery(c, "include_enhanced") {
		data["enhanced_content"] = content.EnhancedContent
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// handleGetContent はコンテンツ詳細取得のハンドラを返す。
func (s *Server) handleGetContent() gin.HandlerFunc {
	return func(c *gin.Context) {
		content, err := s.queries.GetContent(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "コンテンツが見つかりません"})
			return
		}
		if err != nil {
			log.Printf("コンテンツ取得エラー: id=%s, error=%v", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの取得に失敗しました"})
			return
		}

		renderContentDetail(c, content)
	}
}

// handleGetContentBySlug はスラッグによるコンテンツ詳細取得のハンドラを返す。
// 公開ブログがURLのスラッグから記事を引くためのエンドポイント。
func (s *Server) handleGetContentBySlug() gin.HandlerFunc {
	return func(c *gin.Context) {
		content, err := s.queries.GetContentBySlug(c.Request.Context(), c.Param("slug"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "コンテンツが見つかりません"})
			return
		}
		if err != nil {
			log.Printf("コンテンツ取得エラー: slug=%s, error=%v", c.Param("slug"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの取得に失敗しました"})
			return
		}

		renderContentDetail(c, content)
	}
}

// updateContentRequest はコンテンツ更新リクエストのJSON構造。
// nilのフィールドは更新されない。
type updateContentRequest struct {
	ProjectID       *string  `json:"project_id"`
	Title           *string  `json:"title"`
	Slug            *string  `json:"slug"`
	RawContent      *string  `json:"raw_content"`
	EnhancedContent *string  `json:"enhanced_content"`
	MetaDescription *string  `json:"meta_description"`
	Tags            []string `json:"tags"`
	Status          *string  `json:"status"`
}

// validate はコンテンツ更新リクエストの値を検証する。
func (r *updateContentRequest) validate() error {
	if r.Title != nil && *r.Title == "" {
		return errors.New("タイトルは空にできません")
	}
	if r.Slug != nil && !slugPattern.MatchString(*r.Slug) {
		return errors.New("スラッグは小文字英数字とハイフンのみ使用できます")
	}
	if r.Status != nil {
		*r.Status = strings.ToLower(*r.Status)
		if !allowedContentStatuses[*r.Status] {
			return errors.New("ステータスはdraft, enhanced, published, archivedのいずれかである必要があります")
		}
	}
	return nil
}

// handleUpdateContent はコンテンツ更新のハンドラを返す。write権限が必要。
func (s *Server) handleUpdateContent() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := s.queries.GetContent(c.Request.Context(), id); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "コンテンツが見つかりません"})
			return
		} else if err != nil {
			log.Printf("コンテンツ取得エラー: id=%s, error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの更新に失敗しました"})
			return
		}

		var req updateContentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}
		if err := req.validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// スラッグ変更時は他のコンテンツとの衝突を確認する
		if req.Slug != nil {
			existing, err := s.queries.GetContentBySlug(c.Request.Context(), *req.Slug)
			if err == nil && existing.ID != id {
				c.JSON(http.StatusConflict, gin.H{"error": "同じスラッグのコンテンツが既に存在します"})
				return
			}
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				log.Printf("スラッグ重複確認エラー: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの更新に失敗しました"})
				return
			}
		}

		// 紐付け先プロジェクト変更時は存在を確認する
		if req.ProjectID != nil {
			if _, err := s.queries.GetProject(c.Request.Context(), *req.ProjectID); errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "プロジェクトが見つかりません"})
				return
			} else if err != nil {
				log.Printf("プロジェクト確認エラー: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの更新に失敗しました"})
				return
			}
		}

		err := s.queries.UpdateContent(c.Request.Context(), id, UpdateContentParams{
			ProjectID:       req.ProjectID,
			Title:           req.Title,
			Slug:            req.Slug,
			RawContent:      req.RawContent,
			EnhancedContent: req.EnhancedContent,
			MetaDescription: req.MetaDescription,
			Tags:            req.Tags,
			Status:          req.Status,
		})
		if err != nil {
			log.Printf("コンテンツ更新エラー: id=%s, error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの更新に失敗しました"})
			return
		}

		log.Printf("コンテンツ更新: id=%s, user=%s", id, gate.SubjectFrom(c))
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"id": id},
		})
	}
}

// handleDeleteContent はコンテンツ削除のハンドラを返す。delete権限が必要。
func (s *Server) handleDeleteContent() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := s.queries.GetContent(c.Request.Context(), id); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "コンテンツが見つかりません"})
			return
		} else if err != nil {
			log.Printf("コンテンツ取得エラー: id=%s, error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの削除に失敗しました"})
			return
		}

		if err := s.queries.DeleteContent(c.Request.Context(), id); err != nil {
			log.Printf("コンテンツ削除エラー: id=%s, error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コンテンツの削除に失敗しました"})
			return
		}

		log.Printf("コンテンツ削除: id=%s, user=%s", id, gate.SubjectFrom(c))
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"deleted_id": id},
		})
	}
}
