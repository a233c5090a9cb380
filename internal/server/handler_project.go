package server

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sreejagatab/codebridge/internal/gate"
)

// allowedPlatforms は受け付けるプラットフォーム名。
var allowedPlatforms = map[string]bool{
	"github":      true,
	"huggingface": true,
	"gitlab":      true,
	"kaggle":      true,
	"bitbucket":   true,
}

// allowedProjectStatuses は受け付けるプロジェクトステータス。
var allowedProjectStatuses = map[string]bool{
	"discovered": true,
	"analyzed":   true,
	"processed":  true,
	"published":  true,
	"archived":   true,
}

// createProjectRequest はプロジェクト作成リクエストのJSON構造。
type createProjectRequest struct {
	// Platform はプラットフォーム名。
	Platform string `json:"platform" binding:"required"`
	// URL はリポジトリまたはプロジェクトのURL。
	URL string `json:"url" binding:"required"`
	// Name はプロジェクト名。
	Name string `json:"name" binding:"required"`
	// Description はプロジェクトの説明。
	Description string `json:"description"`
	// Stars はスター数。
	Stars int `json:"stars"`
	// Language は主要なプログラミング言語。
	Language string `json:"language"`
	// Topics はトピックのリスト。
	Topics []string `json:"topics"`
	// QualityScore は品質スコア（0.0〜10.0）。
	QualityScore float64 `json:"quality_score"`
	// Status は処理ステータス。省略時はdiscovered。
	Status string `json:"status"`
}

// validate はプロジェクト作成リクエストの値を検証する。
func (r *createProjectRequest) validate() error {
	r.Platform = strings.ToLower(r.Platform)
	if !allowedPlatforms[r.Platform] {
		return errors.New("プラットフォームはgithub, huggingface, gitlab, kaggle, bitbucketのいずれかである必要があります")
	}
	if !strings.HasPrefix(r.URL, "http://") && !strings.HasPrefix(r.URL, "https://") {
		return errors.New("URLはhttp://またはhttps://で始まる必要があります")
	}
	if r.Stars < 0 {
		return errors.New("スター数は0以上である必要があります")
	}
	if r.QualityScore < 0 || r.QualityScore > 10 {
		return errors.New("品質スコアは0.0〜10.0の範囲である必要があります")
	}
	if r.Status == "" {
		r.Status = "discovered"
	}
	r.Status = strings.ToLower(r.Status)
	if !allowedProjectStatuses[r.Status] {
		return errors.New("ステータスはdiscovered, analyzed, processed, published, archivedのいずれかである必要があります")
	}
	return nil
}

// projectResponse はプロジェクトのJSONレスポンス構造。
type projectResponse struct {
	ID           string   `json:"id"`
	Platform     string   `json:"platform"`
	URL          string   `json:"url"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Stars        int      `json:"stars"`
	Language     string   `json:"language"`
	Topics       []string `json:"topics"`
	QualityScore float64  `json:"quality_score"`
	Status       string   `json:"status"`
	ScrapedAt    string   `json:"scraped_at"`
}

// toProjectResponse はDBレコードをレスポンス構造に変換する。
func toProjectResponse(p *Project) projectResponse {
	topics := p.Topics
	if topics == nil {
		topics = []string{}
	}
	return projectResponse{
		ID:           p.ID,
		Platform:     p.Platform,
		URL:          p.URL,
		Name:         p.Name,
		Description:  p.Description,
		Stars:        p.Stars,
		Language:     p.Language,
		Topics:       topics,
		QualityScore: p.QualityScore,
		Status:       p.Status,
		ScrapedAt:    p.ScrapedAt,
	}
}

// parsePagination はskip/limitクエリパラメータを解析する。
// skipは0以上、limitは1〜1000の範囲のみ受け付け、範囲外や
// 整数として解釈できない値はエラーを返す。limitのデフォルトは100。
func parsePagination(c *gin.Context) (limit, skip int, err error) {
	skip, err = strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		return 0, 0, errors.New("skipは0以上の整数である必要があります")
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		return 0, 0, errors.New("limitは1〜1000の整数である必要があります")
	}
	return limit, skip, nil
}

// handleListProjects はプロジェクト一覧取得のハンドラを返す。
// platform, status, languageによる絞り込みとページネーションをサポートする。
func (s *Server) handleListProjects() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, skip, err := parsePagination(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filters := ProjectFilters{
			Platform: strings.ToLower(c.Query("platform")),
			Status:   strings.ToLower(c.Query("status")),
			Language: c.Query("language"),
		}

		projects, err := s.queries.ListProjects(c.Request.Context(), filters, limit, skip)
		if err != nil {
			log.Printf("プロジェクト一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクト一覧の取得に失敗しました"})
			return
		}

		total, err := s.queries.CountProjects(c.Request.Context(), filters)
		if err != nil {
			log.Printf("プロジェクト数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクト一覧の取得に失敗しました"})
			return
		}

		data := make([]projectResponse, 0, len(projects))
		for _, p := range projects {
			data = append(data, toProjectResponse(p))
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

// handleCreateProject はプロジェクト作成のハンドラを返す。
// write権限が必要。同じURLのプロジェクトが存在する場合は409を返す。
func (s *Server) handleCreateProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "platform, url, nameは必須です"})
			return
		}
		if err := req.validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if _, err := s.queries.GetProjectByURL(c.Request.Context(), req.URL); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "同じURLのプロジェクトが既に存在します"})
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("プロジェクト重複確認エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクトの作成に失敗しました"})
			return
		}

		id := uuid.New().String()
		err := s.queries.CreateProject(c.Request.Context(), CreateProjectParams{
			ID:           id,
			Platform:     req.Platform,
			URL:          req.URL,
			Name:         req.Name,
			Description:  req.Description,
			Stars:        req.Stars,
			Language:     req.Language,
			Topics:       req.Topics,
			QualityScore: req.QualityScore,
			Status:       req.Status,
		})
		if err != nil {
			log.Printf("プロジェクト作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクトの作成に失敗しました"})
			return
		}

		log.Printf("プロジェクト作成: id=%s, name=%s, user=%s", id, req.Name, gate.SubjectFrom(c))
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data": gin.H{
				"id":       id,
				"name":     req.Name,
				"platform": req.Platform,
				"url":      req.URL,
			},
		})
	}
}

// handleGetProject はプロジェクト詳細取得のハンドラを返す。
func (s *Server) handleGetProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		project, err := s.queries.GetProject(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロジェクトが見つかりません"})
			return
		}
		if err != nil {
			log.Printf("プロジェクト取得エラー: id=%s, error=%v", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクトの取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    toProjectResponse(project),
		})
	}
}

// updateProjectRequest はプロジェクト更新リクエストのJSON構造。
// nilのフィールドは更新されない。
type updateProjectRequest struct {
	Platform     *string  `json:"platform"`
	URL          *string  `json:"url"`
	Name         *string  `json:"name"`
	Description  *string  `json:"description"`
	Stars        *int     `json:"stars"`
	Language     *string  `json:"language"`
	Topics       []string `json:"topics"`
	QualityScore *float64 `json:"quality_score"`
	Status       *string  `json:"status"`
}

// validate はプロジェクト更新リクエストの値を検証する。
func (r *updateProjectRequest) validate() error {
	if r.Platform != nil {
		*r.Platform = strings.ToLower(*r.Platform)
		if !allowedPlatforms[*r.Platform] {
			return errors.New("プラットフォームはgithub, huggingface, gitlab, kaggle, bitbucketのいずれかである必要があります")
		}
	}
	if r.URL != nil && !strings.HasPrefix(*r.URL, "http://") && !strings.HasPrefix(*r.URL, "https://") {
		return errors.New("URLはhttp://またはhttps://で始まる必要があります")
	}
	if r.Name != nil && *r.Name == "" {
		return errors.New("プロジェクト名は空にできません")
	}
	if r.Stars != nil && *r.Stars < 0 {
		return errors.New("スター数は0以上である必要があります")
	}
	if r.QualityScore != nil && (*r.QualityScore < 0 || *r.QualityScore > 10) {
		return errors.New("品質スコアは0.0〜10.0の範囲である必要があります")
	}
	if r.Status != nil {
		*r.Status = strings.ToLower(*r.Status)
		if !allowedProjectStatuses[*r.Status] {
			return errors.New("ステータスはdiscovered, analyzed, processed, published, archivedのいずれかである必要があります")
		}
	}
	return nil
}

// handleUpdateProject はプロジェクト更新のハンドラを返す。write権限が必要。
func (s *Server) handleUpdateProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := s.queries.GetProject(c.Request.Context(), id); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロジェクトが見つかりません"})
			return
		} else if err != nil {
			log.Printf("プロジェクト取得エラー: id=%s, error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクトの更新に失敗しました"})
			return
		}

		var req updateProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
			return
		}
		if err := req.validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := s.queries.UpdateProject(c.Request.Context(), id, UpdateProjectParams{
			Platform:     req.Platform,
			URL:          req.URL,
			Name:         req.Name,
			Description:  req.Description,
			Stars:        req.Stars,
			Language:     req.Language,
			Topics:       req.Topics,
			QualityScore: req.QualityScore,
			Status:       req.Status,
		})
		if err != nil {
			log.Printf("プロジェクト更新エラー: id=%s, error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクトの更新に失敗しました"})
			return
		}

		log.Printf("プロジェクト更新: id=%s, user=%s", id, gate.SubjectFrom(c))
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"id": id},
		})
	}
}

// handleDeleteProject はプロジェクト削除のハンドラを返す。delete権限が必要。
func (s *Server) handleDeleteProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := s.queries.GetProject(c.Request.Context(), id); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロジェクトが見つかりません"})
			return
		} else if err != nil {
			log.Printf("プロジェクト取得エラー: id=%s, error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクトの削除に失敗しました"})
			return
		}

		if err := s.queries.DeleteProject(c.Request.Context(), id); err != nil {
			log.Printf("プロジェクト削除エラー: id=%s, error=%v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクトの削除に失敗しました"})
			return
		}

		log.Printf("プロジェクト削除: id=%s, user=%s", id, gate.SubjectFrom(c))
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"deleted_id": id},
		})
	}
}
