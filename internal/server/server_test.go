package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sreejagatab/codebridge/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig はテスト用のサービス設定を返す。
// データベースはインメモリSQLiteを使用する。
func testConfig() *config.Config {
	return &config.Config{
		Port:                     "0",
		JWTSecret:                "test-secret-key",
		TokenTTL:                 30 * time.Minute,
		RateLimitPerWindow:       1000,
		StrictRateLimitPerWindow: 5,
		RateLimitWindow:          time.Minute,
		DatabasePath:             ":memory:",
		AllowedOrigins:           []string{"*"},
	}
}

// setupTestServer はテスト用のCodeBridgeサーバーをインメモリSQLiteで構築する。
// デモユーザー（admin, user）が投入済みの状態で返す。
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := NewServer(testConfig())
	if err != nil {
		t.Fatalf("テストサーバーの構築に失敗: %v", err)
	}
	t.Cleanup(func() { s.db.Close() })

	return s
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
// tokenが空でなければAuthorizationヘッダーに設定する。
func doRequest(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.RemoteAddr = "192.0.2.1:12345"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// loginAs は指定ユーザーでログインし、アクセストークンを返すヘルパー関数。
func loginAs(t *testing.T, s *Server, username, password string) string {
	t.Helper()

	w := doRequest(s, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ログインに失敗: status=%d, body=%s", w.Code, w.Body.String())
	}

	result := parseJSON(t, w)
	token, ok := result["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("access_tokenが取得できません: %v", result)
	}
	return token
}

// createTestProject はテスト用にプロジェクトを作成し、IDを返すヘルパー関数。
func createTestProject(t *testing.T, s *Server, token, name, url string) string {
	t.Helper()

	w := doRequest(s, http.MethodPost, "/api/projects", token, map[string]any{
		"platform": "github",
		"url":      url,
		"name":     name,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("テスト用プロジェクトの作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}

	data := parseJSON(t, w)["data"].(map[string]any)
	return data["id"].(string)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい認証情報でトークンが発行される", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "admin",
			"password": "admin123",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, want=%d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["access_token"] == "" {
			t.Error("access_tokenが空です")
		}
		if result["token_type"] != "bearer" {
			t.Errorf("token_typeが不正: got=%v, want=bearer", result["token_type"])
		}
		if result["expires_in"] != float64(1800) {
			t.Errorf("expires_inが不正: got=%v, want=1800", result["expires_in"])
		}
	})

	t.Run("誤ったパスワードで401が返る", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "admin",
			"password": "wrong-password",
		})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusUnauthorized)
		}
		if w.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("WWW-Authenticateヘッダーが不正: got=%q", w.Header().Get("WWW-Authenticate"))
		}
	})

	t.Run("存在しないユーザーで401が返る", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "nobody",
			"password": "password",
		})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("必須フィールドの欠落で400が返る", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "admin",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestAuthMe(t *testing.T) {
	t.Parallel()

	t.Run("発行されたトークンで自分の情報を取得できる", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t)
		token := loginAs(t, s, "admin", "admin123")

		w := doRequest(s, http.MethodGet, "/api/auth/me", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		data := parseJSON(t, w)["data"].(map[string]any)
		if data["username"] != "admin" {
			t.Errorf("usernameが不正: got=%v, want=admin", data["username"])
		}
		if data["superuser"] != true {
			t.Errorf("superuserが不正: got=%v, want=true", data["superuser"])
		}
	})

	t.Run("トークンなしで401が返る", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t)

		w := doRequest(s, http.MethodGet, "/api/auth/me", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("不正なトークンで401が返る", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t)

		w := doRequest(s, http.MethodGet, "/api/auth/me", "not-a-valid-token", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestProjectCRUD(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)
	token := loginAs(t, s, "admin", "admin123")

	id := createTestProject(t, s, token, "test-project", "https://github.com/example/test-project")

	t.Run("作成したプロジェクトを取得できる", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/projects/"+id, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		data := parseJSON(t, w)["data"].(map[string]any)
		if data["name"] != "test-project" {
			t.Errorf("nameが不正: got=%v, want=test-project", data["name"])
		}
		if data["status"] != "discovered" {
			t.Errorf("statusが不正: got=%v, want=discovered", data["status"])
		}
	})

	t.Run("一覧にプロジェクトが含まれる", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/projects", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["total"] != float64(1) {
			t.Errorf("totalが不正: got=%v, want=1", result["total"])
		}
	})

	t.Run("プロジェクトを部分更新できる", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, "/api/projects/"+id, token, map[string]any{
			"status": "analyzed",
			"stars":  42,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		w = doRequest(s, http.MethodGet, "/api/projects/"+id, "", nil)
		data := parseJSON(t, w)["data"].(map[string]any)
		if data["status"] != "analyzed" {
			t.Errorf("statusが更新されていない: got=%v, want=analyzed", data["status"])
		}
		if data["stars"] != float64(42) {
			t.Errorf("starsが更新されていない: got=%v, want=42", data["stars"])
		}
	})

	t.Run("プロジェクトを削除できる", func(t *testing.T) {
		w := doRequest(s, http.MethodDelete, "/api/projects/"+id, token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		w = doRequest(s, http.MethodGet, "/api/projects/"+id, "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("削除後のステータスコードが不正: got=%d, want=%d", w.Code, http.StatusNotFound)
		}
	})
}

func TestProjectValidation(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)
	token := loginAs(t, s, "admin", "admin123")

	t.Run("未対応のプラットフォームで400が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/projects", token, map[string]any{
			"platform": "sourceforge",
			"url":      "https://sourceforge.net/projects/example",
			"name":     "example",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("不正なURLで400が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/projects", token, map[string]any{
			"platform": "github",
			"url":      "ftp://github.com/example/repo",
			"name":     "example",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("同じURLの重複作成で409が返る", func(t *testing.T) {
		url := "https://github.com/example/duplicate"
		createTestProject(t, s, token, "original", url)

		w := doRequest(s, http.MethodPost, "/api/projects", token, map[string]any{
			"platform": "github",
			"url":      url,
			"name":     "duplicate",
		})
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusConflict)
		}
	})

	t.Run("存在しないプロジェクトの取得で404が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/projects/no-such-id", "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusNotFound)
		}
	})
}

func TestProjectPermissions(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)
	adminToken := loginAs(t, s, "admin", "admin123")
	userToken := loginAs(t, s, "user", "user123")

	t.Run("トークンなしの作成は401が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/projects", "", map[string]any{
			"platform": "github",
			"url":      "https://github.com/example/anon",
			"name":     "anon",
		})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("write権限を持つユーザーは作成できる", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/projects", userToken, map[string]any{
			"platform": "github",
			"url":      "https://github.com/example/by-user",
			"name":     "by-user",
		})
		if w.Code != http.StatusCreated {
			t.Errorf("ステータスコードが不正: got=%d, want=%d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
	})

	t.Run("delete権限のないユーザーの削除は403が返る", func(t *testing.T) {
		id := createTestProject(t, s, adminToken, "protected", "https://github.com/example/protected")

		w := doRequest(s, http.MethodDelete, "/api/projects/"+id, userToken, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("スーパーユーザーは削除できる", func(t *testing.T) {
		id := createTestProject(t, s, adminToken, "deletable", "https://github.com/example/deletable")

		w := doRequest(s, http.MethodDelete, "/api/projects/"+id, adminToken, nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコードが不正: got=%d, want=%d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
	})
}

func TestContentCRUD(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)
	token := loginAs(t, s, "admin", "admin123")
	projectID := createTestProject(t, s, token, "content-source", "https://github.com/example/content-source")

	var contentID string

	t.Run("コンテンツを作成できる", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/content", token, map[string]any{
			"project_id":   projectID,
			"content_type": "blog",
			"title":        "Getting Started",
			"slug":         "getting-started",
			"raw_content":  "# Getting Started\n\nHello.",
			"tags":         []string{"tutorial", "intro"},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		data := parseJSON(t, w)["data"].(map[string]any)
		contentID = data["id"].(string)
		if contentID == "" {
			t.Fatal("コンテンツIDが空です")
		}
	})

	t.Run("一覧は本文を含まず文字数のみを返す", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/content", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		result := parseJSON(t, w)
		items := result["data"].([]any)
		if len(items) != 1 {
			t.Fatalf("コンテンツ数が不正: got=%d, want=1", len(items))
		}
		item := items[0].(map[string]any)
		if _, exists := item["raw_content"]; exists {
			t.Error("一覧レスポンスに本文が含まれています")
		}
		if item["raw_content_length"] == float64(0) {
			t.Error("raw_content_lengthが0です")
		}
	})

	t.Run("include_rawを指定すると本文が含まれる", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/content/"+contentID+"?include_raw=true", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		data := parseJSON(t, w)["data"].(map[string]any)
		if data["raw_content"] != "# Getting Started\n\nHello." {
			t.Errorf("raw_contentが不正: got=%v", data["raw_content"])
		}
	})

	t.Run("include_rawなしでは本文が含まれない", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/content/"+contentID, "", nil)
		data := parseJSON(t, w)["data"].(map[string]any)
		if _, exists := data["raw_content"]; exists {
			t.Error("レスポンスに本文が含まれています")
		}
	})

	t.Run("コンテンツを更新できる", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, "/api/content/"+contentID, token, map[string]any{
			"status":           "enhanced",
			"enhanced_content": "improved text",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		w = doRequest(s, http.MethodGet, "/api/content/"+contentID+"?include_enhanced=true", "", nil)
		data := parseJSON(t, w)["data"].(map[string]any)
		if data["status"] != "enhanced" {
			t.Errorf("statusが更新されていない: got=%v", data["status"])
		}
		if data["enhanced_content"] != "improved text" {
			t.Errorf("enhanced_contentが更新されていない: got=%v", data["enhanced_content"])
		}
	})

	t.Run("コンテンツを削除できる", func(t *testing.T) {
		w := doRequest(s, http.MethodDelete, "/api/content/"+contentID, token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		w = doRequest(s, http.MethodGet, "/api/content/"+contentID, "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("削除後のステータスコードが不正: got=%d, want=%d", w.Code, http.StatusNotFound)
		}
	})
}

func TestGetContentBySlug(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)
	token := loginAs(t, s, "admin", "admin123")
	projectID := createTestProject(t, s, token, "slug-source", "https://github.com/example/slug-source")

	w := doRequest(s, http.MethodPost, "/api/content", token, map[string]any{
		"project_id":   projectID,
		"content_type": "blog",
		"title":        "Slug Lookup",
		"slug":         "slug-lookup",
		"raw_content":  "body text",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("コンテンツの作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	contentID := parseJSON(t, w)["data"].(map[string]any)["id"].(string)

	t.Run("スラッグでコンテンツを取得できる", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/content/by-slug/slug-lookup", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		data := parseJSON(t, w)["data"].(map[string]any)
		if data["id"] != contentID {
			t.Errorf("idが不正: got=%v, want=%s", data["id"], contentID)
		}
		if data["slug"] != "slug-lookup" {
			t.Errorf("slugが不正: got=%v, want=slug-lookup", data["slug"])
		}
	})

	t.Run("include_rawは1でも本文が含まれる", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/content/by-slug/slug-lookup?include_raw=1", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		data := parseJSON(t, w)["data"].(map[string]any)
		if data["raw_content"] != "body text" {
			t.Errorf("raw_contentが不正: got=%v", data["raw_content"])
		}
	})

	t.Run("存在しないスラッグで404が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/content/by-slug/no-such-slug", "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusNotFound)
		}
	})
}

func TestContentUpdateRelocation(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)
	token := loginAs(t, s, "admin", "admin123")
	projectA := createTestProject(t, s, token, "relocation-a", "https://github.com/example/relocation-a")
	projectB := createTestProject(t, s, token, "relocation-b", "https://github.com/example/relocation-b")

	createContent := func(title, slug string) string {
		t.Helper()
		w := doRequest(s, http.MethodPost, "/api/content", token, map[string]any{
			"project_id":   projectA,
			"content_type": "blog",
			"title":        title,
			"slug":         slug,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("コンテンツの作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
		}
		return parseJSON(t, w)["data"].(map[string]any)["id"].(string)
	}

	firstID := createContent("First", "first-slug")
	secondID := createContent("Second", "second-slug")

	t.Run("既存のスラッグへの変更は409が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, "/api/content/"+secondID, token, map[string]any{
			"slug": "first-slug",
		})
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコードが不正: got=%d, want=%d, body=%s", w.Code, http.StatusConflict, w.Body.String())
		}
	})

	t.Run("自身と同じスラッグの指定は更新できる", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, "/api/content/"+firstID, token, map[string]any{
			"slug": "first-slug",
		})
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコードが不正: got=%d, want=%d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
	})

	t.Run("新しいスラッグへの変更が反映される", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, "/api/content/"+secondID, token, map[string]any{
			"slug": "renamed-slug",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		w = doRequest(s, http.MethodGet, "/api/content/by-slug/renamed-slug", "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("変更後のスラッグで取得できない: got=%d", w.Code)
		}
	})

	t.Run("不正なスラッグへの変更は400が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, "/api/content/"+secondID, token, map[string]any{
			"slug": "Bad Slug!",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("存在しないプロジェクトへの付け替えは404が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, "/api/content/"+firstID, token, map[string]any{
			"project_id": "no-such-project",
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("存在するプロジェクトへの付け替えが反映される", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, "/api/content/"+firstID, token, map[string]any{
			"project_id": projectB,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		w = doRequest(s, http.MethodGet, "/api/content/"+firstID, "", nil)
		data := parseJSON(t, w)["data"].(map[string]any)
		if data["project_id"] != projectB {
			t.Errorf("project_idが更新されていない: got=%v, want=%s", data["project_id"], projectB)
		}
	})
}

func TestPaginationValidation(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{name: "負のlimitで400が返る", path: "/api/projects?limit=-5"},
		{name: "上限を超えるlimitで400が返る", path: "/api/projects?limit=2000"},
		{name: "整数でないskipで400が返る", path: "/api/projects?skip=abc"},
		{name: "負のskipで400が返る", path: "/api/content?skip=-1"},
		{name: "整数でないlimitで400が返る", path: "/api/content?limit=many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, tt.path, "", nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコードが不正: got=%d, want=%d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestContentValidation(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)
	token := loginAs(t, s, "admin", "admin123")
	projectID := createTestProject(t, s, token, "validation-source", "https://github.com/example/validation-source")

	t.Run("存在しないプロジェクトへの作成で404が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/content", token, map[string]any{
			"project_id":   "no-such-project",
			"content_type": "blog",
			"title":        "Orphan",
			"slug":         "orphan",
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("不正なスラッグで400が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/content", token, map[string]any{
			"project_id":   projectID,
			"content_type": "blog",
			"title":        "Bad Slug",
			"slug":         "Bad Slug!",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("未対応のコンテンツ種別で400が返る", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/content", token, map[string]any{
			"project_id":   projectID,
			"content_type": "podcast",
			"title":        "Podcast",
			"slug":         "podcast",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("同じスラッグの重複作成で409が返る", func(t *testing.T) {
		body := map[string]any{
			"project_id":   projectID,
			"content_type": "blog",
			"title":        "Unique",
			"slug":         "unique-slug",
		}
		w := doRequest(s, http.MethodPost, "/api/content", token, body)
		if w.Code != http.StatusCreated {
			t.Fatalf("1回目の作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
		}

		w = doRequest(s, http.MethodPost, "/api/content", token, body)
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusConflict)
		}
	})
}

func TestStrictRateLimit(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)

	// 厳格ティアの上限（5回）まではリクエストが通る
	for i := 0; i < 5; i++ {
		w := doRequest(s, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "admin",
			"password": "wrong",
		})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%d回目のステータスコードが不正: got=%d, want=%d", i+1, w.Code, http.StatusUnauthorized)
		}
	}

	// 上限を超えると429が返る
	w := doRequest(s, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("ステータスコードが不正: got=%d, want=%d", w.Code, http.StatusTooManyRequests)
	}

	retryAfter := w.Header().Get("Retry-After")
	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		t.Fatalf("Retry-Afterが整数ではない: %q", retryAfter)
	}
	if seconds < 1 || seconds > 60 {
		t.Errorf("Retry-Afterの値が不正: got=%d", seconds)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)

	t.Run("詳細ヘルスチェック", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/health", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["status"] != "healthy" {
			t.Errorf("statusが不正: got=%v, want=healthy", result["status"])
		}
		if result["version"] != version {
			t.Errorf("versionが不正: got=%v, want=%s", result["version"], version)
		}
	})

	t.Run("軽量ヘルスチェック", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/health/simple", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d", w.Code)
		}
		if parseJSON(t, w)["status"] != "ok" {
			t.Errorf("statusが不正: body=%s", w.Body.String())
		}
	})

	t.Run("データベースヘルスチェックはテーブルの行数を返す", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/health/database", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコードが不正: got=%d, body=%s", w.Code, w.Body.String())
		}

		result := parseJSON(t, w)
		tables := result["tables"].(map[string]any)
		// デモユーザー2名が投入済み
		if tables["users"] != float64(2) {
			t.Errorf("usersの行数が不正: got=%v, want=2", tables["users"])
		}
	})
}

func TestRootEndpoint(t *testing.T) {
	t.Parallel()
	s := setupTestServer(t)

	w := doRequest(s, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコードが不正: got=%d", w.Code)
	}

	result := parseJSON(t, w)
	if result["status"] != "running" {
		t.Errorf("statusが不正: got=%v, want=running", result["status"])
	}
	if fmt.Sprintf("%v", result["version"]) != version {
		t.Errorf("versionが不正: got=%v, want=%s", result["version"], version)
	}
}
