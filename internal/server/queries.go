package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Queries はプロジェクトとコンテンツのテーブルへのクエリ実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// NewQueries は新しいクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Project はプロジェクトのデータベースレコードを表す。
type Project struct {
	// ID はプロジェクトの一意識別子（UUID）。
	ID string
	// Platform はプラットフォーム名（github, huggingface等）。
	Platform string
	// URL はリポジトリまたはプロジェクトのURL。
	URL string
	// Name はプロジェクト名。
	Name string
	// Description はプロジェクトの説明。
	Description string
	// Stars はスター数。
	Stars int
	// Language は主要なプログラミング言語。
	Language string
	// Topics はトピックのリスト。
	Topics []string
	// QualityScore は品質スコア（0.0〜10.0）。
	QualityScore float64
	// Status は処理ステータス。
	Status string
	// ScrapedAt は取得日時。
	ScrapedAt string
}

// CreateProjectParams はプロジェクト作成のパラメータ。
type CreateProjectParams struct {
	ID           string
	Platform     string
	URL          string
	Name         string
	Description  string
	Stars        int
	Language     string
	Topics       []string
	QualityScore float64
	Status       string
}

// CreateProject はプロジェクトを作成する。
func (q *Queries) CreateProject(ctx context.Context, p CreateProjectParams) error {
	topics, err := json.Marshal(p.Topics)
	if err != nil {
		return fmt.Errorf("トピックのシリアライズに失敗: %w", err)
	}
	if p.Topics == nil {
		topics = []byte("[]")
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO projects (id, platform, url, name, description, stars, language, topics, quality_score, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Platform, p.URL, p.Name, p.Description, p.Stars, p.Language, string(topics), p.QualityScore, p.Status)
	if err != nil {
		return fmt.Errorf("プロジェクトの作成に失敗: %w", err)
	}
	return nil
}

// projectColumns はプロジェクト取得クエリのSELECT句。
const projectColumns = "id, platform, url, name, description, stars, language, topics, quality_score, status, scraped_at"

// scanProject は1行をProjectにスキャンする。
func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var (
		p      Project
		topics string
	)
	err := row.Scan(&p.ID, &p.Platform, &p.URL, &p.Name, &p.Description, &p.Stars,
		&p.Language, &topics, &p.QualityScore, &p.Status, &p.ScrapedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topics), &p.Topics); err != nil {
		return nil, fmt.Errorf("トピックのデシリアライズに失敗: %w", err)
	}
	return &p, nil
}

// GetProject はIDでプロジェクトを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetProject(ctx context.Context, id string) (*Project, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	return scanProject(row)
}

// GetProjectByURL はURLでプロジェクトを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetProjectByURL(ctx context.Context, url string) (*Project, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE url = ?", url)
	return scanProject(row)
}

// ProjectFilters はプロジェクト一覧の絞り込み条件。空文字列のフィールドは無視される。
type ProjectFilters struct {
	Platform string
	Status   string
	Language string
}

// where はフィルタからWHERE句と引数を構築する。
func (f ProjectFilters) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Platform != "" {
		conds = append(conds, "platform = ?")
		args = append(args, f.Platform)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Language != "" {
		conds = append(conds, "language = ?")
		args = append(args, f.Language)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListProjects はプロジェクト一覧を取得する。
func (q *Queries) ListProjects(ctx context.Context, filters ProjectFilters, limit, offset int) ([]*Project, error) {
	where, args := filters.where()
	args = append(args, limit, offset)

	rows, err := q.db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects"+where+" ORDER BY scraped_at DESC, id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CountProjects はフィルタに一致するプロジェクトの総数を返す。
func (q *Queries) CountProjects(ctx context.Context, filters ProjectFilters) (int, error) {
	where, args := filters.where()
	var count int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("プロジェクト数の取得に失敗: %w", err)
	}
	return count, nil
}

// UpdateProjectParams はプロジェクト更新のパラメータ。
// nilのフィールドは更新されない。
type UpdateProjectParams struct {
	Platform     *string
	URL          *string
	Name         *string
	Description  *string
	Stars        *int
	Language     *string
	Topics       []string
	QualityScore *float64
	Status       *string
}

// UpdateProject はプロジェクトを部分更新する。
func (q *Queries) UpdateProject(ctx context.Context, id string, p UpdateProjectParams) error {
	var (
		sets []string
		args []any
	)
	appendSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Platform != nil {
		appendSet("platform", *p.Platform)
	}
	if p.URL != nil {
		appendSet("url", *p.URL)
	}
	if p.Name != nil {
		appendSet("name", *p.Name)
	}
	if p.Description != nil {
		appendSet("description", *p.Description)
	}
	if p.Stars != nil {
		appendSet("stars", *p.Stars)
	}
	if p.Language != nil {
		appendSet("language", *p.Language)
	}
	if p.Topics != nil {
		topics, err := json.Marshal(p.Topics)
		if err != nil {
			return fmt.Errorf("トピックのシリアライズに失敗: %w", err)
		}
		appendSet("topics", string(topics))
	}
	if p.QualityScore != nil {
		appendSet("quality_score", *p.QualityScore)
	}
	if p.Status != nil {
		appendSet("status", *p.Status)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	_, err := q.db.ExecContext(ctx, "UPDATE projects SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("プロジェクトの更新に失敗: %w", err)
	}
	return nil
}

// DeleteProject はプロジェクトを削除する。
// 関連するコンテンツも外部キー制約により削除される。
func (q *Queries) DeleteProject(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id); err != nil {
		return fmt.Errorf("プロジェクトの削除に失敗: %w", err)
	}
	return nil
}
