package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Content はコンテンツのデータベースレコードを表す。
type Content struct {
	// ID はコンテンツの一意識別子（UUID）。
	ID string
	// ProjectID は元となったプロジェクトのID。
	ProjectID string
	// ContentType はコンテンツの種類（blog, article等）。
	ContentType string
	// Title はタイトル。
	Title string
	// Slug はURLフレンドリーなスラッグ。
	Slug string
	// RawContent は元のコンテンツ本文。
	RawContent string
	// EnhancedContent は加工済みのコンテンツ本文。
	EnhancedContent string
	// MetaDescription はSEO用のメタディスクリプション。
	MetaDescription string
	// Tags はタグのリスト。
	Tags []string
	// Status はステータス（draft, enhanced, published, archived）。
	Status string
	// CreatedAt は作成日時。
	CreatedAt string
}

// CreateContentParams はコンテンツ作成のパラメータ。
type CreateContentParams struct {
	ID              string
	ProjectID       string
	ContentType     string
	Title           string
	Slug            string
	RawContent      string
	EnhancedContent string
	MetaDescription string
	Tags            []string
	Status          string
}

// CreateContent はコンテンツを作成する。
func (q *Queries) CreateContent(ctx context.Context, p CreateContentParams) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("タグのシリアライズに失敗: %w", err)
	}
	if p.Tags == nil {
		tags = []byte("[]")
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO content (id, project_id, content_type, title, slug, raw_content, enhanced_content, meta_description, tags, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ProjectID, p.ContentType, p.Title, p.Slug, p.RawContent, p.EnhancedContent, p.MetaDescription, string(tags), p.Status)
	if err != nil {
		return fmt.Errorf("コンテンツの作成に失敗: %w", err)
	}
	return nil
}

// contentColumns はコンテンツ取得クエリのSELECT句。
const contentColumns = "id, project_id, content_type, title, slug, raw_content, enhanced_content, meta_description, tags, status, created_at"

// scanContent は1行をContentにスキャンする。
func scanContent(row interface{ Scan(...any) error }) (*Content, error) {
	var (
		c    Content
		tags string
	)
	err := row.Scan(&c.ID, &c.ProjectID, &c.ContentType, &c.Title, &c.Slug, &c.RawContent,
		&c.EnhancedContent, &c.MetaDescription, &tags, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, fmt.Errorf("タグのデシリアライズに失敗: %w", err)
	}
	return &c, nil
}

// GetContent はIDでコンテンツを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetContent(ctx context.Context, id string) (*Content, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+contentColumns+" FROM content WHERE id = ?", id)
	return scanContent(row)
}

// GetContentBySlug はスラッグでコンテンツを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetContentBySlug(ctx context.Context, slug string) (*Content, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+contentColumns+" FROM content WHERE slug = ?", slug)
	return scanContent(row)
}

// ContentFilters はコンテンツ一覧の絞り込み条件。空文字列のフィールドは無視される。
type ContentFilters struct {
	ProjectID   string
	ContentType string
	Status      string
}

// where はフィルタからWHERE句と引数を構築する。
func (f ContentFilters) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.ContentType != "" {
		conds = append(conds, "content_type = ?")
		args = append(args, f.ContentType)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ContentSummary はコンテンツ一覧用の要約レコード。
// 本文そのものではなく本文の長さを保持する。
type ContentSummary struct {
	ID                    string
	ProjectID             string
	ContentType           string
	Title                 string
	Slug                  string
	MetaDescription       string
	Tags                  []string
	Status                string
	CreatedAt             string
	RawContentLength      int
	EnhancedContentLength int
}

// ListContent はコンテンツ一覧を要約形式で取得する。
func (q *Queries) ListContent(ctx context.Context, filters ContentFilters, limit, offset int) ([]*ContentSummary, error) {
	where, args := filters.where()
	args = append(args, limit, offset)

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, project_id, content_type, title, slug, meta_description, tags, status, created_at,
		       LENGTH(raw_content), LENGTH(enhanced_content)
		FROM content`+where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []*ContentSummary
	for rows.Next() {
		var (
			s    ContentSummary
			tags string
		)
		err := rows.Scan(&s.ID, &s.ProjectID, &s.ContentType, &s.Title, &s.Slug, &s.MetaDescription,
			&tags, &s.Status, &s.CreatedAt, &s.RawContentLength, &s.EnhancedContentLength)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
			return nil, fmt.Errorf("タグのデシリアライズに失敗: %w", err)
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// CountContent はフィルタに一致するコンテンツの総数を返す。
func (q *Queries) CountContent(ctx context.Context, filters ContentFilters) (int, error) {
	where, args := filters.where()
	var count int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM content"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("コンテンツ数の取得に失敗: %w", err)
	}
	return count, nil
}

// UpdateContentParams はコンテンツ更新のパラメータ。
// nilのフィールドは更新されない。
type UpdateContentParams struct {
	ProjectID       *string
	Title           *string
	Slug            *string
	RawContent      *string
	EnhancedContent *string
	MetaDescription *string
	Tags            []string
	Status          *string
}

// UpdateContent はコンテンツを部分更新する。
func (q *Queries) UpdateContent(ctx context.Context, id string, p UpdateContentParams) error {
	var (
		sets []string
		args []any
	)
	appendSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.ProjectID != nil {
		appendSet("project_id", *p.ProjectID)
	}
	if p.Title != nil {
		appendSet("title", *p.Title)
	}
	if p.Slug != nil {
		appendSet("slug", *p.Slug)
	}
	if p.RawContent != nil {
		appendSet("raw_content", *p.RawContent)
	}
	if p.EnhancedContent != nil {
		appendSet("enhanced_content", *p.EnhancedContent)
	}
	if p.MetaDescription != nil {
		appendSet("meta_description", *p.MetaDescription)
	}
	if p.Tags != nil {
		tags, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("タグのシリアライズに失敗: %w", err)
		}
		appendSet("tags", string(tags))
	}
	if p.Status != nil {
		appendSet("status", *p.Status)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	_, err := q.db.ExecContext(ctx, "UPDATE content SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("コンテンツの更新に失敗: %w", err)
	}
	return nil
}

// DeleteContent はコンテンツを削除する。
func (q *Queries) DeleteContent(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM content WHERE id = ?", id); err != nil {
		return fmt.Errorf("コンテンツの削除に失敗: %w", err)
	}
	return nil
}
