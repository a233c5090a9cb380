// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリとCORS設定を含む。認証・認可とレート制限は
// ドメイン固有のロジックを持つためinternal/gateが担当する。
package middleware
