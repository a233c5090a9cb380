// CodeBridge APIサーバーのエントリポイント。
// READMEからブログ記事への変換プラットフォームのバックエンドとして、
// 認証・認可・レート制限付きのプロジェクト/コンテンツAPIを提供する。
package main

import (
	"log"

	"github.com/sreejagatab/codebridge/internal/config"
	"github.com/sreejagatab/codebridge/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	s, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("CodeBridgeサーバーの初期化に失敗: %v", err)
	}

	log.Printf("CodeBridge APIを起動します: :%s", cfg.Port)
	if err := s.Run(); err != nil {
		log.Fatalf("CodeBridge APIの起動に失敗: %v", err)
	}
}
