package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-chat/internal/module/ingest/adapter/loader"
	sessiondomain "github.com/jinford/doc-chat/internal/module/session/domain"
)

// IngestAction はローカルファイル群をセッションのインデックスに取り込むコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sessionID := cmd.String("session")
	paths := cmd.Args().Slice()

	if len(paths) == 0 {
		return fmt.Errorf("取り込むファイルを1つ以上指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	newSession := sessionID == ""
	if newSession {
		sessionID = sessiondomain.NewID()
	}

	files := make([]loader.UploadedFile, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("ファイルを開けません %s: %w", path, err)
		}
		defer f.Close()
		files = append(files, loader.UploadedFile{Name: filepath.Base(path), Reader: f})
	}

	docs, err := appCtx.Container.Loader.SaveAndLoad(sessionID, files)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	added, err := appCtx.Container.IndexService.AddDocuments(ctx, sessionID, docs)
	if err != nil {
		return fmt.Errorf("インデックス構築に失敗: %w", err)
	}

	if newSession {
		if err := appCtx.Container.Sessions.Create(ctx, sessionID); err != nil {
			return fmt.Errorf("セッション履歴の初期化に失敗: %w", err)
		}
	}

	fmt.Printf("セッションID: %s\n", sessionID)
	fmt.Printf("取り込みファイル数: %d\n", len(docs))
	fmt.Printf("追加チャンク数: %d\n", added)

	return nil
}
