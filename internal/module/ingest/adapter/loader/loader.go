package loader

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/doc-chat/internal/module/ingest/domain"
)

// supportedExtensions はこのLoaderが解釈できる拡張子。
// PDF/DOCX等の抽出は外部コラボレータの責務で、ここではプレーンテキスト系のみを扱います。
var supportedExtensions = map[string]struct{}{
	".txt": {},
	".md":  {},
}

// UploadedFile はアップロードされた1ファイルを表します
type UploadedFile struct {
	Name   string
	Reader io.Reader
}

// Loader はアップロードファイルをセッションディレクトリに保存し、
// 正規化済みDocument列に変換します
type Loader struct {
	baseDir string
	log     *slog.Logger
}

// NewLoader は新しいLoaderを作成します
func NewLoader(baseDir string, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{baseDir: baseDir, log: log}
}

// SaveAndLoad はファイルを保存し、(text, sourceID)のDocument列を返します。
// 未対応の拡張子は警告ログを出してスキップします。
func (l *Loader) SaveAndLoad(sessionID string, files []UploadedFile) ([]domain.Document, error) {
	dir := filepath.Join(l.baseDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	var docs []domain.Document
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if _, ok := supportedExtensions[ext]; !ok {
			l.log.Warn("unsupported file skipped", "filename", f.Name)
			continue
		}

		// 保存名を衝突しない形式に正規化する
		name := uuid.NewString()[:8] + ext
		path := filepath.Join(dir, name)

		data, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read uploaded file %s: %w", f.Name, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to save uploaded file %s: %w", f.Name, err)
		}

		docs = append(docs, domain.Document{
			SourceID: name,
			Text:     string(data),
		})

		l.log.Info("file saved for ingestion", "uploaded", f.Name, "savedAs", path)
	}

	return docs, nil
}
