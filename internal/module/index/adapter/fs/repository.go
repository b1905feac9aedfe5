package fs

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jinford/doc-chat/internal/module/index/domain"
	ingestdomain "github.com/jinford/doc-chat/internal/module/ingest/domain"
)

const (
	vectorsFile = "vectors.bin"
	payloadFile = "payload.json"

	// vectorsFileのマジックナンバーとフォーマットバージョン
	vectorsMagic   = "DCIX"
	vectorsVersion = uint32(1)
)

// Repository はインデックスをセッション別ディレクトリ配下のファイル対として永続化します。
// ベクトルはバイナリ形式(vectors.bin)、チャンク本体とフィンガープリントは
// JSON形式(payload.json)で保存し、ロード時に両者の件数整合を検証します。
type Repository struct {
	baseDir string
}

// NewRepository は新しいファイルシステムリポジトリを作成します
func NewRepository(baseDir string) *Repository {
	return &Repository{baseDir: baseDir}
}

var _ domain.Repository = (*Repository)(nil)

// payload はpayload.jsonのディスク上の表現
type payload struct {
	SessionID string         `json:"sessionID"`
	Dimension int            `json:"dimension"`
	Entries   []payloadEntry `json:"entries"`
}

type payloadEntry struct {
	Fingerprint string             `json:"fingerprint"`
	Chunk       ingestdomain.Chunk `json:"chunk"`
}

func (r *Repository) sessionDir(sessionID string) string {
	return filepath.Join(r.baseDir, sessionID)
}

// Exists はセッションのインデックスファイル対が存在するかを返します
func (r *Repository) Exists(_ context.Context, sessionID string) (bool, error) {
	dir := r.sessionDir(sessionID)

	for _, name := range []string{vectorsFile, payloadFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, fmt.Errorf("failed to stat index file: %w", err)
		}
	}
	return true, nil
}

// Save はインデックスをディスクに書き出します。
// 一時ファイルに書いてからリネームし、戻った時点で新規プロセスのLoadから
// 更新後の内容が見えることを保証します。
func (r *Repository) Save(_ context.Context, idx *domain.Index) error {
	dir := r.sessionDir(idx.SessionID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	entries := idx.Entries()

	vecData, err := encodeVectors(idx.Dimension(), entries)
	if err != nil {
		return fmt.Errorf("failed to encode vectors: %w", err)
	}

	p := payload{
		SessionID: idx.SessionID(),
		Dimension: idx.Dimension(),
		Entries:   make([]payloadEntry, len(entries)),
	}
	for i, e := range entries {
		p.Entries[i] = payloadEntry{Fingerprint: e.Fingerprint, Chunk: e.Chunk}
	}
	payloadData, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(dir, vectorsFile), vecData); err != nil {
		return fmt.Errorf("failed to write vectors: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, payloadFile), payloadData); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	return nil
}

// Load はディスクからインデックスを復元します
func (r *Repository) Load(ctx context.Context, sessionID string) (*domain.Index, error) {
	exists, err := r.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		// ファイル対が片方だけ存在する場合は破損として扱う
		if partial, perr := r.partiallyExists(sessionID); perr == nil && partial {
			return nil, fmt.Errorf("%w: incomplete index files for session %s",
				domain.ErrIndexCorrupt, sessionID)
		}
		return nil, fmt.Errorf("%w: session %s", domain.ErrIndexNotFound, sessionID)
	}

	dir := r.sessionDir(sessionID)

	vecData, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read vectors: %w", err)
	}
	dimension, vectors, err := decodeVectors(vecData)
	if err != nil {
		return nil, err
	}

	payloadData, err := os.ReadFile(filepath.Join(dir, payloadFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	var p payload
	if err := json.Unmarshal(payloadData, &p); err != nil {
		return nil, fmt.Errorf("%w: undecodable payload: %v", domain.ErrIndexCorrupt, err)
	}

	// ベクトル数とチャンク数の不一致は破損
	if len(vectors) != len(p.Entries) {
		return nil, fmt.Errorf("%w: %d vectors but %d payload entries",
			domain.ErrIndexCorrupt, len(vectors), len(p.Entries))
	}
	if p.Dimension != dimension {
		return nil, fmt.Errorf("%w: payload dimension %d does not match vectors dimension %d",
			domain.ErrIndexCorrupt, p.Dimension, dimension)
	}

	entries := make([]domain.Entry, len(p.Entries))
	for i, pe := range p.Entries {
		entries[i] = domain.Entry{
			Fingerprint: pe.Fingerprint,
			Vector:      vectors[i],
			Chunk:       pe.Chunk,
		}
	}

	return domain.Restore(sessionID, entries)
}

// partiallyExists はファイル対の片方だけが存在するかを返します
func (r *Repository) partiallyExists(sessionID string) (bool, error) {
	dir := r.sessionDir(sessionID)

	found := 0
	for _, name := range []string{vectorsFile, payloadFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			found++
		}
	}
	return found == 1, nil
}

// encodeVectors はベクトル列をバイナリ形式に変換します。
// レイアウト: magic(4) version(4) dimension(4) count(4) データ(count*dimension*4, LE)
func encodeVectors(dimension int, entries []domain.Entry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(vectorsMagic)
	if err := binary.Write(&buf, binary.LittleEndian, vectorsVersion); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(dimension)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(entries))); err != nil {
		return nil, err
	}

	for _, e := range entries {
		if len(e.Vector) != dimension {
			return nil, fmt.Errorf("entry %s has dimension %d, want %d",
				e.Fingerprint, len(e.Vector), dimension)
		}
		if err := binary.Write(&buf, binary.LittleEndian, e.Vector); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// decodeVectors はバイナリ形式からベクトル列を復元します
func decodeVectors(data []byte) (int, [][]float32, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != vectorsMagic {
		return 0, nil, fmt.Errorf("%w: bad vectors file header", domain.ErrIndexCorrupt)
	}

	var version, dimension, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, nil, fmt.Errorf("%w: truncated vectors file", domain.ErrIndexCorrupt)
	}
	if version != vectorsVersion {
		return 0, nil, fmt.Errorf("%w: unsupported vectors version %d", domain.ErrIndexCorrupt, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &dimension); err != nil {
		return 0, nil, fmt.Errorf("%w: truncated vectors file", domain.ErrIndexCorrupt)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, nil, fmt.Errorf("%w: truncated vectors file", domain.ErrIndexCorrupt)
	}

	// ヘッダ由来のサイズは破損している可能性があるため、
	// 確保前に残りバイト数と突き合わせて検証する
	want := uint64(count) * uint64(dimension) * 4
	if uint64(r.Len()) != want {
		return 0, nil, fmt.Errorf("%w: vector data is %d bytes, header implies %d",
			domain.ErrIndexCorrupt, r.Len(), want)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		vec := make([]float32, dimension)
		if err := binary.Read(r, binary.LittleEndian, &vec); err != nil {
			return 0, nil, fmt.Errorf("%w: truncated vector data at entry %d", domain.ErrIndexCorrupt, i)
		}
		vectors[i] = vec
	}

	return int(dimension), vectors, nil
}

// writeFileAtomic は一時ファイル経由でファイルを書き込みます
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
