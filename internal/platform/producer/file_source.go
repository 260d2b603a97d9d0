// Package producer は外部プロデューサーとの境界（出力ファイルと外部コマンド）を実装します。
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/candles/usecase"
)

// FileSource はプロデューサーが書き出す JSON ファイル（銘柄 → バー）を読み込みます。
// 前回読み込み以降にファイルが更新されていなければ空のバッチを返します。
type FileSource struct {
	path string

	mu      sync.Mutex
	lastMod time.Time
	lastLen int64
}

var _ usecase.BatchSource = (*FileSource)(nil)

// NewFileSource は path を読む FileSource を作成します。
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// NextBatch は新しいバッチを返します。ファイルが存在しない場合も空のバッチです。
// デコードに失敗した場合は更新済みとして記録しないため、次のサイクルで再試行されます。
func (s *FileSource) NextBatch(ctx context.Context) (map[string]entity.RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("producer file not found", "path", s.path)
		return map[string]entity.RawBar{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if info.ModTime().Equal(s.lastMod) && info.Size() == s.lastLen {
		return map[string]entity.RawBar{}, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	batch := map[string]entity.RawBar{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.path, err)
		}
	}

	s.lastMod = info.ModTime()
	s.lastLen = info.Size()
	return batch, nil
}
