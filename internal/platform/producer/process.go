package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"candle_pipeline/internal/feature/candles/domain/entity"
	integrityusecase "candle_pipeline/internal/feature/integrity/usecase"
)

const (
	statusSuccess   = "success"
	statusError     = "error"
	modeCheckLatest = "check_latest"

	defaultWaitDelay = 2 * time.Second
)

// Config は外部プロデューサーコマンドの設定です。
type Config struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // 追加の環境変数（KEY=VALUE）
}

// LoadConfig は PRODUCER_COMMAND / PRODUCER_ARGS / PRODUCER_DIR から設定を読み込みます。
// PRODUCER_ARGS は空白区切りです。
func LoadConfig() Config {
	cmd := os.Getenv("PRODUCER_COMMAND")
	if cmd == "" {
		cmd = "python3"
	}
	args := strings.Fields(os.Getenv("PRODUCER_ARGS"))
	if len(args) == 0 {
		args = []string{"producer.py"}
	}
	return Config{
		Command: cmd,
		Args:    args,
		Dir:     os.Getenv("PRODUCER_DIR"),
	}
}

type backfillRequest struct {
	Symbol    string `json:"symbol"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type backfillResponse struct {
	Status string          `json:"status"`
	Data   []entity.RawBar `json:"data"`
	Error  string          `json:"error"`
}

type latestRequest struct {
	Symbol string `json:"symbol"`
	Mode   string `json:"mode"`
}

type latestResponse struct {
	LatestTimestamp *string `json:"latest_timestamp"`
	Error           string  `json:"error"`
}

// Process は外部コマンドを1リクエストごとに起動し、標準入力に JSON リクエストを渡して
// 標準出力の JSON 応答を読み取ります。
type Process struct {
	cfg Config
}

var _ integrityusecase.MarketProducer = (*Process)(nil)

// NewProcess は新しい Process を作成します。
func NewProcess(cfg Config) *Process {
	return &Process{cfg: cfg}
}

// LatestTimestamp は check_latest モードで上流の最新時刻を問い合わせます。
func (p *Process) LatestTimestamp(ctx context.Context, symbol string) (*time.Time, error) {
	var res latestResponse
	if err := p.call(ctx, latestRequest{Symbol: symbol, Mode: modeCheckLatest}, &res); err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("%w: %s", integrityusecase.ErrExternalFailure, res.Error)
	}
	if res.LatestTimestamp == nil || *res.LatestTimestamp == "" {
		return nil, nil
	}
	ts, err := parseTimestamp(*res.LatestTimestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: latest_timestamp %q: %v", integrityusecase.ErrExternalFailure, *res.LatestTimestamp, err)
	}
	return &ts, nil
}

// Backfill は [start, end] のバーを要求します。
func (p *Process) Backfill(ctx context.Context, symbol string, start, end time.Time) ([]entity.RawBar, error) {
	req := backfillRequest{
		Symbol:    symbol,
		StartTime: start.UTC().Format(entity.TimestampLayout),
		EndTime:   end.UTC().Format(entity.TimestampLayout),
	}
	var res backfillResponse
	if err := p.call(ctx, req, &res); err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("%w: %s", integrityusecase.ErrExternalFailure, res.Error)
	}
	if res.Status != statusSuccess {
		return nil, fmt.Errorf("%w: unexpected status %q", integrityusecase.ErrExternalFailure, res.Status)
	}
	if res.Data == nil {
		return []entity.RawBar{}, nil
	}
	return res.Data, nil
}

func (p *Process) call(ctx context.Context, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), p.cfg.Env...)
	}
	cmd.WaitDelay = defaultWaitDelay
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", integrityusecase.ErrExternalTimeout, p.cfg.Command)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v: %s", integrityusecase.ErrExternalFailure, err, strings.TrimSpace(stderr.String()))
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", integrityusecase.ErrExternalFailure, err)
	}
	return nil
}

// parseTimestamp は固定書式を優先し、RFC3339 も受け付けます。
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(entity.TimestampLayout, s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
