package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"candle_pipeline/internal/feature/candles/domain/entity"
	integrityusecase "candle_pipeline/internal/feature/integrity/usecase"
	"candle_pipeline/internal/platform/externalapi/twelvedata/dto"
	"candle_pipeline/internal/shared/ratelimiter"
)

const (
	interval1Min  = "1min"
	maxOutputSize = 5000
	dateLayout    = "2006-01-02"
)

// Market はTwelve Data外部APIを照合用のプロデューサー（最新時刻の問い合わせと補完）として使う実装です。
type Market struct {
	cfg     Config
	client  *http.Client
	limiter ratelimiter.RateLimiterInterface
}

// MarketがMarketProducerを実装していることをコンパイル時に検証します。
var _ integrityusecase.MarketProducer = (*Market)(nil)

// NewMarket は指定された設定とHTTPクライアントでMarketの新しいインスタンスを生成します。
// limiter が nil の場合は cfg.RequestsPerMinute から生成します。
func NewMarket(cfg Config, client *http.Client, limiter ratelimiter.RateLimiterInterface) *Market {
	if limiter == nil {
		limiter = ratelimiter.NewRateLimiter("twelvedata", cfg.RequestsPerMinute, time.Minute)
	}
	return &Market{cfg: cfg, client: client, limiter: limiter}
}

// LatestTimestamp は1分足の最新1本を取得し、その時刻を返します。データがなければ nil です。
func (m *Market) LatestTimestamp(ctx context.Context, symbol string) (*time.Time, error) {
	q := url.Values{}
	q.Set("outputsize", "1")

	body, err := m.timeSeries(ctx, symbol, q)
	if err != nil {
		return nil, err
	}
	if len(body.Values) == 0 {
		return nil, nil
	}
	ts, err := parseDatetime(body.Values[0].Datetime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integrityusecase.ErrExternalFailure, err)
	}
	return &ts, nil
}

// Backfill は [start, end] の1分足を時刻の昇順で取得します。
// 値は文字列のまま RawBar に詰め、検証は取り込み側に任せます。
func (m *Market) Backfill(ctx context.Context, symbol string, start, end time.Time) ([]entity.RawBar, error) {
	q := url.Values{}
	q.Set("start_date", start.UTC().Format(entity.TimestampLayout))
	q.Set("end_date", end.UTC().Format(entity.TimestampLayout))
	q.Set("order", "ASC")
	q.Set("outputsize", strconv.Itoa(maxOutputSize))

	body, err := m.timeSeries(ctx, symbol, q)
	if err != nil {
		return nil, err
	}

	out := make([]entity.RawBar, 0, len(body.Values))
	for _, v := range body.Values {
		out = append(out, toRawBar(v))
	}
	return out, nil
}

const timezoneExchange = "Exchange"

// timeSeries は time_series エンドポイントを呼び出します。
// 「データなし」の応答は空の Values として扱います。
func (m *Market) timeSeries(ctx context.Context, symbol string, q url.Values) (dto.TimeSeriesResponse, error) {
	var body dto.TimeSeriesResponse

	if err := m.limiter.Wait(ctx); err != nil {
		return body, classify(ctx, err)
	}

	// クエリパラメータを追加
	q.Set("symbol", symbol)
	q.Set("interval", interval1Min)
	// ストアのバーは取引所ローカル時刻のため、取引所のタイムゾーンで受け取る
	q.Set("timezone", timezoneExchange)
	q.Set("apikey", m.cfg.APIKey)

	u := fmt.Sprintf("%s/time_series?%s", strings.TrimRight(m.cfg.BaseURL, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return body, fmt.Errorf("%w: %v", integrityusecase.ErrExternalFailure, err)
	}

	res, err := m.client.Do(req)
	if err != nil {
		return body, classify(ctx, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return body, fmt.Errorf("%w: twelvedata http %d", integrityusecase.ErrExternalFailure, res.StatusCode)
	}

	// JSONレスポンスをDTOにデコード
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return body, classify(ctx, fmt.Errorf("decode: %w", err))
	}
	if body.Status == "error" {
		if isNoData(body) {
			body.Values = nil
			return body, nil
		}
		return body, fmt.Errorf("%w: twelvedata %d: %s", integrityusecase.ErrExternalFailure, body.Code, body.Message)
	}
	return body, nil
}

func classify(ctx context.Context, err error) error {
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", integrityusecase.ErrExternalTimeout, err)
	case errors.As(err, &urlErr) && urlErr.Timeout():
		return fmt.Errorf("%w: %v", integrityusecase.ErrExternalTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", integrityusecase.ErrExternalFailure, err)
	}
}

func isNoData(body dto.TimeSeriesResponse) bool {
	return body.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(body.Message), "no data")
}

func toRawBar(v dto.TimeSeriesValue) entity.RawBar {
	r := entity.RawBar{
		Open:  strPtr(v.Open),
		High:  strPtr(v.High),
		Low:   strPtr(v.Low),
		Close: strPtr(v.Close),
	}
	if ts, err := parseDatetime(v.Datetime); err == nil {
		s := ts.Format(entity.TimestampLayout)
		r.Timestamp = &s
	} else {
		r.Timestamp = strPtr(v.Datetime)
	}
	// 出来高のない銘柄（指数など）は0とする
	vol := v.Volume
	if vol == "" {
		vol = "0"
	}
	r.Volume = &vol
	return r
}

// parseDatetime は "2006-01-02 15:04:05" と日付のみの形式を受け付けます。
func parseDatetime(s string) (time.Time, error) {
	tm, err := time.Parse(entity.TimestampLayout, s)
	if err == nil {
		return tm, nil
	}
	tm, err = time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return tm, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
