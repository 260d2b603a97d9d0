// Package usecase はローソク足データ操作のビジネスロジックを実装します。
package usecase

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"candle_pipeline/internal/feature/candles/domain/aggregator"
	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/candles/domain/indicator"
)

const (
	// DefaultTimeframe はローソク足クエリのデフォルト時間足です。
	DefaultTimeframe = entity.Minute5
	// DefaultOutputSize はデフォルトのローソク足返却件数です。
	DefaultOutputSize = 200
	// MaxOutputSize はローソク足の最大返却件数です。
	MaxOutputSize = 5000
	// DefaultRSIPeriod はRSIのデフォルト期間です。
	DefaultRSIPeriod = 14
	// MaxIndicatorPeriod は移動平均・RSIの期間の上限です。
	MaxIndicatorPeriod = MaxOutputSize
)

// DefaultMAPeriods は移動平均のデフォルト期間です。
var DefaultMAPeriods = []int{5, 20}

// CandleQuery はローソク足取得の条件です。
// From/To がゼロ値の場合は最新のバーから Limit 本分をさかのぼります。
type CandleQuery struct {
	Symbol    string
	Timeframe entity.Timeframe
	From      time.Time
	To        time.Time
	Limit     int
}

// IndicatorResult は集計済みのバーと、それに整列した指標系列です。
type IndicatorResult struct {
	Bars []entity.Bar
	MA   map[int]indicator.Series
	RSI  indicator.Series
}

// candlesUsecase はローソク足データ参照のユースケースを定義します。
type candlesUsecase struct {
	candle CandleRepository
}

// NewCandlesUsecase はcandlesUsecaseの新しいインスタンスを生成します。
func NewCandlesUsecase(candle CandleRepository) *candlesUsecase {
	return &candlesUsecase{candle: candle}
}

// GetCandles は指定された銘柄の1分足を時間足に集計して返します（昇順、最新の Limit 本）。
func (cu *candlesUsecase) GetCandles(ctx context.Context, q CandleQuery) ([]entity.Bar, error) {
	q, ok, err := cu.normalize(ctx, q, 0)
	if err != nil || !ok {
		return []entity.Bar{}, err
	}
	return cu.aggregate(ctx, q)
}

// GetLatest は銘柄の最新の1分足を返します。
func (cu *candlesUsecase) GetLatest(ctx context.Context, symbol string) (entity.Bar, bool, error) {
	return cu.candle.Latest(ctx, entity.NormalizeSymbol(symbol))
}

// GetIndicators は集計済みのバーに対して移動平均とRSIを計算します。
// 先頭の指標値が null にならないよう、From の指定有無にかかわらず最大期間分だけ
// 余分に履歴を読み込んでから切り詰めます。
func (cu *candlesUsecase) GetIndicators(ctx context.Context, q CandleQuery, maPeriods []int, rsiPeriod int) (IndicatorResult, error) {
	if len(maPeriods) == 0 {
		maPeriods = DefaultMAPeriods
	}
	if rsiPeriod <= 0 {
		rsiPeriod = DefaultRSIPeriod
	}
	if rsiPeriod > MaxIndicatorPeriod {
		return IndicatorResult{}, fmt.Errorf("%w: rsi period %d exceeds %d", ErrInvalidQuery, rsiPeriod, MaxIndicatorPeriod)
	}
	warmup := rsiPeriod + 1
	for _, p := range maPeriods {
		if p <= 0 || p > MaxIndicatorPeriod {
			return IndicatorResult{}, fmt.Errorf("%w: moving average period %d", ErrInvalidQuery, p)
		}
		warmup = max(warmup, p)
	}

	explicitFrom := !q.From.IsZero()
	q, ok, err := cu.normalize(ctx, q, warmup)
	if err != nil {
		return IndicatorResult{}, err
	}
	res := IndicatorResult{Bars: []entity.Bar{}, MA: map[int]indicator.Series{}, RSI: indicator.Series{}}
	if !ok {
		return res, nil
	}

	// 返却するのは start 以降のバー
	var start time.Time
	if explicitFrom {
		start = aggregator.BucketKey(q.From, q.Timeframe)
		span := time.Duration(q.Timeframe.Minutes()*warmup) * time.Minute
		q.From = aggregator.BucketKey(start.Add(-span), q.Timeframe)
	}

	limit := q.Limit
	q.Limit += warmup
	bars, err := cu.aggregate(ctx, q)
	if err != nil {
		return IndicatorResult{}, err
	}

	lead := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(start) })
	skip := max(len(bars)-limit, lead)
	res.Bars = bars[skip:]
	for _, p := range maPeriods {
		ma, err := indicator.MovingAverage(bars, p)
		if err != nil {
			return IndicatorResult{}, err
		}
		res.MA[p] = ma[skip:]
	}
	rsi, err := indicator.RSI(bars, rsiPeriod)
	if err != nil {
		return IndicatorResult{}, err
	}
	if len(rsi) > 0 {
		res.RSI = rsi[skip:]
	}
	return res, nil
}

// normalize はデフォルト値を補い、読み込む範囲 [From, To) を確定します。
// データが1本もない銘柄では ok=false を返します。
func (cu *candlesUsecase) normalize(ctx context.Context, q CandleQuery, extra int) (CandleQuery, bool, error) {
	q.Symbol = entity.NormalizeSymbol(q.Symbol)
	if q.Symbol == "" {
		return q, false, fmt.Errorf("%w: symbol is required", ErrInvalidQuery)
	}
	if q.Timeframe == 0 {
		q.Timeframe = DefaultTimeframe
	}
	if !q.Timeframe.Valid() {
		return q, false, fmt.Errorf("%w: unsupported timeframe %d", ErrInvalidQuery, int(q.Timeframe))
	}
	if q.Limit <= 0 || q.Limit > MaxOutputSize {
		q.Limit = DefaultOutputSize
	}

	if q.To.IsZero() {
		latest, found, err := cu.candle.Latest(ctx, q.Symbol)
		if err != nil {
			return q, false, err
		}
		if !found {
			return q, false, nil
		}
		q.To = latest.Time.Add(time.Minute)
	}
	if q.From.IsZero() {
		span := time.Duration(q.Timeframe.Minutes()*(q.Limit+extra)) * time.Minute
		q.From = aggregator.BucketKey(q.To.Add(-span), q.Timeframe)
	}
	if !q.From.Before(q.To) {
		return q, false, fmt.Errorf("%w: from must be before to", ErrInvalidQuery)
	}
	return q, true, nil
}

func (cu *candlesUsecase) aggregate(ctx context.Context, q CandleQuery) ([]entity.Bar, error) {
	bars, err := cu.candle.Range(ctx, q.Symbol, q.From, q.To)
	if err != nil {
		return nil, err
	}

	out := bars
	if q.Timeframe != entity.Minute1 {
		out, err = aggregator.Aggregate(bars, q.Timeframe)
		if err != nil {
			return nil, err
		}
	}
	if len(out) > q.Limit {
		out = slices.Clone(out[len(out)-q.Limit:])
	}
	if out == nil {
		out = []entity.Bar{}
	}
	return out, nil
}
