// Package indicator はローソク足系列からテクニカル指標を計算します。
// すべて入力と同じ長さ・同じインデックスで整列した系列を返す純粋関数です。
package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"candle_pipeline/internal/feature/candles/domain/entity"
)

const (
	// MAScale は移動平均の小数点以下桁数です。
	MAScale = 2
	// RSIScale はRSIの小数点以下桁数です。
	RSIScale = 2
)

var hundred = decimal.NewFromInt(100)

// Series は入力のバー系列とインデックスが一致する、null を含み得る指標値の系列です。
type Series []decimal.NullDecimal

// Values は null を除いた値だけを返します。
func (s Series) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(s))
	for _, v := range s {
		if v.Valid {
			out = append(out, v.Decimal)
		}
	}
	return out
}

// MovingAverage は終値の単純移動平均を返します。
// i < period-1 は履歴不足のため null、それ以降は [i-period+1, i] の終値の平均を
// MAScale 桁に四捨五入（half-up）した値です。
func MovingAverage(bars []entity.Bar, period int) (Series, error) {
	if period < 1 {
		return nil, fmt.Errorf("moving average: invalid period %d", period)
	}
	out := make(Series, len(bars))
	p := decimal.NewFromInt(int64(period))

	sum := decimal.Zero
	for i, b := range bars {
		sum = sum.Add(b.Close)
		if i >= period {
			sum = sum.Sub(bars[i-period].Close)
		}
		if i >= period-1 {
			out[i] = decimal.NewNullDecimal(sum.Div(p).Round(MAScale))
		}
	}
	return out, nil
}

// RSI は単純平均ベースのRSIを返します（Wilder の指数平滑は行いません）。
//
// period+1 本未満の入力では空の系列を返すため、呼び出し側は長さを確認してください。
// 返す系列は入力のバーと整列しており、index 0 は前日比が存在しないため null、
// 最初の値は index period に入ります。平均損失が0の場合は100です。
func RSI(bars []entity.Bar, period int) (Series, error) {
	if period < 1 {
		return nil, fmt.Errorf("rsi: invalid period %d", period)
	}
	if len(bars) < period+1 {
		return Series{}, nil
	}

	n := len(bars)
	gains := make([]decimal.Decimal, n)
	losses := make([]decimal.Decimal, n)
	for i := 1; i < n; i++ {
		delta := bars[i].Close.Sub(bars[i-1].Close)
		if delta.IsPositive() {
			gains[i] = delta
		} else {
			losses[i] = delta.Neg()
		}
	}

	out := make(Series, n)
	gainSum, lossSum := decimal.Zero, decimal.Zero
	for i := 1; i < n; i++ {
		gainSum = gainSum.Add(gains[i])
		lossSum = lossSum.Add(losses[i])
		if i > period {
			gainSum = gainSum.Sub(gains[i-period])
			lossSum = lossSum.Sub(losses[i-period])
		}
		if i < period {
			continue
		}

		if lossSum.IsZero() {
			out[i] = decimal.NewNullDecimal(hundred.Round(RSIScale))
			continue
		}
		// avgGain / avgLoss（期間で割る処理は約分される）
		rs := gainSum.Div(lossSum)
		rsi := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
		out[i] = decimal.NewNullDecimal(rsi.Round(RSIScale))
	}
	return out, nil
}
