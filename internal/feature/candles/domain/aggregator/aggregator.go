// Package aggregator は1分足をより粗い時間足へ集計します。
package aggregator

import (
	"fmt"
	"slices"
	"time"

	"candle_pipeline/internal/feature/candles/domain/entity"
)

// BucketKey はタイムスタンプを時間足の区切りに切り捨てたバケットキーを返します。
//
//   - 1日以上: その日の 00:00
//   - 60分以上1日未満: その日の ⌊hour / (tf/60)⌋ × (tf/60) 時 00分
//   - 60分未満: その時の ⌊minute / tf⌋ × tf 分
func BucketKey(t time.Time, tf entity.Timeframe) time.Time {
	m := tf.Minutes()
	switch {
	case m >= int(entity.Day1):
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case m >= int(entity.Hour1):
		step := m / 60
		return time.Date(t.Year(), t.Month(), t.Day(), (t.Hour()/step)*step, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), (t.Minute()/m)*m, 0, 0, t.Location())
	}
}

// Aggregate は1銘柄分の1分足を指定の時間足に集計し、バケットキーの昇順で返します。
// 集計後のバーの Time はバケットキーです。
//
// 空のバケットに対して出来高0の補完バーは生成しません。
func Aggregate(bars []entity.Bar, tf entity.Timeframe) ([]entity.Bar, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("aggregate: unsupported timeframe %d", int(tf))
	}
	if len(bars) == 0 {
		return []entity.Bar{}, nil
	}

	sorted := slices.Clone(bars)
	slices.SortStableFunc(sorted, func(a, b entity.Bar) int {
		return a.Time.Compare(b.Time)
	})

	out := make([]entity.Bar, 0, len(sorted)/tf.Minutes()+1)
	var (
		cur     entity.Bar
		curKey  time.Time
		started bool
	)
	for _, b := range sorted {
		key := BucketKey(b.Time, tf)
		if !started || !key.Equal(curKey) {
			if started {
				out = append(out, cur)
			}
			// バケットの最初のバーで初期化（始値は最初のバーの始値）
			cur = entity.Bar{
				Symbol: b.Symbol,
				Time:   key,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			}
			curKey = key
			started = true
			continue
		}
		if b.High.GreaterThan(cur.High) {
			cur.High = b.High
		}
		if b.Low.LessThan(cur.Low) {
			cur.Low = b.Low
		}
		// 終値は時系列で最後のバーの終値
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	out = append(out, cur)
	return out, nil
}
