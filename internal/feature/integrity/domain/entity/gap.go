package entity

import "time"

// GapStatus はストアの最新バーと上流の最新時刻との差の分類です。
type GapStatus string

const (
	GapOK     GapStatus = "OK"
	GapGap    GapStatus = "GAP"
	GapNoData GapStatus = "NO_DATA"
)

// NeedsBackfill は補完対象かどうかを返します。GAP と NO_DATA は同じ扱いです。
func (s GapStatus) NeedsBackfill() bool {
	return s == GapGap || s == GapNoData
}

// Thresholds は分類の境界です。
type Thresholds struct {
	Gap    time.Duration // これ以上の差は GAP
	NoData time.Duration // これ以上の差は NO_DATA
}

// DefaultThresholds は 5分 / 60分 の境界です。
var DefaultThresholds = Thresholds{Gap: 5 * time.Minute, NoData: 60 * time.Minute}

// ClassifyGap は storeLatest（nil はデータなし）と oracleLatest を比較して分類します。
// 純粋関数であり、同じ入力には常に同じ結果を返します。ストアが上流より新しい場合は OK です。
func ClassifyGap(storeLatest *time.Time, oracleLatest time.Time, th Thresholds) GapStatus {
	if storeLatest == nil {
		return GapNoData
	}
	gap := oracleLatest.Sub(*storeLatest)
	switch {
	case gap >= th.NoData:
		return GapNoData
	case gap >= th.Gap:
		return GapGap
	default:
		return GapOK
	}
}
