// Package dto defines data transfer objects for the candles HTTP API.
package dto

import (
	"github.com/shopspring/decimal"

	"candle_pipeline/internal/shared/runguard"
)

// ErrorResponse はエラー時のレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// CandleResponse はロウソク足データのレスポンスDTOです。価格は文字列の10進数です。
type CandleResponse struct {
	Time   string          `json:"time"`   // "2006-01-02 15:04:05"
	Open   decimal.Decimal `json:"open"`   // 始値
	High   decimal.Decimal `json:"high"`   // 高値
	Low    decimal.Decimal `json:"low"`    // 安値
	Close  decimal.Decimal `json:"close"`  // 終値
	Volume int64           `json:"volume"` // 出来高
}

// CandlesResponse は GET /candles/:symbol のレスポンスです。
type CandlesResponse struct {
	Symbol    string           `json:"symbol"`
	Timeframe string           `json:"timeframe"`
	Candles   []CandleResponse `json:"candles"`
}

// IndicatorPoint は1本のバーと、そのバーに整列した指標値です。履歴不足の値は null です。
type IndicatorPoint struct {
	Time  string                         `json:"time"`
	Close decimal.Decimal                `json:"close"`
	MA    map[string]decimal.NullDecimal `json:"ma"`
	RSI   decimal.NullDecimal            `json:"rsi"`
}

// IndicatorsResponse は GET /indicators/:symbol のレスポンスです。
type IndicatorsResponse struct {
	Symbol    string           `json:"symbol"`
	Timeframe string           `json:"timeframe"`
	MAPeriods []int            `json:"ma_periods"`
	RSIPeriod int              `json:"rsi_period"`
	Points    []IndicatorPoint `json:"points"`
}

// ConflictResponse は実行中のジョブがあるために要求を拒否したときのレスポンスです。
type ConflictResponse struct {
	Error   string          `json:"error"`
	Current runguard.Status `json:"current"`
}
