// Package entity defines the domain models for the candles feature.
package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bar は1銘柄・1分間のOHLCVデータ（ローソク足）を表します。
// (Symbol, Time) の組は一意で、1銘柄につき1分あたり最大1本です。
// 集計結果（AggregatedBar）も同じ形で表現します。
type Bar struct {
	Symbol string          `json:"symbol"` // Ticker symbol (e.g., "AAPL")
	Time   time.Time       `json:"time"`   // Start of the bar period, exchange-local wall clock stored as UTC
	Open   decimal.Decimal `json:"open"`   // 始値
	High   decimal.Decimal `json:"high"`   // 高値
	Low    decimal.Decimal `json:"low"`    // 安値
	Close  decimal.Decimal `json:"close"`  // 終値
	Volume int64           `json:"volume"` // 出来高
}

// NormalizeSymbol は銘柄コードの前後の空白を除去し大文字に揃えます。
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeTime はタイムスタンプを分単位に切り捨て、タイムゾーンを持たない壁時計時刻としてUTCで表現します。
func NormalizeTime(t time.Time) time.Time {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	return wall
}

// Key は (Symbol, Time) の一意キーを文字列で返します。
func (b Bar) Key() string {
	return fmt.Sprintf("%s@%s", b.Symbol, b.Time.Format(TimestampLayout))
}

// Violations はバーが違反している不変条件をすべて返します。違反がなければ空です。
func (b Bar) Violations() []Violation {
	var vs []Violation
	if b.Symbol == "" {
		vs = append(vs, Violation{Kind: KindEmptySymbol, Message: "symbol is empty"})
	}

	var nonPositive []string
	for _, p := range []struct {
		name  string
		value decimal.Decimal
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
		if !p.value.IsPositive() {
			nonPositive = append(nonPositive, fmt.Sprintf("%s=%s", p.name, p.value))
		}
	}
	if len(nonPositive) > 0 {
		vs = append(vs, Violation{
			Kind:    KindNonPositivePrice,
			Message: "non-positive price: " + strings.Join(nonPositive, ", "),
		})
	}

	if b.High.LessThan(b.Low) {
		vs = append(vs, Violation{
			Kind:    KindHighBelowLow,
			Message: fmt.Sprintf("high %s is below low %s", b.High, b.Low),
		})
	}
	if b.High.LessThan(b.Open) || b.High.LessThan(b.Close) {
		vs = append(vs, Violation{
			Kind:    KindHighBelowOpenClose,
			Message: fmt.Sprintf("high %s is below open %s or close %s", b.High, b.Open, b.Close),
		})
	}
	if b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) {
		vs = append(vs, Violation{
			Kind:    KindLowAboveOpenClose,
			Message: fmt.Sprintf("low %s is above open %s or close %s", b.Low, b.Open, b.Close),
		})
	}
	if b.Volume < 0 {
		vs = append(vs, Violation{
			Kind:    KindNegativeVolume,
			Message: fmt.Sprintf("negative volume %d", b.Volume),
		})
	}
	return vs
}

// Validate は構造的な不変条件を検証し、最初に違反した条件を *ValidationError として返します。
func (b Bar) Validate() error {
	vs := b.Violations()
	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{
		Symbol:  b.Symbol,
		Time:    b.Time,
		Kind:    vs[0].Kind,
		Message: vs[0].Message,
	}
}
