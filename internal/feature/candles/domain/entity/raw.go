package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the fixed format producers use for bar timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// RawBar は外部プロデューサーが出力する未検証のOHLCVレコードです。
// 数値はJSON文字列・JSON数値のどちらでも受け付け、欠損・null は nil になります。
type RawBar struct {
	Timestamp *string `json:"timestamp"`
	Open      *string `json:"open"`
	High      *string `json:"high"`
	Low       *string `json:"low"`
	Close     *string `json:"close"`
	Volume    *string `json:"volume"`

	// malformed はレコードがJSONオブジェクトでなかった場合のデコードエラーです。
	malformed *ParseError
}

// UnmarshalJSON は各フィールドを文字列として取り出します。
// 書式の検証は ToBar で行います。オブジェクトでない値もエラーにせず、ToBar が ParseError を返します。
func (r *RawBar) UnmarshalJSON(data []byte) error {
	*r = RawBar{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		r.malformed = &ParseError{Field: "record", Value: truncate(string(bytes.TrimSpace(data)), 64), Err: err}
		return nil
	}
	r.Timestamp = rawString(fields["timestamp"])
	r.Open = rawString(fields["open"])
	r.High = rawString(fields["high"])
	r.Low = rawString(fields["low"])
	r.Close = rawString(fields["close"])
	r.Volume = rawString(fields["volume"])
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func rawString(m json.RawMessage) *string {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return nil
	}
	var s string
	if m[0] == '"' {
		if err := json.Unmarshal(m, &s); err != nil {
			s = string(m)
		}
	} else {
		s = string(m)
	}
	return &s
}

// NewRawBar は文字列フィールドからRawBarを組み立てます。
func NewRawBar(timestamp, open, high, low, close, volume string) RawBar {
	return RawBar{
		Timestamp: &timestamp,
		Open:      &open,
		High:      &high,
		Low:       &low,
		Close:     &close,
		Volume:    &volume,
	}
}

// ToBar はレコードを検証・パースしてBarに変換します。
// 失敗時は *ParseError を返します。不変条件の検証は行いません（ストアの責務）。
func (r RawBar) ToBar(symbol string) (Bar, error) {
	symbol = NormalizeSymbol(symbol)
	if r.malformed != nil {
		pe := *r.malformed
		pe.Symbol = symbol
		return Bar{}, &pe
	}

	// 必須フィールドの存在確認
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"timestamp", r.Timestamp},
		{"open", r.Open},
		{"high", r.High},
		{"low", r.Low},
		{"close", r.Close},
		{"volume", r.Volume},
	} {
		if f.value == nil || strings.TrimSpace(*f.value) == "" {
			return Bar{}, &ParseError{Symbol: symbol, Field: f.name}
		}
	}

	ts := strings.TrimSpace(*r.Timestamp)
	tm, err := time.Parse(TimestampLayout, ts)
	if err != nil {
		return Bar{}, &ParseError{Symbol: symbol, Field: "timestamp", Value: ts, Err: err}
	}

	prices := make([]decimal.Decimal, 4)
	for i, f := range []struct {
		name  string
		value string
	}{
		{"open", *r.Open},
		{"high", *r.High},
		{"low", *r.Low},
		{"close", *r.Close},
	} {
		v := strings.TrimSpace(f.value)
		d, err := decimal.NewFromString(v)
		if err != nil {
			return Bar{}, &ParseError{Symbol: symbol, Field: f.name, Value: v, Err: err}
		}
		prices[i] = d
	}

	vol, err := parseVolume(strings.TrimSpace(*r.Volume))
	if err != nil {
		return Bar{}, &ParseError{Symbol: symbol, Field: "volume", Value: *r.Volume, Err: err}
	}

	return Bar{
		Symbol: symbol,
		Time:   NormalizeTime(tm),
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: vol,
	}, nil
}

// parseVolume accepts integers, and integral values written with a fractional part ("1000.0").
func parseVolume(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, strconv.ErrSyntax
	}
	return d.IntPart(), nil
}
