package entity

import (
	"fmt"
	"strings"
)

// Timeframe はローソク足の時間足を分単位で表します。
type Timeframe int

const (
	Minute1  Timeframe = 1
	Minute5  Timeframe = 5
	Minute15 Timeframe = 15
	Hour1    Timeframe = 60
	Hour4    Timeframe = 240
	Day1     Timeframe = 1440
)

// Timeframes は集計対象として受け付ける時間足の一覧です（昇順）。
var Timeframes = []Timeframe{Minute1, Minute5, Minute15, Hour1, Hour4, Day1}

var timeframeNames = map[string]Timeframe{
	"1m": Minute1, "1min": Minute1,
	"5m": Minute5, "5min": Minute5,
	"15m": Minute15, "15min": Minute15,
	"1h": Hour1, "60m": Hour1, "60min": Hour1,
	"4h": Hour4, "240m": Hour4, "240min": Hour4,
	"1d": Day1, "1day": Day1, "1440m": Day1,
}

// ParseTimeframe は "5m", "1h", "1day" などの表記を Timeframe に変換します。
func ParseTimeframe(s string) (Timeframe, error) {
	tf, ok := timeframeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Valid は対応している時間足かどうかを返します。
func (tf Timeframe) Valid() bool {
	for _, v := range Timeframes {
		if v == tf {
			return true
		}
	}
	return false
}

// Minutes returns the timeframe length in minutes.
func (tf Timeframe) Minutes() int { return int(tf) }

func (tf Timeframe) String() string {
	switch {
	case tf >= Day1 && tf%Day1 == 0:
		return fmt.Sprintf("%dd", tf/Day1)
	case tf >= Hour1 && tf%Hour1 == 0:
		return fmt.Sprintf("%dh", tf/Hour1)
	default:
		return fmt.Sprintf("%dm", int(tf))
	}
}
