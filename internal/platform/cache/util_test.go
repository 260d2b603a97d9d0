package cache

import (
	"testing"
	"time"
)

func TestRangeKey(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 1, 2, 9, 30, 15, 0, time.UTC)
	to := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	got := rangeKey("candles", " aapl", 3, from, to)
	want := "candles:AAPL:g3:202501020930-202501021000"
	if got != want {
		t.Errorf("rangeKey() = %q, expected %q", got, want)
	}
}

func TestSymbolPrefix(t *testing.T) {
	t.Parallel()

	if got := symbolPrefix("candles", "brk a"); got != "candles:BRK_A:" {
		t.Errorf("symbolPrefix() = %q", got)
	}
	// 世代キーは銘柄プレフィックスの無効化パターンに含まれない
	if got := genKey("candles", "gen"); got != "candles:gen:GEN" {
		t.Errorf("genKey() = %q", got)
	}
}

// TestSafe はsafe関数がRedisキーで問題となる文字を正しくエスケープすることを検証します。
func TestSafe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"AAPL", "AAPL"},
		{"BRK A", "BRK_A"},
		{"key:value", "key_value"},
		{"a*", "a_"},
		{"", ""},
		{"::", "__"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			result := safe(tt.input)
			if result != tt.expected {
				t.Errorf("safe(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}
