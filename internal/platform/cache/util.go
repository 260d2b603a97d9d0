package cache

import (
	"fmt"
	"strings"
	"time"

	"candle_pipeline/internal/feature/candles/domain/entity"
)

// keyTimeLayout は分単位のキー表記です。バーは分単位に正規化されているため秒は不要です。
const keyTimeLayout = "200601021504"

// rangeKey は世代 gen における [from, to) の範囲クエリのキャッシュキーを生成します。
func rangeKey(namespace, symbol string, gen int64, from, to time.Time) string {
	return fmt.Sprintf("%sg%d:%s-%s",
		symbolPrefix(namespace, symbol),
		gen,
		entity.NormalizeTime(from).Format(keyTimeLayout),
		entity.NormalizeTime(to).Format(keyTimeLayout),
	)
}

// symbolPrefix は銘柄単位の無効化に使うプレフィックスです。
func symbolPrefix(namespace, symbol string) string {
	return fmt.Sprintf("%s:%s:", namespace, safe(entity.NormalizeSymbol(symbol)))
}

// genKey は銘柄のキャッシュ世代を保持するキーです。銘柄は大文字に正規化されるため symbolPrefix と衝突しません。
func genKey(namespace, symbol string) string {
	return fmt.Sprintf("%s:gen:%s", namespace, safe(entity.NormalizeSymbol(symbol)))
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	return s
}
