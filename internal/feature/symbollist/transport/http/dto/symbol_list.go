// Package dto defines data transfer objects for the symbollist HTTP API.
package dto

// SymbolItem represents a symbol in the API response.
type SymbolItem struct {
	Code     string `json:"code"`
	LatestAt string `json:"latest_at,omitempty"` // "2006-01-02 15:04:05" (UTC)
}

// ErrorResponse はエラー時のレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}
