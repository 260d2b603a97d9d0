package usecase

import "errors"

var (
	// ErrExternalTimeout は上流（オラクル・補完プロデューサー）が時間内に応答しなかったことを表します。
	ErrExternalTimeout = errors.New("external call timed out")
	// ErrExternalFailure は上流がエラーまたは不正な応答を返したことを表します。
	ErrExternalFailure = errors.New("external call failed")
	// ErrNoUpstreamData はオラクルが最新時刻として null を返したことを表します。
	ErrNoUpstreamData = errors.New("upstream has no data")
)
