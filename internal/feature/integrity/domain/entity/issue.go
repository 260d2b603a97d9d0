// Package entity defines the integrity and reconciliation models.
package entity

import (
	"strings"
	"time"

	candleentity "candle_pipeline/internal/feature/candles/domain/entity"
)

// Issue は構造的不変条件に違反している保存済みバー1本の検出結果です。
type Issue struct {
	Symbol      string                     `json:"symbol"`
	Time        time.Time                  `json:"time"`
	Kind        candleentity.ViolationKind `json:"kind"`
	Description string                     `json:"description"`
}

// IssueFor はバーの違反内容から Issue を組み立てます。違反がなければ ok=false です。
// Kind は最初に違反した不変条件、Description はすべての違反を列挙します。
func IssueFor(bar candleentity.Bar) (Issue, bool) {
	vs := bar.Violations()
	if len(vs) == 0 {
		return Issue{}, false
	}
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Message
	}
	return Issue{
		Symbol:      bar.Symbol,
		Time:        bar.Time,
		Kind:        vs[0].Kind,
		Description: strings.Join(msgs, "; "),
	}, true
}

// RepairStatus は1件の修復結果です。
type RepairStatus string

const (
	RepairDeleted         RepairStatus = "deleted"
	RepairAlreadyResolved RepairStatus = "already_resolved"
	RepairFailed          RepairStatus = "failed"
)

// RepairResult は Issue ごとの修復結果です。
type RepairResult struct {
	Issue  Issue        `json:"issue"`
	Status RepairStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// RepairReport は修復処理全体の集計です。
type RepairReport struct {
	Deleted         int            `json:"deleted"`
	AlreadyResolved int            `json:"already_resolved"`
	Failed          int            `json:"failed"`
	Results         []RepairResult `json:"results"`
}

// Add は結果を追加し、件数を更新します。
func (r *RepairReport) Add(res RepairResult) {
	switch res.Status {
	case RepairDeleted:
		r.Deleted++
	case RepairAlreadyResolved:
		r.AlreadyResolved++
	case RepairFailed:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}
