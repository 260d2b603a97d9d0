package entity

import "time"

// Outcome は照合実行全体の結果区分です。
type Outcome string

const (
	OutcomeNoGaps  Outcome = "no_gaps" // 欠損なし。作業ゼロの成功
	OutcomeFilled  Outcome = "filled"  // 欠損を検出し、すべて補完
	OutcomePartial Outcome = "partial" // 一部の銘柄が失敗
	OutcomeFailed  Outcome = "failed"  // すべての銘柄が失敗
)

// SymbolOutcome は1銘柄の照合結果です。
type SymbolOutcome struct {
	Symbol       string     `json:"symbol"`
	Status       GapStatus  `json:"status,omitempty"`
	StoreLatest  *time.Time `json:"store_latest,omitempty"`
	OracleLatest *time.Time `json:"oracle_latest,omitempty"`
	Collected    int        `json:"collected"`
	Inserted     int        `json:"inserted"`
	Updated      int        `json:"updated"`
	Rejected     int        `json:"rejected"`
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
}

// Summary は1回の照合実行の集計です。
type Summary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Checked    int             `json:"checked"`
	GapsFound  int             `json:"gaps_found"`
	Filled     int             `json:"filled"`
	Failed     int             `json:"failed"`
	Aborted    string          `json:"aborted,omitempty"`
	Symbols    []SymbolOutcome `json:"symbols"`
}

// Add は銘柄の結果を集計に加えます。
func (s *Summary) Add(o SymbolOutcome) {
	s.Checked++
	if o.Status.NeedsBackfill() {
		s.GapsFound++
	}
	switch {
	case !o.Success:
		s.Failed++
	case o.Status.NeedsBackfill():
		s.Filled++
	}
	s.Symbols = append(s.Symbols, o)
}

// Outcome は「欠損なし」と「欠損はあったが補完できなかった」を区別して返します。
func (s Summary) Outcome() Outcome {
	switch {
	case s.Aborted != "" && s.Checked == 0:
		return OutcomeFailed
	case s.Failed == 0 && s.Aborted == "":
		if s.GapsFound == 0 {
			return OutcomeNoGaps
		}
		return OutcomeFilled
	case s.Failed >= s.Checked:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}
