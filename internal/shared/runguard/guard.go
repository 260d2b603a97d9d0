// Package runguard は「同時に1つだけ実行する」ジョブのための排他ガードを提供します。
package runguard

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrConcurrentRun matches any *ConcurrentRunError via errors.Is.
var ErrConcurrentRun = errors.New("run already in progress")

// Status はガードの現在の状態です。
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// ConcurrentRunError は実行中に新しい実行が要求されたことを表し、実行中の状態を保持します。
type ConcurrentRunError struct {
	Current Status
}

func (e *ConcurrentRunError) Error() string {
	return fmt.Sprintf("%s: %s started at %s (run %s)",
		ErrConcurrentRun, e.Current.Name, e.Current.StartedAt.Format(time.RFC3339), e.Current.RunID)
}

// Is は errors.Is(err, ErrConcurrentRun) を成立させます。
func (e *ConcurrentRunError) Is(target error) bool {
	return target == ErrConcurrentRun
}

// Guard は compare-and-swap で実行中フラグを管理します。
// 実行中の要求はキューイングせず即座に拒否します。
type Guard struct {
	name    string
	running atomic.Bool

	mu    sync.Mutex
	runID string
	start time.Time
	now   func() time.Time
}

// New は指定した名前のガードを生成します。
func New(name string) *Guard {
	return &Guard{name: name, now: time.Now}
}

// TryAcquire は実行権を取得します。取得できた場合は必ず release を defer で呼び出してください。
// 既に実行中なら *ConcurrentRunError を返します。
func (g *Guard) TryAcquire(runID string) (release func(), err error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, &ConcurrentRunError{Current: g.Status()}
	}

	g.mu.Lock()
	g.runID = runID
	g.start = g.now()
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.runID = ""
			g.start = time.Time{}
			g.mu.Unlock()
			g.running.Store(false)
		})
	}, nil
}

// Running は実行中かどうかを返します。
func (g *Guard) Running() bool {
	return g.running.Load()
}

// Status は現在の状態のスナップショットを返します。
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Name:      g.name,
		Running:   g.running.Load(),
		RunID:     g.runID,
		StartedAt: g.start,
	}
}
