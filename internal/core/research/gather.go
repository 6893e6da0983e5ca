package research

import (
	"context"
	"sync"
	"time"

	"github.com/jinford/prep-scout/pkg/models"
)

// gatherOutcome は1ギャザラーの確定結果です
// 例外をタスク境界を越えて伝播させる代わりに、タグ付きの結果で表現します
type gatherOutcome struct {
	name     string
	ok       bool
	duration time.Duration
}

// gather は3つのギャザラーを並行起動し、全タスクの確定を待って結果を結合します
// 個々の失敗・遅延は他のギャザラーをブロックせず、全体デッドラインを超えた
// タスクは放棄されて該当フィールドがnilのまま返ります。このメソッドは決して
// エラーを返しません
func (c *Coordinator) gather(ctx context.Context, search *models.Search) *models.GatheredArtifacts {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GatherDeadline)
	defer cancel()

	var (
		mu        sync.Mutex
		artifacts models.GatheredArtifacts
		outcomes  []gatherOutcome
	)

	record := func(name string, ok bool, started time.Time) {
		mu.Lock()
		outcomes = append(outcomes, gatherOutcome{name: name, ok: ok, duration: time.Since(started)})
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		started := time.Now()
		result := c.company.Gather(gctx, search.ID, search.Subject)
		mu.Lock()
		artifacts.Company = result
		mu.Unlock()
		record("company", result != nil, started)
	}()

	go func() {
		defer wg.Done()
		started := time.Now()
		result := c.requirement.Gather(gctx, search.ID, search.Subject)
		mu.Lock()
		artifacts.Requirement = result
		mu.Unlock()
		record("requirement", result != nil, started)
	}()

	go func() {
		defer wg.Done()
		started := time.Now()
		result := c.profile.Gather(gctx, search.ID, search.Subject)
		mu.Lock()
		artifacts.Profile = result
		mu.Unlock()
		record("profile", result != nil, started)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-gctx.Done():
		// デッドライン到達。走り続けているギャザラーは自身のコンテキスト
		// キャンセルで停止するため、ここでは待たずに結果を確定する
		c.logger.Warn("gather deadline reached, abandoning unfinished gatherers",
			"searchID", search.ID, "deadline", c.cfg.GatherDeadline)
	}

	mu.Lock()
	snapshot := artifacts
	finished := make([]gatherOutcome, len(outcomes))
	copy(finished, outcomes)
	mu.Unlock()

	for _, o := range finished {
		c.logger.Info("gatherer settled",
			"searchID", search.ID,
			"gatherer", o.name,
			"ok", o.ok,
			"duration", o.duration,
		)
	}

	return &snapshot
}
