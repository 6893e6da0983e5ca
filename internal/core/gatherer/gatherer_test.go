package gatherer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/internal/core/reuse"
	"github.com/jinford/prep-scout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearchClient struct {
	mu      sync.Mutex
	results []SearchResult
	err     error
	calls   int
	lastReq SearchRequest
	delay   time.Duration
}

func (c *stubSearchClient) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	c.mu.Lock()
	c.calls++
	c.lastReq = req
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.delay):
		}
	}
	return c.results, c.err
}

func (c *stubSearchClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type stubExtractor struct {
	content string
	err     error
}

func (e *stubExtractor) Extract(ctx context.Context, pageURL string) (string, error) {
	return e.content, e.err
}

// memCacheRepo はreuse.Repositoryのインメモリ実装です
type memCacheRepo struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: make(map[string]*models.CacheEntry)}
}

func (r *memCacheRepo) MatchSubject(ctx context.Context, subject models.Subject, limit int) ([]*models.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CacheEntry
	for _, e := range r.entries {
		if e.Company == subject.Company {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memCacheRepo) GetByURLs(ctx context.Context, urls []string, subject models.Subject) ([]*models.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CacheEntry
	for _, u := range urls {
		if e, ok := r.entries[u]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memCacheRepo) Store(ctx context.Context, entry *models.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.URL] = entry
	return nil
}

func (r *memCacheRepo) RecordUsage(ctx context.Context, searchID, entryID uuid.UUID, qualityAtUse float64) error {
	return nil
}

func (r *memCacheRepo) IncrementReuse(ctx context.Context, entryID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == entryID {
			e.ReuseCount++
			now := time.Now()
			e.LastReusedAt = &now
		}
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Timeout:         2 * time.Second,
		MinCacheHits:    2,
		MaxResults:      5,
		SearchDepth:     "basic",
		CacheMaxAgeDays: 14,
		CacheMinQuality: 0.5,
	}
}

func TestCompanyGatherer_FreshSearchPopulatesCache(t *testing.T) {
	repo := newMemCacheRepo()
	cache := reuse.NewService(repo, reuse.WithLogger(testLogger()))
	search := &stubSearchClient{results: []SearchResult{
		{URL: "https://acme.example.com/about", Title: "About Acme", Content: longContent(), Score: 0.8},
		{URL: "https://news.example.com/acme", Title: "Acme News", Content: longContent(), Score: 0.6},
	}}

	g := NewCompanyGatherer(search, &stubExtractor{}, cache, testConfig(), testLogger())
	result := g.Gather(context.Background(), uuid.New(), models.Subject{Company: "Acme", Role: "Backend Engineer"})

	require.NotNil(t, result)
	assert.Len(t, result.Documents, 2)
	assert.Equal(t, 2, result.FreshFetch)
	assert.Zero(t, result.CacheHits)
	// 新規取得分はキャッシュに保存される
	assert.Len(t, repo.entries, 2)
}

func TestCompanyGatherer_CacheHitSkipsFreshSearch(t *testing.T) {
	repo := newMemCacheRepo()
	now := time.Now()
	for _, u := range []string{"https://a.example.com/1", "https://b.example.com/2"} {
		repo.entries[u] = &models.CacheEntry{
			ID:          uuid.New(),
			URL:         u,
			Domain:      domainOf(u),
			Company:     "Acme",
			Role:        "Backend Engineer",
			Content:     longContent(),
			Quality:     0.9,
			ExtractedAt: now.Add(-time.Hour),
		}
	}

	cache := reuse.NewService(repo, reuse.WithLogger(testLogger()))
	search := &stubSearchClient{}

	g := NewCompanyGatherer(search, &stubExtractor{}, cache, testConfig(), testLogger())
	result := g.Gather(context.Background(), uuid.New(), models.Subject{Company: "Acme", Role: "Backend Engineer"})

	require.NotNil(t, result)
	assert.Equal(t, 2, result.CacheHits)
	assert.Zero(t, result.FreshFetch)
	// 十分なキャッシュヒットがあれば外部検索は呼ばれない
	assert.Zero(t, search.callCount())
	for _, doc := range result.Documents {
		assert.True(t, doc.FromCache)
	}
}

func TestRepeatGather_IncrementsReuseAndReducesFreshCalls(t *testing.T) {
	repo := newMemCacheRepo()
	cache := reuse.NewService(repo, reuse.WithLogger(testLogger()))
	search := &stubSearchClient{results: []SearchResult{
		{URL: "https://acme.example.com/about", Title: "About", Content: longContent(), Score: 0.8},
		{URL: "https://jobs.example.com/acme", Title: "Jobs", Content: longContent(), Score: 0.7},
	}}

	subject := models.Subject{Company: "Acme", Role: "Backend Engineer"}
	g := NewCompanyGatherer(search, &stubExtractor{}, cache, testConfig(), testLogger())

	first := g.Gather(context.Background(), uuid.New(), subject)
	require.NotNil(t, first)
	callsAfterFirst := search.callCount()

	second := g.Gather(context.Background(), uuid.New(), subject)
	require.NotNil(t, second)

	// 2回目は再利用でまかなわれ、新規検索回数は増えない
	assert.Equal(t, callsAfterFirst, search.callCount())
	assert.Equal(t, 2, second.CacheHits)

	for _, e := range repo.entries {
		assert.GreaterOrEqual(t, e.ReuseCount, 1)
	}
}

func TestGatherer_SearchFailureReturnsNil(t *testing.T) {
	repo := newMemCacheRepo()
	cache := reuse.NewService(repo, reuse.WithLogger(testLogger()))
	search := &stubSearchClient{err: errors.New("upstream 500")}

	g := NewRequirementGatherer(search, &stubExtractor{}, cache, testConfig(), testLogger())
	result := g.Gather(context.Background(), uuid.New(), models.Subject{Company: "Acme", Role: "Backend Engineer"})

	assert.Nil(t, result)
}

func TestGatherer_TimeoutReturnsNil(t *testing.T) {
	repo := newMemCacheRepo()
	cache := reuse.NewService(repo, reuse.WithLogger(testLogger()))
	search := &stubSearchClient{delay: time.Second}

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond

	g := NewProfileGatherer(search, &stubExtractor{}, cache, cfg, testLogger())
	result := g.Gather(context.Background(), uuid.New(), models.Subject{Company: "Acme", Role: "Backend Engineer"})

	assert.Nil(t, result)
}

func TestGatherer_ThinContentEnrichedByExtractor(t *testing.T) {
	repo := newMemCacheRepo()
	cache := reuse.NewService(repo, reuse.WithLogger(testLogger()))
	search := &stubSearchClient{results: []SearchResult{
		{URL: "https://acme.example.com/about", Title: "About", Content: "short snippet", Score: 0.8},
	}}
	extractor := &stubExtractor{content: longContent()}

	g := NewCompanyGatherer(search, extractor, cache, testConfig(), testLogger())
	result := g.Gather(context.Background(), uuid.New(), models.Subject{Company: "Acme", Role: "Backend Engineer"})

	require.NotNil(t, result)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, longContent(), result.Documents[0].Content)
}

func TestGatherer_EmptySearchResultIsNotFailure(t *testing.T) {
	repo := newMemCacheRepo()
	cache := reuse.NewService(repo, reuse.WithLogger(testLogger()))
	search := &stubSearchClient{results: nil}

	g := NewCompanyGatherer(search, &stubExtractor{}, cache, testConfig(), testLogger())
	result := g.Gather(context.Background(), uuid.New(), models.Subject{Company: "Acme", Role: "Backend Engineer"})

	// 空レスポンスは失敗ではなく、空の結果として返る
	require.NotNil(t, result)
	assert.Empty(t, result.Documents)
	assert.Equal(t, 1, search.callCount())
}

func TestGatherer_CacheOnlyModeWithoutSearchClient(t *testing.T) {
	repo := newMemCacheRepo()
	now := time.Now()
	repo.entries["https://a.example.com/1"] = &models.CacheEntry{
		ID:          uuid.New(),
		URL:         "https://a.example.com/1",
		Company:     "Acme",
		Role:        "Backend Engineer",
		Content:     longContent(),
		Quality:     0.9,
		ExtractedAt: now.Add(-time.Hour),
	}
	cache := reuse.NewService(repo, reuse.WithLogger(testLogger()))

	// 検索クライアント未構成でもキャッシュで部分結果を返す
	g := NewCompanyGatherer(nil, nil, cache, testConfig(), testLogger())
	result := g.Gather(context.Background(), uuid.New(), models.Subject{Company: "Acme", Role: "Backend Engineer"})

	require.NotNil(t, result)
	assert.Equal(t, 1, result.CacheHits)
	assert.Zero(t, result.FreshFetch)

	// キャッシュも空なら失敗としてnil
	empty := NewCompanyGatherer(nil, nil, reuse.NewService(newMemCacheRepo(), reuse.WithLogger(testLogger())), testConfig(), testLogger())
	assert.Nil(t, empty.Gather(context.Background(), uuid.New(), models.Subject{Company: "Nowhere", Role: "Engineer"}))
}

func longContent() string {
	s := "Acme Corporation is a multinational company known for its structured interview process. "
	out := ""
	for len(out) < minInlineContentLength+100 {
		out += s
	}
	return out
}
