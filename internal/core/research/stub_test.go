package research

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
)

// memSearchRepo はSearchRepositoryのインメモリ実装です
// 本物のリポジトリと同じく終端ステータスの固定を強制します
type memSearchRepo struct {
	mu       sync.Mutex
	searches map[uuid.UUID]*models.Search
	now      func() time.Time

	failUpdate error
	// failUpdateStep が設定されている場合、failUpdateはそのステップのみに適用される
	failUpdateStep string
	failComplete   error
}

func newMemSearchRepo() *memSearchRepo {
	return &memSearchRepo{
		searches: make(map[uuid.UUID]*models.Search),
		now:      time.Now,
	}
}

func (r *memSearchRepo) Create(ctx context.Context, search *models.Search) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *search
	clone.CreatedAt = r.now()
	clone.UpdatedAt = clone.CreatedAt
	r.searches[search.ID] = &clone
	return nil
}

func (r *memSearchRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Search, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	search, ok := r.searches[id]
	if !ok {
		return nil, ErrSearchNotFound
	}
	clone := *search
	return &clone, nil
}

func (r *memSearchRepo) UpdateProgress(ctx context.Context, id uuid.UUID, status models.SearchStatus, step string, percentage int) error {
	if r.failUpdate != nil && (r.failUpdateStep == "" || r.failUpdateStep == step) {
		return r.failUpdate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	search, ok := r.searches[id]
	if !ok {
		return ErrSearchNotFound
	}
	if search.Status.Terminal() {
		return ErrTerminalState
	}

	search.Status = status
	search.ProgressStep = step
	search.ProgressPercentage = percentage
	search.UpdatedAt = r.now()
	if search.StartedAt == nil && status == models.SearchStatusProcessing {
		started := search.UpdatedAt
		search.StartedAt = &started
	}
	return nil
}

func (r *memSearchRepo) MarkCompleted(ctx context.Context, id uuid.UUID, step string) error {
	if r.failComplete != nil {
		return r.failComplete
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	search, ok := r.searches[id]
	if !ok {
		return ErrSearchNotFound
	}
	if search.Status.Terminal() {
		return ErrTerminalState
	}

	now := r.now()
	search.Status = models.SearchStatusCompleted
	search.ProgressStep = step
	search.ProgressPercentage = 100
	search.CompletedAt = &now
	search.UpdatedAt = now
	return nil
}

func (r *memSearchRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	search, ok := r.searches[id]
	if !ok {
		return ErrSearchNotFound
	}
	if search.Status.Terminal() {
		return ErrTerminalState
	}

	now := r.now()
	search.Status = models.SearchStatusFailed
	search.ProgressStep = step
	search.ErrorMessage = &message
	search.CompletedAt = &now
	search.UpdatedAt = now
	return nil
}

func (r *memSearchRepo) ListStalledSince(ctx context.Context, cutoff time.Time) ([]*models.Search, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stalled []*models.Search
	for _, search := range r.searches {
		if search.Status == models.SearchStatusProcessing && !search.UpdatedAt.After(cutoff) {
			clone := *search
			stalled = append(stalled, &clone)
		}
	}
	return stalled, nil
}

// stubBundleRepo は呼び出しを記録するBundleRepositoryスタブです
type stubBundleRepo struct {
	mu sync.Mutex

	rawArtifacts *models.GatheredArtifacts
	synthesis    *models.PrepBundle
	stages       []models.InterviewStage
	questions    []models.InterviewQuestion

	upsertRawErr       error
	updateSynthesisErr error
	insertStagesErr    error
	insertQuestionsErr error
}

func (r *stubBundleRepo) UpsertRaw(ctx context.Context, searchID uuid.UUID, artifacts *models.GatheredArtifacts) error {
	if r.upsertRawErr != nil {
		return r.upsertRawErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rawArtifacts = artifacts
	return nil
}

func (r *stubBundleRepo) UpdateSynthesis(ctx context.Context, searchID uuid.UUID, bundle *models.PrepBundle) error {
	if r.updateSynthesisErr != nil {
		return r.updateSynthesisErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthesis = bundle
	return nil
}

func (r *stubBundleRepo) InsertStages(ctx context.Context, searchID uuid.UUID, stages []models.InterviewStage) error {
	if r.insertStagesErr != nil {
		return r.insertStagesErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = stages
	return nil
}

func (r *stubBundleRepo) InsertQuestions(ctx context.Context, searchID uuid.UUID, questions []models.InterviewQuestion) error {
	if r.insertQuestionsErr != nil {
		return r.insertQuestionsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions = questions
	return nil
}

func (r *stubBundleRepo) GetBySearchID(ctx context.Context, searchID uuid.UUID) (*models.PrepBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.synthesis == nil {
		return nil, ErrSearchNotFound
	}
	return r.synthesis, nil
}

// stubCompanyGatherer などはギャザラーポートのスタブです
// delayを設定すると、コンテキストのキャンセルを尊重しつつ待機します
type stubCompanyGatherer struct {
	result *models.CompanyResearch
	delay  time.Duration
	calls  int
}

func (g *stubCompanyGatherer) Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.CompanyResearch {
	g.calls++
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil
		}
	}
	return g.result
}

type stubRequirementGatherer struct {
	result *models.RequirementResearch
	delay  time.Duration
}

func (g *stubRequirementGatherer) Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.RequirementResearch {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil
		}
	}
	return g.result
}

type stubProfileGatherer struct {
	result *models.ProfileResearch
	delay  time.Duration
}

func (g *stubProfileGatherer) Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.ProfileResearch {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil
		}
	}
	return g.result
}

// stubCompletionClient はCompletionClientのスタブです
type stubCompletionClient struct {
	resp  CompletionResponse
	err   error
	calls int

	lastReq CompletionRequest
}

func (c *stubCompletionClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	c.calls++
	c.lastReq = req
	if c.err != nil {
		return CompletionResponse{}, c.err
	}
	return c.resp, nil
}

func testConfig() Config {
	return Config{
		GatherDeadline:       500 * time.Millisecond,
		SynthesisModel:       "gpt-4o-mini",
		SynthesisMaxTokens:   2048,
		PerSourceTokenBudget: 3000,
		CheckpointTimeout:    200 * time.Millisecond,
	}
}

func testSubject() models.Subject {
	return models.Subject{Company: "Acme Corp", Role: "Backend Engineer", Region: "Tokyo"}
}

func companyResearchFixture() *models.CompanyResearch {
	return &models.CompanyResearch{
		Company: "Acme Corp",
		Documents: []models.SourceDocument{
			{URL: "https://acme.example.com/about", Title: "About", Content: "Acme builds rockets.", Score: 0.9},
		},
		FreshFetch: 1,
		GatheredAt: time.Now(),
	}
}

func requirementResearchFixture() *models.RequirementResearch {
	return &models.RequirementResearch{
		Role: "Backend Engineer",
		Documents: []models.SourceDocument{
			{URL: "https://jobs.example.com/123", Title: "Posting", Content: "Go and Postgres required.", Score: 0.8},
		},
		FreshFetch: 1,
		GatheredAt: time.Now(),
	}
}

func profileResearchFixture() *models.ProfileResearch {
	return &models.ProfileResearch{
		Role: "Backend Engineer",
		Documents: []models.SourceDocument{
			{URL: "https://blog.example.com/interview", Title: "Interview notes", Content: "Expect system design.", Score: 0.7},
		},
		FreshFetch: 1,
		GatheredAt: time.Now(),
	}
}

const validSynthesisJSON = `{
  "comparison_analysis": {
    "fit_summary": "Strong fit for the backend role.",
    "strengths": ["Go experience"],
    "gaps": ["Limited Kubernetes exposure"],
    "talking_points": ["Rocket telemetry pipeline"]
  },
  "interview_stages": [
    {"name": "Screening", "description": "Recruiter call", "format": "online", "duration_minutes": 30},
    {"name": "Technical", "description": "Coding interview", "format": "online", "duration_minutes": 60}
  ],
  "questions": [
    {"category": "technical", "question": "How do you design a job queue?", "guidance": "Mention idempotency."}
  ],
  "prep_guidance": {
    "summary": "Focus on distributed systems.",
    "priorities": ["Review Go concurrency"],
    "resources": ["https://go.dev/blog"]
  }
}`
