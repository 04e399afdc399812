package recommend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/matcher"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeJobSource struct {
	jobs   map[string]*models.JobPosting
	skills map[string][]string
}

func (f *fakeJobSource) GetJobPosting(ctx context.Context, jobID string) (*models.JobPosting, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobSource) GetJobRequiredSkills(ctx context.Context, jobID string) ([]string, error) {
	return f.skills[jobID], nil
}

type fakeRetriever struct {
	hits      []types.RetrievalHit
	err       error
	calls     int
	lastQuery string
	lastLimit int
}

func (f *fakeRetriever) SearchCandidates(ctx context.Context, query string, limit int, certaintyFloor float64) ([]types.RetrievalHit, error) {
	f.calls++
	f.lastQuery = query
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeCache struct {
	stored map[string]*types.RecommendationResponse
}

func (f *fakeCache) key(jobID string, limit int, threshold float64) string {
	return fmt.Sprintf("%s:%d:%.2f", jobID, limit, threshold)
}

func (f *fakeCache) GetCachedRecommendation(ctx context.Context, jobID string, limit int, threshold float64) (*types.RecommendationResponse, error) {
	if resp, ok := f.stored[f.key(jobID, limit, threshold)]; ok {
		return resp, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeCache) CacheRecommendation(ctx context.Context, jobID string, limit int, threshold float64, resp *types.RecommendationResponse, ttl time.Duration) error {
	if f.stored == nil {
		f.stored = make(map[string]*types.RecommendationResponse)
	}
	f.stored[f.key(jobID, limit, threshold)] = resp
	return nil
}

func newTestPipeline(t *testing.T, jobs *fakeJobSource, retriever *fakeRetriever, cache ResultCache) *Pipeline {
	t.Helper()
	m := matcher.NewSkillMatcher(config.MatcherConfig{})
	ranker, err := NewRanker(StrategyFusion, m, types.ScoringWeights{SkillWeight: 0.5, SemanticWeight: 0.4})
	require.NoError(t, err)
	return NewPipeline(jobs, retriever, ranker, cache, PipelineOptions{})
}

func TestGetRecommendationsRanked(t *testing.T) {
	jobs := &fakeJobSource{
		jobs: map[string]*models.JobPosting{
			"job-1": {JobID: "job-1", Title: "后端工程师", MinYearsExperience: 0},
		},
		skills: map[string][]string{"job-1": {"Java", "SQL"}},
	}
	retriever := &fakeRetriever{
		hits: []types.RetrievalHit{
			{CandidateID: "c1", CandidateName: "张三", Skills: []string{"Java", "SQL", "Spring"}, TotalExperience: 3, Certainty: 0.8},
			{CandidateID: "c2", CandidateName: "李四", Skills: []string{"Python"}, TotalExperience: 5, Certainty: 0.4},
		},
	}

	p := newTestPipeline(t, jobs, retriever, nil)
	resp, err := p.GetRecommendations(context.Background(), "job-1", 10, 0.5)
	require.NoError(t, err)

	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "后端工程师", resp.JobTitle)
	require.Equal(t, 1, resp.TotalFound)
	assert.Equal(t, "c1", resp.Recommendations[0].CandidateID)
	// (1.0*0.5 + 0.8*0.4)*1.0 = 0.82
	assert.InDelta(t, 0.82, resp.Recommendations[0].MatchScore, 1e-9)
	assert.GreaterOrEqual(t, resp.ProcessingTimeMs, int64(0))

	// 检索量放大为 limit×overfetch
	assert.Equal(t, "Java SQL", retriever.lastQuery)
	assert.Equal(t, 30, retriever.lastLimit)
}

func TestGetRecommendationsEmptySkillsShortCircuits(t *testing.T) {
	jobs := &fakeJobSource{
		jobs: map[string]*models.JobPosting{
			// 无结构化技能，描述也提取不出关键词
			"job-1": {JobID: "job-1", Title: "岗位", Description: "a b c"},
		},
		skills: map[string][]string{},
	}
	retriever := &fakeRetriever{}

	p := newTestPipeline(t, jobs, retriever, nil)
	resp, err := p.GetRecommendations(context.Background(), "job-1", 10, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 0, resp.TotalFound)
	assert.Empty(t, resp.Recommendations)
	assert.Equal(t, 0, retriever.calls, "空要求技能集不应发起检索")
}

func TestGetRecommendationsKeywordFallback(t *testing.T) {
	jobs := &fakeJobSource{
		jobs: map[string]*models.JobPosting{
			"job-1": {JobID: "job-1", Title: "岗位", Description: "Seeking experienced Golang developer, golang preferred."},
		},
		skills: map[string][]string{},
	}
	retriever := &fakeRetriever{}

	p := newTestPipeline(t, jobs, retriever, nil)
	_, err := p.GetRecommendations(context.Background(), "job-1", 10, 0.5)
	require.NoError(t, err)

	require.Equal(t, 1, retriever.calls)
	// 长度>3的词，去重保持首次出现顺序
	assert.Equal(t, "seeking experienced golang developer preferred", retriever.lastQuery)
}

func TestExtractDescriptionKeywordsCapped(t *testing.T) {
	var sb string
	for i := 0; i < 30; i++ {
		sb += fmt.Sprintf("keyword%02d ", i)
	}
	keywords := extractDescriptionKeywords(sb)
	assert.Len(t, keywords, 20)
	assert.Equal(t, "keyword00", keywords[0])
}

func TestGetRecommendationsJobNotFound(t *testing.T) {
	p := newTestPipeline(t, &fakeJobSource{jobs: map[string]*models.JobPosting{}}, &fakeRetriever{}, nil)

	_, err := p.GetRecommendations(context.Background(), "missing", 10, 0.5)
	assert.ErrorIs(t, err, storage.ErrJobNotFound)
}

func TestGetRecommendationsRetrievalFailureDegrades(t *testing.T) {
	jobs := &fakeJobSource{
		jobs:   map[string]*models.JobPosting{"job-1": {JobID: "job-1", Title: "岗位"}},
		skills: map[string][]string{"job-1": {"Java"}},
	}
	retriever := &fakeRetriever{err: fmt.Errorf("vector index unreachable")}

	p := newTestPipeline(t, jobs, retriever, nil)
	resp, err := p.GetRecommendations(context.Background(), "job-1", 10, 0.5)

	// 检索失败降级为空结果，请求本身成功
	require.NoError(t, err)
	assert.Equal(t, 0, resp.TotalFound)
	assert.Empty(t, resp.Recommendations)
}

func TestGetRecommendationsCacheHit(t *testing.T) {
	jobs := &fakeJobSource{
		jobs:   map[string]*models.JobPosting{"job-1": {JobID: "job-1", Title: "岗位"}},
		skills: map[string][]string{"job-1": {"Java"}},
	}
	retriever := &fakeRetriever{
		hits: []types.RetrievalHit{
			{CandidateID: "c1", Skills: []string{"Java"}, Certainty: 0.9},
		},
	}
	cache := &fakeCache{}

	p := newTestPipeline(t, jobs, retriever, cache)

	first, err := p.GetRecommendations(context.Background(), "job-1", 10, 0.5)
	require.NoError(t, err)
	require.Equal(t, 1, retriever.calls)

	second, err := p.GetRecommendations(context.Background(), "job-1", 10, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, retriever.calls, "第二次请求应命中缓存，不再检索")
	assert.Equal(t, first.TotalFound, second.TotalFound)
}

func TestGetRecommendationsDefaultParams(t *testing.T) {
	jobs := &fakeJobSource{
		jobs:   map[string]*models.JobPosting{"job-1": {JobID: "job-1"}},
		skills: map[string][]string{"job-1": {"Java"}},
	}
	retriever := &fakeRetriever{}

	p := newTestPipeline(t, jobs, retriever, nil)
	_, err := p.GetRecommendations(context.Background(), "job-1", 0, -1)
	require.NoError(t, err)

	// 默认limit=10，overfetch=3
	assert.Equal(t, 30, retriever.lastLimit)
}

func TestGetRecommendationsExplicitZeroThreshold(t *testing.T) {
	jobs := &fakeJobSource{
		jobs:   map[string]*models.JobPosting{"job-1": {JobID: "job-1"}},
		skills: map[string][]string{"job-1": {"Java"}},
	}
	// 技能不匹配 => combined = 0.5*0.4 = 0.2，低于默认阈值0.5
	retriever := &fakeRetriever{
		hits: []types.RetrievalHit{
			{CandidateID: "c1", Skills: []string{"Python"}, Certainty: 0.5},
		},
	}

	p := newTestPipeline(t, jobs, retriever, nil)
	resp, err := p.GetRecommendations(context.Background(), "job-1", 10, 0)
	require.NoError(t, err)

	// 显式0阈值必须被尊重，不能回退到默认的0.5
	require.Equal(t, 1, resp.TotalFound)
	assert.Equal(t, "c1", resp.Recommendations[0].CandidateID)
}

func TestResolveRequiredSkillsSnapshotFallback(t *testing.T) {
	jobs := &fakeJobSource{
		jobs: map[string]*models.JobPosting{
			"job-1": {
				JobID:              "job-1",
				Title:              "平台工程师",
				Description:        "maintain infrastructure",
				SkillsKeywordsJSON: datatypes.JSON(`["Go", " Redis ", "go", ""]`),
			},
		},
		skills: map[string][]string{},
	}
	retriever := &fakeRetriever{}

	p := newTestPipeline(t, jobs, retriever, nil)
	_, err := p.GetRecommendations(context.Background(), "job-1", 10, 0.5)
	require.NoError(t, err)

	// 结构化标签缺失时使用岗位行上的关键词快照：
	// 去空白、丢空项、大小写不敏感去重，不落到描述提取
	require.Equal(t, 1, retriever.calls)
	assert.Equal(t, "Go Redis", retriever.lastQuery)
}

func TestResolveRequiredSkillsCorruptSnapshotFallsThrough(t *testing.T) {
	jobs := &fakeJobSource{
		jobs: map[string]*models.JobPosting{
			"job-1": {
				JobID:              "job-1",
				Description:        "Seeking experienced Golang developer",
				SkillsKeywordsJSON: datatypes.JSON(`{not json`),
			},
		},
		skills: map[string][]string{},
	}
	retriever := &fakeRetriever{}

	p := newTestPipeline(t, jobs, retriever, nil)
	_, err := p.GetRecommendations(context.Background(), "job-1", 10, 0.5)
	require.NoError(t, err)

	// 快照损坏时继续回退到描述关键词提取
	assert.Equal(t, "seeking experienced golang developer", retriever.lastQuery)
}
