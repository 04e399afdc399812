package recommend

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"talent-match-go/internal/storage"
	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCandidateSource struct {
	facts    map[string]*types.CandidateFacts
	factsErr map[string]error
	ids      []string
}

func (f *fakeCandidateSource) GetCandidateFacts(ctx context.Context, candidateID string) (*types.CandidateFacts, error) {
	if err := f.factsErr[candidateID]; err != nil {
		return nil, err
	}
	facts, ok := f.facts[candidateID]
	if !ok {
		return nil, fmt.Errorf("candidate %s not found", candidateID)
	}
	return facts, nil
}

func (f *fakeCandidateSource) ListAllCandidateIDs(ctx context.Context) ([]string, error) {
	return f.ids, nil
}

// fakeVectorIndex 记录操作顺序的内存向量索引
type fakeVectorIndex struct {
	mu          sync.Mutex
	docs        map[string]*types.CandidateDocument
	ops         []string
	ensureCalls int
	putErr      map[string]error
	deleteErr   map[string]error
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{docs: make(map[string]*types.CandidateDocument)}
}

func (f *fakeVectorIndex) EnsureSchema(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	return nil
}

func (f *fakeVectorIndex) RecreateSchema(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = make(map[string]*types.CandidateDocument)
	f.ops = append(f.ops, "recreate")
	return nil
}

func (f *fakeVectorIndex) PutCandidate(ctx context.Context, doc *types.CandidateDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.putErr[doc.CandidateID]; err != nil {
		return err
	}
	f.docs[doc.CandidateID] = doc
	f.ops = append(f.ops, "put:"+doc.CandidateID)
	return nil
}

func (f *fakeVectorIndex) DeleteCandidate(ctx context.Context, candidateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[candidateID]; err != nil {
		return err
	}
	delete(f.docs, candidateID)
	f.ops = append(f.ops, "delete:"+candidateID)
	return nil
}

func (f *fakeVectorIndex) SearchCandidates(ctx context.Context, query string, limit int, certaintyFloor float64) ([]types.RetrievalHit, error) {
	return nil, nil
}

type fakePublisher struct {
	events []*types.CandidateSyncedEvent
}

func (f *fakePublisher) PublishCandidateSynced(ctx context.Context, event *types.CandidateSyncedEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) InvalidateRecommendations(ctx context.Context) error {
	f.calls++
	return f.err
}

func dateOf(year, month, day int) *time.Time {
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestTotalExperienceYears(t *testing.T) {
	spans := []types.WorkSpan{
		// 整三年
		{StartDate: dateOf(2018, 1, 1), EndDate: dateOf(2021, 1, 1)},
		// 两年半，按整年截断为2
		{StartDate: dateOf(2021, 3, 1), EndDate: dateOf(2023, 9, 1)},
		// 缺结束日期，贡献为零
		{StartDate: dateOf(2023, 1, 1)},
		// 缺起始日期，贡献为零
		{EndDate: dateOf(2024, 1, 1)},
	}
	assert.Equal(t, 5, TotalExperienceYears(spans))
}

func TestTotalExperienceYearsReversedDates(t *testing.T) {
	spans := []types.WorkSpan{
		{StartDate: dateOf(2022, 1, 1), EndDate: dateOf(2020, 1, 1)},
	}
	assert.Equal(t, 0, TotalExperienceYears(spans), "起止颠倒的经历不应产生负年限")
}

func TestSyncDeleteThenInsert(t *testing.T) {
	source := &fakeCandidateSource{
		facts: map[string]*types.CandidateFacts{
			"c1": {
				CandidateID: "c1",
				Name:        "张三",
				Email:       "zhangsan@example.com",
				Skills:      []string{"Go", "MySQL"},
				AboutMe:     "后端工程师",
				Experiences: []types.WorkSpan{{StartDate: dateOf(2019, 1, 1), EndDate: dateOf(2024, 1, 1)}},
			},
		},
	}
	index := newFakeVectorIndex()
	publisher := &fakePublisher{}

	syncer := NewIndexSyncer(source, index, publisher, nil, 1)
	err := syncer.Sync(context.Background(), "c1")
	require.NoError(t, err)

	// 先删后插，避免旧向量残留
	require.Equal(t, []string{"delete:c1", "put:c1"}, index.ops)

	doc := index.docs["c1"]
	require.NotNil(t, doc)
	assert.Equal(t, "张三", doc.CandidateName)
	assert.Equal(t, 5, doc.TotalExperience)
	assert.Equal(t, []string{"Go", "MySQL"}, doc.Skills)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "c1", publisher.events[0].CandidateID)
}

func TestSyncIdempotent(t *testing.T) {
	source := &fakeCandidateSource{
		facts: map[string]*types.CandidateFacts{
			"c1": {CandidateID: "c1", Name: "张三", Skills: []string{"Go"}},
		},
	}
	index := newFakeVectorIndex()
	syncer := NewIndexSyncer(source, index, nil, nil, 1)

	require.NoError(t, syncer.Sync(context.Background(), "c1"))
	first := index.docs["c1"]
	require.NoError(t, syncer.Sync(context.Background(), "c1"))
	second := index.docs["c1"]

	// 源数据不变时两次同步收敛到相同文档内容（同步时间戳除外）
	assert.Equal(t, first.CandidateID, second.CandidateID)
	assert.Equal(t, first.CandidateName, second.CandidateName)
	assert.Equal(t, first.Skills, second.Skills)
	assert.Equal(t, first.TotalExperience, second.TotalExperience)
}

func TestSyncAbortsWhenDeleteFails(t *testing.T) {
	source := &fakeCandidateSource{
		facts: map[string]*types.CandidateFacts{
			"c1": {CandidateID: "c1"},
		},
	}
	index := newFakeVectorIndex()
	index.deleteErr = map[string]error{"c1": fmt.Errorf("index unavailable")}

	syncer := NewIndexSyncer(source, index, nil, nil, 1)
	err := syncer.Sync(context.Background(), "c1")
	require.Error(t, err)
	assert.NotContains(t, index.ops, "put:c1", "删除失败后不应继续插入")
}

func TestSyncSkipsCandidateWithoutResume(t *testing.T) {
	source := &fakeCandidateSource{
		factsErr: map[string]error{
			"c1": fmt.Errorf("候选人 c1: %w", storage.ErrNoResume),
		},
	}
	index := newFakeVectorIndex()

	syncer := NewIndexSyncer(source, index, nil, nil, 1)
	err := syncer.Sync(context.Background(), "c1")
	assert.NoError(t, err, "没有简历应跳过而不是报错")
	assert.Empty(t, index.ops, "跳过的候选人不应触碰索引")
}

func TestSyncAllCountsFailuresIndependently(t *testing.T) {
	source := &fakeCandidateSource{
		facts: map[string]*types.CandidateFacts{
			"c1": {CandidateID: "c1"},
			"c3": {CandidateID: "c3"},
		},
		// c2在事实源中缺失，同步必然失败
		ids: []string{"c1", "c2", "c3"},
	}
	index := newFakeVectorIndex()

	syncer := NewIndexSyncer(source, index, nil, nil, 2)
	report, err := syncer.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Success)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, index.ensureCalls, "SyncAll只应调用一次EnsureSchema")
}

func TestSyncAllEmpty(t *testing.T) {
	syncer := NewIndexSyncer(&fakeCandidateSource{}, newFakeVectorIndex(), nil, nil, 1)
	report, err := syncer.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
}

func TestDeleteCandidate(t *testing.T) {
	index := newFakeVectorIndex()
	index.docs["c1"] = &types.CandidateDocument{CandidateID: "c1"}

	syncer := NewIndexSyncer(&fakeCandidateSource{}, index, nil, nil, 1)
	require.NoError(t, syncer.Delete(context.Background(), "c1"))
	assert.NotContains(t, index.docs, "c1")
}

func TestSyncInvalidatesResultCache(t *testing.T) {
	source := &fakeCandidateSource{
		facts: map[string]*types.CandidateFacts{"c1": {CandidateID: "c1"}},
	}
	invalidator := &fakeInvalidator{}

	syncer := NewIndexSyncer(source, newFakeVectorIndex(), nil, invalidator, 1)
	require.NoError(t, syncer.Sync(context.Background(), "c1"))
	assert.Equal(t, 1, invalidator.calls, "单个候选人同步后应失效结果缓存")
}

func TestSyncInvalidationFailureIsBestEffort(t *testing.T) {
	source := &fakeCandidateSource{
		facts: map[string]*types.CandidateFacts{"c1": {CandidateID: "c1"}},
	}
	invalidator := &fakeInvalidator{err: fmt.Errorf("redis unavailable")}

	syncer := NewIndexSyncer(source, newFakeVectorIndex(), nil, invalidator, 1)
	assert.NoError(t, syncer.Sync(context.Background(), "c1"), "缓存失效失败不应影响同步结果")
}

func TestSyncAllInvalidatesOnce(t *testing.T) {
	source := &fakeCandidateSource{
		facts: map[string]*types.CandidateFacts{
			"c1": {CandidateID: "c1"},
			"c2": {CandidateID: "c2"},
			"c3": {CandidateID: "c3"},
		},
		ids: []string{"c1", "c2", "c3"},
	}
	invalidator := &fakeInvalidator{}

	syncer := NewIndexSyncer(source, newFakeVectorIndex(), nil, invalidator, 2)
	_, err := syncer.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, invalidator.calls, "批量同步只应在收尾失效一次")
}

func TestDeleteInvalidatesResultCache(t *testing.T) {
	index := newFakeVectorIndex()
	invalidator := &fakeInvalidator{}

	syncer := NewIndexSyncer(&fakeCandidateSource{}, index, nil, invalidator, 1)
	require.NoError(t, syncer.Delete(context.Background(), "c1"))
	assert.Equal(t, 1, invalidator.calls, "候选人从索引删除后应失效结果缓存")
}

func TestRecreateIndexResyncs(t *testing.T) {
	source := &fakeCandidateSource{
		facts: map[string]*types.CandidateFacts{"c1": {CandidateID: "c1"}},
		ids:   []string{"c1"},
	}
	index := newFakeVectorIndex()

	syncer := NewIndexSyncer(source, index, nil, nil, 1)
	report, err := syncer.RecreateIndex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Success)
	assert.Contains(t, index.docs, "c1", "重建后应立即完成全量同步")
}
