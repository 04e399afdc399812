package recommend

import (
	"context"
	"errors"
	"time"

	"talent-match-go/internal/logger"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var syncerTracer = otel.Tracer("talent-match-go/recommend/syncer")

// CandidateSource 候选人事实的数据源
type CandidateSource interface {
	GetCandidateFacts(ctx context.Context, candidateID string) (*types.CandidateFacts, error)
	ListAllCandidateIDs(ctx context.Context) ([]string, error)
}

// SyncedPublisher 同步完成事件的发布端，允许为空（不发布）
type SyncedPublisher interface {
	PublishCandidateSynced(ctx context.Context, event *types.CandidateSyncedEvent) error
}

// ResultInvalidator 推荐结果缓存的失效端，允许为空（不失效，等TTL过期）
type ResultInvalidator interface {
	InvalidateRecommendations(ctx context.Context) error
}

// IndexSyncer 将候选人事实投影为向量索引文档并保持两边一致
type IndexSyncer struct {
	source      CandidateSource
	index       storage.VectorIndex
	publisher   SyncedPublisher   // 可选
	invalidator ResultInvalidator // 可选
	concurrency int
}

// NewIndexSyncer 创建索引同步器。
// concurrency 控制SyncAll的最大并发度，0或1表示串行。
func NewIndexSyncer(source CandidateSource, index storage.VectorIndex, publisher SyncedPublisher, invalidator ResultInvalidator, concurrency int) *IndexSyncer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &IndexSyncer{
		source:      source,
		index:       index,
		publisher:   publisher,
		invalidator: invalidator,
		concurrency: concurrency,
	}
}

// invalidateResults 索引变更后让推荐结果缓存整体失效。
// 尽力而为：失效失败只会让缓存多活一个TTL周期，不影响同步结果。
func (s *IndexSyncer) invalidateResults(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateRecommendations(ctx); err != nil {
		logger.Warn().Err(err).Msg("推荐结果缓存失效失败，等待TTL自然过期")
	}
}

// yearsBetween 计算两个日期之间的整年数，不足一年按比例截断
func yearsBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	years := end.Year() - start.Year()
	// 未到周年则减一
	anniversary := start.AddDate(years, 0, 0)
	if anniversary.After(end) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// TotalExperienceYears 按工作经历累计总年限。
// 缺少起始或结束日期的经历贡献为零。
func TotalExperienceYears(spans []types.WorkSpan) int {
	total := 0
	for _, span := range spans {
		if span.StartDate == nil || span.EndDate == nil {
			continue
		}
		total += yearsBetween(*span.StartDate, *span.EndDate)
	}
	return total
}

// buildDocument 将候选人事实投影为索引文档
func buildDocument(facts *types.CandidateFacts) *types.CandidateDocument {
	skills := facts.Skills
	if skills == nil {
		skills = []string{}
	}
	return &types.CandidateDocument{
		CandidateID:     facts.CandidateID,
		CandidateName:   facts.Name,
		Email:           facts.Email,
		Skills:          skills,
		TotalExperience: TotalExperienceYears(facts.Experiences),
		AboutMe:         facts.AboutMe,
		SyncedAt:        time.Now().UTC(),
	}
}

// Sync 同步单个候选人到向量索引，成功后让推荐结果缓存失效
func (s *IndexSyncer) Sync(ctx context.Context, candidateID string) error {
	if err := s.syncCandidate(ctx, candidateID); err != nil {
		return err
	}
	s.invalidateResults(ctx)
	return nil
}

// syncCandidate 同步单个候选人，不触碰结果缓存（SyncAll批量同步后统一失效一次）。
// 采用先删后插而不是合并更新，避免旧技能集的向量残留。
// 删除是尽力而为：文档本就不存在不算失败。
func (s *IndexSyncer) syncCandidate(ctx context.Context, candidateID string) error {
	ctx, span := syncerTracer.Start(ctx, "IndexSyncer.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("candidate.id", candidateID))

	facts, err := s.source.GetCandidateFacts(ctx, candidateID)
	if errors.Is(err, storage.ErrNoResume) {
		// 没有简历就没有可向量化的内容，跳过而不算失败，
		// 否则消费端会无限重投这条消息
		logger.Warn().Str("candidate_id", candidateID).Msg("候选人没有简历，跳过索引同步")
		span.SetStatus(codes.Ok, "skipped: no resume")
		return nil
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}

	doc := buildDocument(facts)
	span.SetAttributes(
		attribute.Int("candidate.skills.count", len(doc.Skills)),
		attribute.Int("candidate.experience.years", doc.TotalExperience),
	)

	if err := s.index.DeleteCandidate(ctx, candidateID); err != nil {
		// 删除失败继续插入会留下两份向量，必须中止
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if err := s.index.PutCandidate(ctx, doc); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	// 同步完成事件只做通知，发布失败不影响同步结果
	if s.publisher != nil {
		event := &types.CandidateSyncedEvent{
			CandidateID: candidateID,
			DocID:       storage.CandidateDocID(candidateID),
			SyncedAt:    doc.SyncedAt,
		}
		if err := s.publisher.PublishCandidateSynced(ctx, event); err != nil {
			logger.Warn().Err(err).Str("candidate_id", candidateID).Msg("发布候选人同步事件失败")
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete 从向量索引中移除候选人，成功后让推荐结果缓存失效
func (s *IndexSyncer) Delete(ctx context.Context, candidateID string) error {
	ctx, span := syncerTracer.Start(ctx, "IndexSyncer.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("candidate.id", candidateID))

	if err := s.index.DeleteCandidate(ctx, candidateID); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	s.invalidateResults(ctx)
	span.SetStatus(codes.Ok, "")
	return nil
}

// SyncAll 全量同步所有候选人。
// 先确保集合存在，然后按配置的并发度同步每个候选人；
// 单个候选人失败只计数，不中断批次。
func (s *IndexSyncer) SyncAll(ctx context.Context) (*types.SyncReport, error) {
	ctx, span := syncerTracer.Start(ctx, "IndexSyncer.SyncAll")
	defer span.End()

	if err := s.index.EnsureSchema(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	ids, err := s.source.ListAllCandidateIDs(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}

	report := &types.SyncReport{Total: len(ids)}
	if len(ids) == 0 {
		span.SetStatus(codes.Ok, "no candidates")
		return report, nil
	}

	// 结果只有计数，用channel收集避免锁
	resultCh := make(chan bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		candidateID := id
		g.Go(func() error {
			if err := s.syncCandidate(gctx, candidateID); err != nil {
				logger.Warn().Err(err).Str("candidate_id", candidateID).Msg("候选人同步失败，继续处理批次")
				resultCh <- false
			} else {
				resultCh <- true
			}
			return nil // 单个失败不中断批次
		})
	}
	_ = g.Wait()
	close(resultCh)

	for ok := range resultCh {
		if ok {
			report.Success++
		} else {
			report.Failed++
		}
	}

	// 批量同步只在收尾整体失效一次，避免每个候选人都扫一遍缓存
	if report.Success > 0 {
		s.invalidateResults(ctx)
	}

	span.SetAttributes(
		attribute.Int("sync.total", report.Total),
		attribute.Int("sync.success", report.Success),
		attribute.Int("sync.failed", report.Failed),
	)
	span.SetStatus(codes.Ok, "")
	logger.Info().
		Int("total", report.Total).
		Int("success", report.Success).
		Int("failed", report.Failed).
		Msg("候选人全量同步完成")
	return report, nil
}

// RecreateIndex 删除并重建集合后立即全量同步。
// 重建失败向调用方硬失败，此时索引可能处于缺失状态，需要运维介入。
func (s *IndexSyncer) RecreateIndex(ctx context.Context) (*types.SyncReport, error) {
	if err := s.index.RecreateSchema(ctx); err != nil {
		return nil, err
	}
	return s.SyncAll(ctx)
}
