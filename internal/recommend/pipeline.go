package recommend

import (
	"context"
	"strings"
	"time"
	"unicode"

	"talent-match-go/internal/constants"
	"talent-match-go/internal/logger"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var pipelineTracer = otel.Tracer("talent-match-go/recommend/pipeline")

// JobSource 岗位事实的数据源
type JobSource interface {
	GetJobPosting(ctx context.Context, jobID string) (*models.JobPosting, error)
	GetJobRequiredSkills(ctx context.Context, jobID string) ([]string, error)
}

// Retriever 向量索引的语义检索端
type Retriever interface {
	SearchCandidates(ctx context.Context, query string, limit int, certaintyFloor float64) ([]types.RetrievalHit, error)
}

// ResultCache 推荐结果缓存，允许为空（不缓存）
type ResultCache interface {
	GetCachedRecommendation(ctx context.Context, jobID string, limit int, threshold float64) (*types.RecommendationResponse, error)
	CacheRecommendation(ctx context.Context, jobID string, limit int, threshold float64, resp *types.RecommendationResponse, ttl time.Duration) error
}

// PipelineOptions 推荐链路的调优参数
type PipelineOptions struct {
	OverfetchFactor int           // 召回放大系数
	CertaintyFloor  float64       // 检索阶段相似度下限，仅控制召回量
	DefaultLimit    int           // 请求未指定时的返回条数
	DefaultMinScore float64       // 请求未指定时的最低综合得分
	CacheTTL        time.Duration // 结果缓存有效期
}

// applyDefaults 填充未设置的调优参数
func (o *PipelineOptions) applyDefaults() {
	if o.OverfetchFactor <= 0 {
		o.OverfetchFactor = constants.RetrievalOverfetchFactor
	}
	if o.CertaintyFloor <= 0 {
		o.CertaintyFloor = constants.RetrievalCertaintyFloor
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = constants.DefaultMaxCandidates
	}
	if o.DefaultMinScore <= 0 {
		o.DefaultMinScore = constants.DefaultMinMatchScore
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = constants.RecommendationCacheTTL
	}
}

// Pipeline 推荐编排器：解析岗位要求技能 -> 语义检索 -> 匹配打分排序。
// 请求之间无共享可变状态，可被并发调用。
type Pipeline struct {
	jobs      JobSource
	retriever Retriever
	ranker    Ranker
	cache     ResultCache // 可选
	opts      PipelineOptions
}

// NewPipeline 创建推荐链路
func NewPipeline(jobs JobSource, retriever Retriever, ranker Ranker, cache ResultCache, opts PipelineOptions) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{
		jobs:      jobs,
		retriever: retriever,
		ranker:    ranker,
		cache:     cache,
		opts:      opts,
	}
}

// ResolveRequiredSkills 解析岗位的要求技能集，按可信度逐级回退：
// 结构化技能标签 -> 岗位行上的技能关键词快照 -> 描述文本的关键词提取。
// 返回值永不为nil，空集由调用方短路处理。
func (p *Pipeline) ResolveRequiredSkills(ctx context.Context, job *models.JobPosting) ([]string, error) {
	skills, err := p.jobs.GetJobRequiredSkills(ctx, job.JobID)
	if err != nil {
		return nil, err
	}
	if len(skills) > 0 {
		return skills, nil
	}
	if snapshot := normalizeSkillTerms(job.SkillsKeywords()); len(snapshot) > 0 {
		return snapshot, nil
	}
	return extractDescriptionKeywords(job.Description), nil
}

// normalizeSkillTerms 清洗技能词列表：去首尾空白、丢弃空项、
// 大小写不敏感去重并保持首次出现顺序。
func normalizeSkillTerms(terms []string) []string {
	cleaned := make([]string, 0, len(terms))
	seen := make(map[string]bool)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		lower := strings.ToLower(term)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		cleaned = append(cleaned, term)
	}
	return cleaned
}

// extractDescriptionKeywords 从自由文本描述中提取有界的关键词集合：
// 字母数字token，长度超过3个字符，去重后保持首次出现顺序，上限20个。
func extractDescriptionKeywords(description string) []string {
	tokens := strings.FieldsFunc(description, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	keywords := make([]string, 0, constants.DescriptionKeywordCap)
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if len([]rune(tok)) <= constants.DescriptionKeywordMinLen {
			continue
		}
		lower := strings.ToLower(tok)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		keywords = append(keywords, lower)
		if len(keywords) >= constants.DescriptionKeywordCap {
			break
		}
	}
	return keywords
}

// GetRecommendations 为岗位返回排好序的候选人推荐列表。
// limit传0或负值使用配置默认条数；threshold传负值使用配置默认阈值，
// 0是合法的显式下界（不过滤任何结果），不会被默认值覆盖。
// 岗位不存在返回storage.ErrJobNotFound；检索失败降级为空结果，不中断请求。
func (p *Pipeline) GetRecommendations(ctx context.Context, jobID string, limit int, threshold float64) (*types.RecommendationResponse, error) {
	ctx, span := pipelineTracer.Start(ctx, "Pipeline.GetRecommendations")
	defer span.End()

	start := time.Now()

	if limit <= 0 {
		limit = p.opts.DefaultLimit
	}
	if threshold < 0 {
		threshold = p.opts.DefaultMinScore
	}
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("request.limit", limit),
		attribute.Float64("request.threshold", threshold),
	)

	// 缓存命中直接返回
	if p.cache != nil {
		if cached, err := p.cache.GetCachedRecommendation(ctx, jobID, limit, threshold); err == nil && cached != nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			span.SetStatus(codes.Ok, "cache hit")
			return cached, nil
		} else if err != nil && err != storage.ErrNotFound {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("读取推荐缓存失败，回退到重新计算")
		}
	}

	job, err := p.jobs.GetJobPosting(ctx, jobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}

	requiredSkills, err := p.ResolveRequiredSkills(ctx, job)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}
	span.SetAttributes(attribute.Int("job.required_skills.count", len(requiredSkills)))

	resp := &types.RecommendationResponse{
		JobID:           job.JobID,
		JobTitle:        job.Title,
		Recommendations: []types.MatchResult{},
	}

	// 无可用的要求技能时短路：不发检索请求，返回合法的空结果
	if len(requiredSkills) == 0 {
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
		span.AddEvent("empty_criteria_short_circuit")
		span.SetStatus(codes.Ok, "no required skills")
		return resp, nil
	}

	// 放大召回量，为后续融合打分的重排留出余量
	query := strings.Join(requiredSkills, " ")
	hits, err := p.retriever.SearchCandidates(ctx, query, limit*p.opts.OverfetchFactor, p.opts.CertaintyFloor)
	if err != nil {
		// 检索失败降级为空结果，记录后请求仍然成功
		logger.Error().Err(err).Str("job_id", jobID).Msg("候选人语义检索失败，返回空推荐列表")
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
		return resp, nil
	}
	span.SetAttributes(attribute.Int("retrieval.hits.count", len(hits)))

	resp.Recommendations = p.ranker.Rank(hits, requiredSkills, job.MinYearsExperience, limit, threshold)
	resp.TotalFound = len(resp.Recommendations)
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()

	// 缓存写入尽力而为
	if p.cache != nil {
		if err := p.cache.CacheRecommendation(ctx, jobID, limit, threshold, resp, p.opts.CacheTTL); err != nil {
			logger.Warn().Err(err).Str("job_id", jobID).Msg("写入推荐缓存失败")
		}
	}

	span.SetAttributes(attribute.Int("response.total_found", resp.TotalFound))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}
