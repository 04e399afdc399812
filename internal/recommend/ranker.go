// Package recommend 实现候选人推荐的核心链路：
// 技能解析、语义检索、技能匹配、分数融合排序以及向量索引同步。
package recommend

import (
	"fmt"
	"math"
	"sort"

	"talent-match-go/internal/matcher"
	"talent-match-go/internal/types"
)

// 排序策略名，来自生产中观测到的两种打分行为，必须通过配置显式选择
const (
	StrategyFusion    = "fusion"     // 技能分+语义相似度加权，再乘经验系数
	StrategySkillOnly = "skill_only" // 纯技能匹配分，不使用语义相似度和经验系数
)

// Ranker 对检索命中结果做打分、过滤、排序和截断
type Ranker interface {
	// Rank 返回按综合得分排好序的结果，过滤掉低于threshold的项（含等于threshold的保留），
	// 最多返回limit条。
	Rank(hits []types.RetrievalHit, requiredSkills []string, minExperience, limit int, threshold float64) []types.MatchResult
}

// NewRanker 按策略名构建排序器
func NewRanker(strategy string, m *matcher.SkillMatcher, weights types.ScoringWeights) (Ranker, error) {
	switch strategy {
	case StrategyFusion:
		return &FusionRanker{matcher: m, weights: weights}, nil
	case StrategySkillOnly:
		return &SkillOnlyRanker{matcher: m}, nil
	default:
		return nil, fmt.Errorf("未知的排序策略: %q (可选: %s, %s)", strategy, StrategyFusion, StrategySkillOnly)
	}
}

// experienceFactor 经验系数：
//   - 岗位无经验要求时恒为1.0
//   - 达标时每超出一年加2%，上限1.2
//   - 不达标时按完成度在0.8~1.0之间线性给分
func experienceFactor(candidateExperience, minExperience int) float64 {
	if minExperience == 0 {
		return 1.0
	}
	if candidateExperience >= minExperience {
		return math.Min(1.2, 1.0+float64(candidateExperience-minExperience)*0.02)
	}
	return 0.8 + float64(candidateExperience)/float64(minExperience)*0.2
}

// buildResult 从命中结果和技能匹配结果组装MatchResult。
// 解释列表与分数必须来自同一次匹配计算。
func buildResult(hit types.RetrievalHit, sm matcher.Result, combined float64) types.MatchResult {
	return types.MatchResult{
		CandidateID:     hit.CandidateID,
		CandidateName:   hit.CandidateName,
		Email:           hit.Email,
		MatchScore:      combined,
		MatchedSkills:   sm.MatchedSkills,
		MissingSkills:   sm.MissingSkills,
		TotalExperience: hit.TotalExperience,
		ProfileSummary:  hit.AboutMe,
	}
}

// finalize 过滤、排序、截断。
// 阈值为包含下界；排序先按综合得分降序，分数相同按工作年限降序，
// 两者都相同时保持原始检索顺序（稳定排序），保证结果确定性。
func finalize(results []types.MatchResult, limit int, threshold float64) []types.MatchResult {
	filtered := make([]types.MatchResult, 0, len(results))
	for _, r := range results {
		if r.MatchScore >= threshold {
			filtered = append(filtered, r)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].MatchScore != filtered[j].MatchScore {
			return filtered[i].MatchScore > filtered[j].MatchScore
		}
		return filtered[i].TotalExperience > filtered[j].TotalExperience
	})

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// FusionRanker 加权融合排序器：
// combined = min(1.0, (skillScore×W_skill + certainty×W_semantic) × experienceFactor)
type FusionRanker struct {
	matcher *matcher.SkillMatcher
	weights types.ScoringWeights
}

// Rank 实现Ranker接口
func (r *FusionRanker) Rank(hits []types.RetrievalHit, requiredSkills []string, minExperience, limit int, threshold float64) []types.MatchResult {
	results := make([]types.MatchResult, 0, len(hits))
	for _, hit := range hits {
		sm := r.matcher.Match(requiredSkills, hit.Skills)
		factor := experienceFactor(hit.TotalExperience, minExperience)
		combined := (sm.Score*r.weights.SkillWeight + hit.Certainty*r.weights.SemanticWeight) * factor
		combined = math.Min(1.0, combined)
		if combined < 0 {
			combined = 0
		}
		results = append(results, buildResult(hit, sm, combined))
	}
	return finalize(results, limit, threshold)
}

// SkillOnlyRanker 纯技能分排序器：只看技能匹配度，
// 经验年限交给招聘方自行判断，不参与打分。
type SkillOnlyRanker struct {
	matcher *matcher.SkillMatcher
}

// Rank 实现Ranker接口
func (r *SkillOnlyRanker) Rank(hits []types.RetrievalHit, requiredSkills []string, minExperience, limit int, threshold float64) []types.MatchResult {
	results := make([]types.MatchResult, 0, len(hits))
	for _, hit := range hits {
		sm := r.matcher.Match(requiredSkills, hit.Skills)
		results = append(results, buildResult(hit, sm, sm.Score))
	}
	return finalize(results, limit, threshold)
}
