// Package matcher 实现岗位要求技能与候选人技能之间的匹配打分。
// 纯计算，不做任何I/O，方便在排序器和测试中直接复用。
package matcher

import (
	"strings"

	"talent-match-go/internal/config"
)

// MatchKind 单个要求技能的匹配方式
type MatchKind int

const (
	// MatchNone 未匹配
	MatchNone MatchKind = iota
	// MatchExact 精确或同义词匹配，记满分
	MatchExact
	// MatchHierarchy 仅层级匹配（候选人掌握的子技能蕴含要求的父技能），记折扣分
	MatchHierarchy
)

// Result 一次匹配的完整结果。
// MatchedSkills与MissingSkills按要求技能的原始顺序排列，
// 解释列表和Score来自同一次计算，保证数字和解释一致。
type Result struct {
	Score         float64
	MatchedSkills []string
	MissingSkills []string
}

// SkillMatcher 同义词与层级感知的技能匹配器。
// 配置在构造时归一化完成，之后只读，可被并发使用。
type SkillMatcher struct {
	// synonymGroup 归一化技能名 -> 同义词组ID
	synonymGroup map[string]int
	// impliedParents 归一化子技能 -> 其蕴含的父技能集合
	impliedParents map[string]map[string]bool
	// hierarchyCredit 仅层级匹配的折扣分
	hierarchyCredit float64
}

// NewSkillMatcher 从配置构建匹配器
func NewSkillMatcher(cfg config.MatcherConfig) *SkillMatcher {
	credit := cfg.HierarchyCredit
	if credit <= 0 || credit > 1 {
		credit = 0.5 // 默认折扣分
	}

	m := &SkillMatcher{
		synonymGroup:    make(map[string]int),
		impliedParents:  make(map[string]map[string]bool),
		hierarchyCredit: credit,
	}

	// 同义词组：组内任意技能等价
	for groupID, group := range cfg.Synonyms {
		for _, skill := range group {
			norm := normalize(skill)
			if norm == "" {
				continue
			}
			m.synonymGroup[norm] = groupID
		}
	}

	// 层级表：child -> parents
	for child, parents := range cfg.Hierarchy {
		childNorm := normalize(child)
		if childNorm == "" {
			continue
		}
		set := m.impliedParents[childNorm]
		if set == nil {
			set = make(map[string]bool)
			m.impliedParents[childNorm] = set
		}
		for _, parent := range parents {
			parentNorm := normalize(parent)
			if parentNorm != "" {
				set[parentNorm] = true
			}
		}
	}

	return m
}

// normalize 技能名归一化：去空白、转小写
func normalize(skill string) string {
	return strings.ToLower(strings.TrimSpace(skill))
}

// equivalent 判断两个归一化技能名是否精确等价（同名或同义词组）
func (m *SkillMatcher) equivalent(a, b string) bool {
	if a == b {
		return true
	}
	ga, okA := m.synonymGroup[a]
	gb, okB := m.synonymGroup[b]
	return okA && okB && ga == gb
}

// implies 判断候选人技能是否在层级上蕴含要求技能。
// 候选人掌握的具体技能（如spring）蕴含其父技能（如java）。
// 蕴含关系也对同义词组生效：要求技能的任一同义词被蕴含即算蕴含。
func (m *SkillMatcher) implies(candidate, required string) bool {
	parents := m.impliedParents[candidate]
	if len(parents) == 0 {
		return false
	}
	if parents[required] {
		return true
	}
	requiredGroup, ok := m.synonymGroup[required]
	if !ok {
		return false
	}
	for parent := range parents {
		if g, ok := m.synonymGroup[parent]; ok && g == requiredGroup {
			return true
		}
	}
	return false
}

// classify 判定单个要求技能的匹配方式
func (m *SkillMatcher) classify(required string, candidateNorms []string) MatchKind {
	kind := MatchNone
	for _, cand := range candidateNorms {
		if m.equivalent(required, cand) {
			return MatchExact
		}
		if kind == MatchNone && m.implies(cand, required) {
			kind = MatchHierarchy
		}
	}
	return kind
}

// Match 计算要求技能集与候选人技能集之间的完整匹配结果。
// 分数为加权和：精确/同义词匹配记1.0，仅层级匹配记折扣分，
// 按要求技能数归一化，上限1.0。要求集为空时视为完全匹配（1.0）。
func (m *SkillMatcher) Match(required, candidateSkills []string) Result {
	if len(required) == 0 {
		return Result{Score: 1.0, MatchedSkills: []string{}, MissingSkills: []string{}}
	}

	candidateNorms := make([]string, 0, len(candidateSkills))
	for _, c := range candidateSkills {
		if norm := normalize(c); norm != "" {
			candidateNorms = append(candidateNorms, norm)
		}
	}

	result := Result{
		MatchedSkills: []string{},
		MissingSkills: []string{},
	}

	var total float64
	seen := make(map[string]bool, len(required))
	count := 0
	for _, req := range required {
		reqNorm := normalize(req)
		if reqNorm == "" || seen[reqNorm] {
			continue
		}
		seen[reqNorm] = true
		count++

		switch m.classify(reqNorm, candidateNorms) {
		case MatchExact:
			total += 1.0
			result.MatchedSkills = append(result.MatchedSkills, req)
		case MatchHierarchy:
			total += m.hierarchyCredit
			result.MatchedSkills = append(result.MatchedSkills, req)
		default:
			result.MissingSkills = append(result.MissingSkills, req)
		}
	}

	if count == 0 {
		// 要求技能全部为空白，等同于空要求集
		result.Score = 1.0
		return result
	}

	score := total / float64(count)
	if score > 1.0 {
		score = 1.0
	}
	result.Score = score
	return result
}

// MatchScore 只计算匹配分
func (m *SkillMatcher) MatchScore(required, candidateSkills []string) float64 {
	return m.Match(required, candidateSkills).Score
}

// MatchedSkills 返回匹配上的要求技能（含层级匹配）
func (m *SkillMatcher) MatchedSkills(required, candidateSkills []string) []string {
	return m.Match(required, candidateSkills).MatchedSkills
}

// MissingSkills 返回未匹配的要求技能
func (m *SkillMatcher) MissingSkills(required, candidateSkills []string) []string {
	return m.Match(required, candidateSkills).MissingSkills
}
