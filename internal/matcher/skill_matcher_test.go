package matcher

import (
	"testing"

	"talent-match-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher() *SkillMatcher {
	return NewSkillMatcher(config.MatcherConfig{
		Synonyms: [][]string{
			{"js", "javascript", "ecmascript"},
			{"golang", "go"},
		},
		Hierarchy: map[string][]string{
			"spring":      {"java"},
			"spring boot": {"java", "spring"},
			"gin":         {"golang"},
		},
		HierarchyCredit: 0.5,
	})
}

func TestMatchExactCaseInsensitive(t *testing.T) {
	m := newTestMatcher()

	result := m.Match([]string{"Java", "SQL"}, []string{"java", "sql", "Docker"})
	assert.InDelta(t, 1.0, result.Score, 1e-9)
	assert.Equal(t, []string{"Java", "SQL"}, result.MatchedSkills)
	assert.Empty(t, result.MissingSkills)
}

func TestMatchSynonyms(t *testing.T) {
	m := newTestMatcher()

	// js和javascript在同一同义词组内，视为精确匹配
	result := m.Match([]string{"JavaScript"}, []string{"JS"})
	assert.InDelta(t, 1.0, result.Score, 1e-9)
	assert.Equal(t, []string{"JavaScript"}, result.MatchedSkills)
}

func TestMatchHierarchyPartialCredit(t *testing.T) {
	m := newTestMatcher()

	// 候选人会spring，层级上蕴含要求的java，记0.5折扣分
	result := m.Match([]string{"Java"}, []string{"Spring"})
	assert.InDelta(t, 0.5, result.Score, 1e-9)
	assert.Equal(t, []string{"Java"}, result.MatchedSkills, "层级匹配也应出现在匹配列表中")
	assert.Empty(t, result.MissingSkills)
}

func TestMatchHierarchyThroughSynonym(t *testing.T) {
	m := newTestMatcher()

	// gin蕴含golang，golang与go同组，因此gin也应蕴含要求的go
	result := m.Match([]string{"Go"}, []string{"Gin"})
	assert.InDelta(t, 0.5, result.Score, 1e-9)
}

func TestMatchExactBeatsHierarchy(t *testing.T) {
	m := newTestMatcher()

	// 同时存在精确匹配和层级匹配时按精确匹配记满分
	result := m.Match([]string{"Java"}, []string{"Spring", "Java"})
	assert.InDelta(t, 1.0, result.Score, 1e-9)
}

func TestMatchMixed(t *testing.T) {
	m := newTestMatcher()

	// java精确(1.0) + sql缺失(0) + go层级匹配via gin(0.5) => 1.5/3 = 0.5
	result := m.Match([]string{"Java", "SQL", "Go"}, []string{"java", "gin"})
	assert.InDelta(t, 0.5, result.Score, 1e-9)
	assert.Equal(t, []string{"Java", "Go"}, result.MatchedSkills)
	assert.Equal(t, []string{"SQL"}, result.MissingSkills)
}

func TestMatchEmptyRequired(t *testing.T) {
	m := newTestMatcher()

	// 空要求集视为完全匹配，由调用方决定是否提前短路
	result := m.Match(nil, []string{"java"})
	assert.InDelta(t, 1.0, result.Score, 1e-9)
	assert.Empty(t, result.MatchedSkills)
	assert.Empty(t, result.MissingSkills)
}

func TestMatchNoCandidateSkills(t *testing.T) {
	m := newTestMatcher()

	result := m.Match([]string{"Java", "SQL"}, nil)
	assert.InDelta(t, 0.0, result.Score, 1e-9)
	assert.Empty(t, result.MatchedSkills)
	assert.Equal(t, []string{"Java", "SQL"}, result.MissingSkills)
}

func TestMatchDuplicateRequiredCountedOnce(t *testing.T) {
	m := newTestMatcher()

	// 重复的要求技能只计一次，避免虚增分母
	result := m.Match([]string{"Java", "java", "SQL"}, []string{"java"})
	assert.InDelta(t, 0.5, result.Score, 1e-9)
	assert.Equal(t, []string{"Java"}, result.MatchedSkills)
	assert.Equal(t, []string{"SQL"}, result.MissingSkills)
}

func TestMatchScoreBounds(t *testing.T) {
	m := newTestMatcher()

	cases := [][2][]string{
		{{"Java"}, {"java"}},
		{{"Java", "SQL", "Go"}, {"spring", "gin", "sql"}},
		{{"Java"}, nil},
		{nil, {"java"}},
	}
	for _, c := range cases {
		score := m.MatchScore(c[0], c[1])
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestMatchScoreMonotonicity(t *testing.T) {
	m := newTestMatcher()

	required := []string{"Java", "SQL", "Docker"}
	candidate := []string{"java"}

	base := m.MatchScore(required, candidate)
	// 候选人多掌握一项要求技能，分数不应下降
	improved := m.MatchScore(required, append([]string{"sql"}, candidate...))
	assert.GreaterOrEqual(t, improved, base)
}

func TestMatcherDefaultHierarchyCredit(t *testing.T) {
	m := NewSkillMatcher(config.MatcherConfig{
		Hierarchy: map[string][]string{"spring": {"java"}},
		// HierarchyCredit 未配置，应回退到0.5
	})
	require.NotNil(t, m)
	assert.InDelta(t, 0.5, m.MatchScore([]string{"java"}, []string{"spring"}), 1e-9)
}
