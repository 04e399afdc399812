package types

import "time"

// CandidateDocument 候选人在向量索引中的文档表示。
// 该文档由索引同步器整体拥有：每次同步都会完整覆盖（先删后插），候选人删除时移除。
type CandidateDocument struct {
	CandidateID     string    `json:"candidateId"`
	CandidateName   string    `json:"candidateName"`
	Email           string    `json:"email"`
	Skills          []string  `json:"skills"`
	TotalExperience int       `json:"totalExperience"` // 总工作年限（非负整数）
	AboutMe         string    `json:"aboutMe"`
	SyncedAt        time.Time `json:"syncedAt"`
}

// RetrievalHit 语义检索返回的单个命中结果。
// 按查询逐次产生，不做持久化。Certainty 为向量索引返回的相似度，取值范围 [0,1]。
type RetrievalHit struct {
	CandidateID     string
	CandidateName   string
	Email           string
	Skills          []string
	TotalExperience int
	AboutMe         string
	Certainty       float64
}

// MatchResult 单个候选人的最终匹配结果，构建后不再修改。
// MatchedSkills 与 MissingSkills 必须来自计算 MatchScore 的同一次技能匹配，
// 保证解释与分数一致。
type MatchResult struct {
	CandidateID     string   `json:"candidate_id"`
	CandidateName   string   `json:"candidate_name"`
	Email           string   `json:"email"`
	MatchScore      float64  `json:"match_score"` // 综合得分，范围 [0,1]
	MatchedSkills   []string `json:"matched_skills"`
	MissingSkills   []string `json:"missing_skills"`
	TotalExperience int      `json:"total_years_experience"`
	ProfileSummary  string   `json:"profile_summary"`
}

// RecommendationResponse 推荐接口的响应体。
type RecommendationResponse struct {
	JobID            string        `json:"job_id"`
	JobTitle         string        `json:"job_title"`
	TotalFound       int           `json:"total_candidates_found"`
	Recommendations  []MatchResult `json:"recommendations"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
}

// ScoringWeights 分数融合权重配置。
// 两个主权重之和按约定不超过1，保证经验系数放大后综合得分仍有界（不做结构性强制）。
type ScoringWeights struct {
	SkillWeight    float64 `yaml:"skill_weight"`    // 技能匹配分量权重，推荐 0.5
	SemanticWeight float64 `yaml:"semantic_weight"` // 语义相似度分量权重，推荐 0.4
}

// CandidateFacts 从数据源加载的候选人事实，用于构建索引文档。
type CandidateFacts struct {
	CandidateID string
	Name        string
	Email       string
	Skills      []string
	AboutMe     string
	Experiences []WorkSpan
}

// WorkSpan 单段工作经历的起止时间，缺少任一端的经历对总年限贡献为零。
type WorkSpan struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// SyncReport syncAll 的批量结果，单个候选人的失败只计数，不中断批次。
type SyncReport struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}
