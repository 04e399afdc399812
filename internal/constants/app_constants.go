package constants

import "time"

const (
	// CandidateClass 向量索引中候选人集合（class）的名称
	CandidateClass = "CandidateProfile"

	// DefaultMaxCandidates 推荐结果的默认数量上限
	DefaultMaxCandidates = 10
	// DefaultMinMatchScore 默认的最低综合匹配分（阈值为闭区间下界）
	DefaultMinMatchScore = 0.5

	// RetrievalCertaintyFloor 检索阶段的相似度下限，仅用于控制召回量，
	// 不是最终的接受阈值（阈值过滤在排序器中完成）
	RetrievalCertaintyFloor = 0.3
	// RetrievalOverfetchFactor 召回放大系数：实际请求 limit×factor 条命中，
	// 为后置过滤留出余量
	RetrievalOverfetchFactor = 3

	// DescriptionKeywordMinLen 从岗位描述提取关键词时的最小词长（不含）
	DescriptionKeywordMinLen = 3
	// DescriptionKeywordCap 从岗位描述提取关键词的数量上限
	DescriptionKeywordCap = 20

	// RecreateSchemaWait 删除集合后的等待时间，外部存储可能异步处理删除
	RecreateSchemaWait = 2 * time.Second

	// RecommendationCacheTTL 推荐结果缓存的有效期
	RecommendationCacheTTL = 10 * time.Minute
	// SyncLockTTL 全量同步/重建集合的分布式锁有效期
	SyncLockTTL = 10 * time.Minute
)
