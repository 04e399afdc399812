package types

import "time"

// 候选人事件类型，与路由键同名
const (
	EventCandidateUpdated = "candidate.updated"
	EventCandidateDeleted = "candidate.deleted"
	EventCandidateSynced  = "candidate.synced"
)

// CandidateEventEnvelope 同步队列消息的公共字段。
// 更新和删除事件路由到同一个队列，消费端按EventType分发。
type CandidateEventEnvelope struct {
	EventType   string    `json:"event_type"`
	CandidateID string    `json:"candidate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CandidateUpdatedEvent 候选人资料变更事件。
// 上游服务在候选人创建或简历更新后发布，消费端据此增量同步向量索引。
type CandidateUpdatedEvent struct {
	EventType   string    `json:"event_type"` // 固定为 EventCandidateUpdated
	CandidateID string    `json:"candidate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CandidateDeletedEvent 候选人删除事件
type CandidateDeletedEvent struct {
	EventType   string    `json:"event_type"` // 固定为 EventCandidateDeleted
	CandidateID string    `json:"candidate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CandidateSyncedEvent 候选人索引同步完成事件，供下游审计或刷新缓存
type CandidateSyncedEvent struct {
	EventType   string    `json:"event_type"` // 固定为 EventCandidateSynced
	CandidateID string    `json:"candidate_id"`
	DocID       string    `json:"doc_id"`
	SyncedAt    time.Time `json:"synced_at"`
}
