package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"talent-match-go/internal/config"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/types"

	"gorm.io/gorm"
)

// SyncedEventPublisher 把候选人同步完成事件写入outbox表，
// 由MessageRelay异步发布到消息队列。实现recommend.SyncedPublisher。
type SyncedEventPublisher struct {
	db  *gorm.DB
	cfg *config.RabbitMQConfig
}

// NewSyncedEventPublisher 创建outbox发布器
func NewSyncedEventPublisher(db *gorm.DB, cfg *config.RabbitMQConfig) *SyncedEventPublisher {
	return &SyncedEventPublisher{db: db, cfg: cfg}
}

// PublishCandidateSynced 将同步完成事件入库
func (p *SyncedEventPublisher) PublishCandidateSynced(ctx context.Context, event *types.CandidateSyncedEvent) error {
	if event.EventType == "" {
		event.EventType = types.EventCandidateSynced
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化同步事件失败: %w", err)
	}

	msg := models.OutboxMessage{
		AggregateID:      event.CandidateID,
		EventType:        event.EventType,
		Payload:          string(payload),
		TargetExchange:   p.cfg.CandidateEventExchange,
		TargetRoutingKey: p.cfg.SyncedRoutingKey,
		Status:           "PENDING",
	}
	if err := p.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("写入outbox消息失败: %w", err)
	}
	return nil
}
