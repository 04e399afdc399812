// Package events 消费候选人变更事件，驱动向量索引的增量同步。
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/logger"
	"talent-match-go/internal/recommend"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/types"
)

// 单条事件处理的超时时间
const handleTimeout = 30 * time.Second

// CandidateConsumer 候选人同步队列的消费者。
// candidate.updated触发增量同步，candidate.deleted触发索引删除。
type CandidateConsumer struct {
	mq     *storage.RabbitMQ
	syncer *recommend.IndexSyncer
	cfg    *config.RabbitMQConfig
}

// NewCandidateConsumer 创建消费者
func NewCandidateConsumer(mq *storage.RabbitMQ, syncer *recommend.IndexSyncer, cfg *config.RabbitMQConfig) *CandidateConsumer {
	return &CandidateConsumer{mq: mq, syncer: syncer, cfg: cfg}
}

// Start 启动消费，返回停止通道（关闭即停止消费）
func (c *CandidateConsumer) Start() (<-chan struct{}, error) {
	prefetch := c.cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 10
	}
	return c.mq.StartConsumer(c.cfg.CandidateSyncQueue, prefetch, c.handle)
}

// handle 处理单条消息。返回false时消息会被Nack并重新入队。
// 无法解析的消息直接确认丢弃，重新入队只会无限循环。
func (c *CandidateConsumer) handle(body []byte) bool {
	var envelope types.CandidateEventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		logger.Error().Err(err).Str("body", string(body)).Msg("候选人事件解析失败，丢弃消息")
		return true
	}
	if envelope.CandidateID == "" {
		logger.Error().Str("body", string(body)).Msg("候选人事件缺少candidate_id，丢弃消息")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	switch envelope.EventType {
	case types.EventCandidateUpdated:
		if err := c.syncer.Sync(ctx, envelope.CandidateID); err != nil {
			if errors.Is(err, storage.ErrCandidateNotFound) {
				// 事件在途期间候选人已被删除，重投无意义
				logger.Warn().Str("candidate_id", envelope.CandidateID).Msg("候选人已不存在，丢弃同步事件")
				return true
			}
			logger.Warn().Err(err).Str("candidate_id", envelope.CandidateID).Msg("候选人增量同步失败，消息重新入队")
			return false
		}
		logger.Info().Str("candidate_id", envelope.CandidateID).Msg("候选人增量同步完成")
		return true

	case types.EventCandidateDeleted:
		if err := c.syncer.Delete(ctx, envelope.CandidateID); err != nil {
			logger.Warn().Err(err).Str("candidate_id", envelope.CandidateID).Msg("候选人索引删除失败，消息重新入队")
			return false
		}
		logger.Info().Str("candidate_id", envelope.CandidateID).Msg("候选人索引删除完成")
		return true

	default:
		logger.Warn().Str("event_type", envelope.EventType).Msg("未知的候选人事件类型，丢弃消息")
		return true
	}
}
