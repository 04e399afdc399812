package handler

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"

	"talent-match-go/internal/constants"
	"talent-match-go/internal/recommend"
	"talent-match-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RecommendHandler 负责候选人推荐与索引管理相关的请求
type RecommendHandler struct {
	storage  *storage.Storage
	pipeline *recommend.Pipeline
	syncer   *recommend.IndexSyncer
	logger   *log.Logger
}

// NewRecommendHandler 创建一个新的 RecommendHandler 实例
func NewRecommendHandler(storage *storage.Storage, pipeline *recommend.Pipeline, syncer *recommend.IndexSyncer) *RecommendHandler {
	return &RecommendHandler{
		storage:  storage,
		pipeline: pipeline,
		syncer:   syncer,
		logger:   log.New(os.Stdout, "[RecommendHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// HandleGetRecommendations 处理岗位候选人推荐请求。
// GET /api/v1/recruiter/jobs/:job_id/recommendations?max_candidates=10&min_match_score=0.5
func (h *RecommendHandler) HandleGetRecommendations(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	maxCandidates := 0
	if v := c.Query("max_candidates"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "max_candidates 必须是正整数"})
			return
		}
		maxCandidates = n
	}

	// 负值哨兵表示未指定，显式的0是合法阈值，不能当作缺省
	minMatchScore := -1.0
	if v := c.Query("min_match_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "min_match_score 必须在 [0,1] 范围内"})
			return
		}
		minMatchScore = f
	}

	resp, err := h.pipeline.GetRecommendations(ctx, jobID, maxCandidates, minMatchScore)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "岗位不存在"})
			return
		}
		h.logger.Printf("岗位 %s 推荐计算失败: %v", jobID, err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "推荐计算失败"})
		return
	}

	c.JSON(consts.StatusOK, resp)
}

// HandleSyncCandidate 增量同步单个候选人到向量索引。
// POST /api/v1/admin/index/candidates/:candidate_id/sync
func (h *RecommendHandler) HandleSyncCandidate(ctx context.Context, c *app.RequestContext) {
	candidateID := c.Param("candidate_id")
	if candidateID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "candidate_id 不能为空"})
		return
	}

	if err := h.syncer.Sync(ctx, candidateID); err != nil {
		if errors.Is(err, storage.ErrCandidateNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "候选人不存在"})
			return
		}
		h.logger.Printf("候选人 %s 同步失败: %v", candidateID, err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "候选人同步失败"})
		return
	}

	c.JSON(consts.StatusOK, utils.H{"message": "同步成功", "candidate_id": candidateID})
}

// HandleDeleteCandidate 从向量索引中移除候选人。
// DELETE /api/v1/admin/index/candidates/:candidate_id
func (h *RecommendHandler) HandleDeleteCandidate(ctx context.Context, c *app.RequestContext) {
	candidateID := c.Param("candidate_id")
	if candidateID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "candidate_id 不能为空"})
		return
	}

	if err := h.syncer.Delete(ctx, candidateID); err != nil {
		h.logger.Printf("候选人 %s 索引删除失败: %v", candidateID, err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "候选人索引删除失败"})
		return
	}

	c.JSON(consts.StatusOK, utils.H{"message": "删除成功", "candidate_id": candidateID})
}

// HandleSyncAll 全量同步所有候选人到向量索引。
// POST /api/v1/admin/index/sync-all
// 使用分布式锁避免并发全量同步互相干扰。
func (h *RecommendHandler) HandleSyncAll(ctx context.Context, c *app.RequestContext) {
	release, acquired := h.tryLock(ctx, constants.KeySyncAllLock)
	if !acquired {
		c.JSON(consts.StatusConflict, utils.H{"error": "全量同步已在进行中，请稍后重试"})
		return
	}
	defer release()

	report, err := h.syncer.SyncAll(ctx)
	if err != nil {
		h.logger.Printf("全量同步失败: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "全量同步失败"})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"message": "全量同步完成",
		"total":   report.Total,
		"success": report.Success,
		"failed":  report.Failed,
	})
}

// HandleRecreateIndex 删除并重建候选人集合，随后立即全量同步。
// POST /api/v1/admin/index/recreate
// 破坏性管理操作：重建失败时索引可能处于缺失状态，错误直接上抛给调用方。
func (h *RecommendHandler) HandleRecreateIndex(ctx context.Context, c *app.RequestContext) {
	release, acquired := h.tryLock(ctx, constants.KeyRecreateLock)
	if !acquired {
		c.JSON(consts.StatusConflict, utils.H{"error": "索引重建已在进行中，请稍后重试"})
		return
	}
	defer release()

	report, err := h.syncer.RecreateIndex(ctx)
	if err != nil {
		h.logger.Printf("索引重建失败，索引可能处于不一致状态，需要人工介入: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "索引重建失败: " + err.Error()})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"message": "索引重建并全量同步完成",
		"total":   report.Total,
		"success": report.Success,
		"failed":  report.Failed,
	})
}

// tryLock 获取分布式锁，返回释放函数和是否成功。
// Redis不可用时放行（降级为无锁执行），锁被他人持有时拒绝。
func (h *RecommendHandler) tryLock(ctx context.Context, lockKey string) (func(), bool) {
	if h.storage == nil || h.storage.Redis == nil {
		return func() {}, true
	}

	lockValue, err := h.storage.Redis.AcquireLock(ctx, lockKey, constants.SyncLockTTL)
	if err != nil {
		h.logger.Printf("获取分布式锁 %s 失败: %v，降级为无锁执行", lockKey, err)
		return func() {}, true
	}
	if lockValue == "" {
		return nil, false
	}

	return func() {
		released, err := h.storage.Redis.ReleaseLock(ctx, lockKey, lockValue)
		if err != nil || !released {
			h.logger.Printf("释放分布式锁 %s 失败: %v, released: %v", lockKey, err, released)
		}
	}, true
}
