package router

import (
	"context"

	"talent-match-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, recommendHandler *handler.RecommendHandler, adminKey string) {
	api := h.Group("/api/v1")

	// 招聘端：岗位候选人推荐
	recruiter := api.Group("/recruiter")
	recruiter.GET("/jobs/:job_id/recommendations", recommendHandler.HandleGetRecommendations)

	// 管理端：向量索引生命周期，Bearer密钥保护
	admin := api.Group("/admin")
	if adminKey != "" {
		admin.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
				return key == adminKey, nil
			}),
		))
	}
	admin.POST("/index/candidates/:candidate_id/sync", recommendHandler.HandleSyncCandidate)
	admin.DELETE("/index/candidates/:candidate_id", recommendHandler.HandleDeleteCandidate)
	admin.POST("/index/sync-all", recommendHandler.HandleSyncAll)
	admin.POST("/index/recreate", recommendHandler.HandleRecreateIndex)

	// 添加健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}
