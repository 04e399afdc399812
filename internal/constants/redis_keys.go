package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// RecommendModulePrefix 推荐模块
	RecommendModulePrefix = "recommend"
	// IndexModulePrefix 向量索引模块
	IndexModulePrefix = "index"

	// EntityResult 推荐结果实体
	EntityResult = "result"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyRecommendationResult 推荐结果缓存 (STRING, JSON)
	// 格式: app:recommend:result:{jobID}:{limit}:{threshold}
	KeyRecommendationResult = AppPrefix + ":" + RecommendModulePrefix + ":" + EntityResult + ":%s:%d:%.2f"

	// KeySyncAllLock 全量同步分布式锁 (STRING)
	// 格式: app:index:lock:sync_all
	KeySyncAllLock = AppPrefix + ":" + IndexModulePrefix + ":" + EntityLock + ":sync_all"

	// KeyRecreateLock 集合重建分布式锁 (STRING)
	// 格式: app:index:lock:recreate
	KeyRecreateLock = AppPrefix + ":" + IndexModulePrefix + ":" + EntityLock + ":recreate"
)
