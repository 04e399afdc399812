package storage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"talent-match-go/internal/config"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 关系型数据库，岗位与候选人的事实来源
	MySQL *MySQL

	// 向量索引
	Weaviate *Weaviate

	// 键值存储，推荐结果缓存与分布式锁
	Redis *Redis

	// 消息队列，候选人变更事件
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器。
// MySQL和Weaviate是推荐链路的硬依赖；Redis和RabbitMQ初始化失败时降级运行。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var err error
	var initErrors []string

	// 初始化MySQL
	if cfg.MySQL.Host != "" {
		log.Printf("初始化MySQL...")
		storage.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			log.Printf("警告: 初始化MySQL失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		}
	}

	// 初始化Weaviate
	if cfg.Weaviate.Endpoint != "" {
		log.Printf("初始化Weaviate...")
		storage.Weaviate, err = NewWeaviate(&cfg.Weaviate)
		if err != nil {
			log.Printf("警告: 初始化Weaviate失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("Weaviate: %v", err))
		}
	}

	// 初始化Redis (如果配置了)
	if cfg.Redis.Address != "" {
		log.Printf("初始化Redis at %s...", cfg.Redis.Address)
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Printf("警告: 初始化Redis失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	} else {
		log.Printf("Redis未配置, 跳过初始化.")
	}

	// 初始化RabbitMQ（如果配置了）
	if cfg.RabbitMQ.URL != "" {
		log.Printf("初始化RabbitMQ...")
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.Printf("警告: 初始化RabbitMQ失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		} else if err := storage.RabbitMQ.SetupCandidateEventTopology(); err != nil {
			log.Printf("警告: 声明候选人事件拓扑失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ topology: %v", err))
		}
	}

	// 硬依赖缺失直接失败，推荐链路无法运行
	if storage.MySQL == nil || storage.Weaviate == nil {
		return nil, fmt.Errorf("核心存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}

	// 如果有可选组件初始化失败，记录警告后降级运行
	if len(initErrors) > 0 {
		log.Printf("警告: 以下存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}

	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	// 关闭RabbitMQ连接
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}

	// 关闭MySQL连接
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Printf("关闭MySQL连接失败: %v", err)
		}
	}

	// 关闭Redis连接
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
	// Weaviate走HTTP短连接，无需显式关闭
}
