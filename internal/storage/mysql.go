package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("talent-match-go/storage/mysql")

// 数据源相关的哨兵错误
var (
	// ErrJobNotFound 岗位在数据源中不存在
	ErrJobNotFound = errors.New("job posting not found")
	// ErrCandidateNotFound 候选人在数据源中不存在
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrNoResume 候选人没有简历，无法同步到向量索引
	ErrNoResume = errors.New("candidate has no resume")
)

type gormSpanKey struct{}

// GormTracingPlugin 向GORM操作注入OpenTelemetry追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: mysqlTracer,
		dbName: dbName,
	}
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, _ := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, trace.SpanFromContext(newCtx))
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		// ErrRecordNotFound 是业务逻辑的正常情况，不作为错误上报
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

// MySQL 提供候选人与岗位事实数据的访问
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册GORM追踪插件失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层sql.DB失败: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	return &MySQL{db: db, cfg: cfg}, nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate 创建/更新核心表结构
func (m *MySQL) AutoMigrate() error {
	return m.db.AutoMigrate(
		&models.JobPosting{},
		&models.JobSkill{},
		&models.Candidate{},
		&models.Resume{},
		&models.ResumeSkill{},
		&models.WorkExperience{},
		&models.OutboxMessage{},
	)
}

// GetJobPosting 获取岗位信息，不存在时返回ErrJobNotFound
func (m *MySQL) GetJobPosting(ctx context.Context, jobID string) (*models.JobPosting, error) {
	var job models.JobPosting
	err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("岗位 %s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("查询岗位 %s 失败: %w", jobID, err)
	}
	return &job, nil
}

// GetJobRequiredSkills 返回岗位的结构化技能标签，按录入顺序排列并做大小写不敏感去重。
// 岗位没有技能标签时返回空切片（调用方回退到描述文本关键词提取）。
func (m *MySQL) GetJobRequiredSkills(ctx context.Context, jobID string) ([]string, error) {
	var rows []models.JobSkill
	err := m.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("ordinal ASC, job_skill_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位 %s 技能标签失败: %w", jobID, err)
	}

	skills := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.SkillName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, name)
	}
	return skills, nil
}

// GetCandidateFacts 加载构建索引文档所需的候选人事实。
// 候选人不存在返回ErrCandidateNotFound；没有简历返回ErrNoResume。
func (m *MySQL) GetCandidateFacts(ctx context.Context, candidateID string) (*types.CandidateFacts, error) {
	var candidate models.Candidate
	err := m.db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&candidate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("候选人 %s: %w", candidateID, ErrCandidateNotFound)
		}
		return nil, fmt.Errorf("查询候选人 %s 失败: %w", candidateID, err)
	}

	var resume models.Resume
	err = m.db.WithContext(ctx).
		Preload("Skills").
		Preload("WorkExperiences").
		Where("candidate_id = ?", candidateID).
		First(&resume).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("候选人 %s: %w", candidateID, ErrNoResume)
		}
		return nil, fmt.Errorf("查询候选人 %s 简历失败: %w", candidateID, err)
	}

	skills := make([]string, 0, len(resume.Skills))
	for _, s := range resume.Skills {
		if name := strings.TrimSpace(s.SkillName); name != "" {
			skills = append(skills, name)
		}
	}

	spans := make([]types.WorkSpan, 0, len(resume.WorkExperiences))
	for _, we := range resume.WorkExperiences {
		spans = append(spans, types.WorkSpan{StartDate: we.StartDate, EndDate: we.EndDate})
	}

	return &types.CandidateFacts{
		CandidateID: candidate.CandidateID,
		Name:        candidate.FullName,
		Email:       candidate.Email,
		Skills:      skills,
		AboutMe:     resume.AboutMe,
		Experiences: spans,
	}, nil
}

// ListAllCandidateIDs 返回全部候选人ID，供全量同步使用
func (m *MySQL) ListAllCandidateIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := m.db.WithContext(ctx).
		Model(&models.Candidate{}).
		Order("candidate_id ASC").
		Pluck("candidate_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询候选人ID列表失败: %w", err)
	}
	return ids, nil
}
