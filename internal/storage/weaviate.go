package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// 定义Weaviate的专用tracer
var weaviateTracer = otel.Tracer("talent-match-go/storage/weaviate")

// CandidateDocNamespace 用于生成确定性候选人文档ID的专用命名空间。
// 同一候选人ID总是映射到同一个文档ID，保证同步操作的幂等性。
var CandidateDocNamespace = uuid.Must(uuid.FromString("9b1c8f0e-2d47-4a21-b3a5-6f0d8e4c7a52"))

// CandidateDocID 根据候选人ID计算向量索引中的文档ID
func CandidateDocID(candidateID string) string {
	return uuid.NewV5(CandidateDocNamespace, candidateID).String()
}

// ErrClassNotFound 集合在向量索引中不存在
var ErrClassNotFound = fmt.Errorf("weaviate class not found")

// VectorIndex 向量索引接口
type VectorIndex interface {
	// EnsureSchema 确保候选人集合存在，不存在则创建
	EnsureSchema(ctx context.Context) error

	// RecreateSchema 删除并重建候选人集合（破坏性操作，调用方需随后触发全量同步）
	RecreateSchema(ctx context.Context) error

	// PutCandidate 写入候选人文档（调用方负责先删除旧文档）
	PutCandidate(ctx context.Context, doc *types.CandidateDocument) error

	// DeleteCandidate 删除候选人文档，文档不存在视为成功
	DeleteCandidate(ctx context.Context, candidateID string) error

	// SearchCandidates 对候选人集合发起nearText语义检索
	SearchCandidates(ctx context.Context, query string, limit int, certaintyFloor float64) ([]types.RetrievalHit, error)
}

// 确保Weaviate实现了VectorIndex接口
var _ VectorIndex = (*Weaviate)(nil)

// Weaviate 提供向量索引功能，通过REST/GraphQL协议访问
type Weaviate struct {
	endpoint     string
	apiKey       string
	class        string
	recreateWait time.Duration
	httpClient   *http.Client
}

// WeaviateOption 定义Weaviate构造函数选项
type WeaviateOption func(*Weaviate)

// WithWeaviateTimeout 设置HTTP客户端超时
func WithWeaviateTimeout(timeout time.Duration) WeaviateOption {
	return func(w *Weaviate) {
		w.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithRecreateWait 设置删除集合后的等待时间
func WithRecreateWait(wait time.Duration) WeaviateOption {
	return func(w *Weaviate) {
		w.recreateWait = wait
	}
}

// NewWeaviate 创建Weaviate客户端
func NewWeaviate(cfg *config.WeaviateConfig, opts ...WeaviateOption) (*Weaviate, error) {
	if cfg == nil {
		return nil, fmt.Errorf("weaviate配置不能为空")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:8081" // 默认端点
	}

	class := cfg.Class
	if class == "" {
		class = "CandidateProfile" // 默认集合名
	}

	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	recreateWait := 2 * time.Second
	if cfg.RecreateWaitMS > 0 {
		recreateWait = time.Duration(cfg.RecreateWaitMS) * time.Millisecond
	}

	w := &Weaviate{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       cfg.APIKey,
		class:        class,
		recreateWait: recreateWait,
		httpClient:   &http.Client{Timeout: timeout},
	}

	// 应用选项
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Class 返回候选人集合名称
func (w *Weaviate) Class() string {
	return w.class
}

// classExists 检查候选人集合是否存在
func (w *Weaviate) classExists(ctx context.Context) (bool, error) {
	ctx, span := weaviateTracer.Start(ctx, "Weaviate.ClassExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", w.endpoint),
		attribute.String("db.system", "weaviate"),
		attribute.String("db.operation", "get_schema"),
		attribute.String("db.collection", w.class),
	)

	resp, body, err := w.doRaw(ctx, http.MethodGet, "/v1/schema/"+w.class, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return false, fmt.Errorf("检查集合失败: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		span.SetStatus(codes.Ok, "")
		return true, nil
	case http.StatusNotFound:
		span.AddEvent("class_not_found")
		span.SetStatus(codes.Ok, "")
		return false, nil
	default:
		err := fmt.Errorf("检查集合失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return false, err
	}
}

// EnsureSchema 确保候选人集合存在；不存在则按固定字段定义创建。
// skills和aboutMe参与向量化，其余字段（ID、姓名、邮箱、年限、时间戳）跳过向量化。
func (w *Weaviate) EnsureSchema(ctx context.Context) error {
	ctx, span := weaviateTracer.Start(ctx, "Weaviate.EnsureSchema",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "weaviate"),
		attribute.String("db.operation", "ensure_schema"),
		attribute.String("db.collection", w.class),
	)

	exists, err := w.classExists(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if exists {
		span.SetStatus(codes.Ok, "class already exists")
		return nil
	}

	log.Printf("集合 '%s' 不存在，将创建新集合", w.class)

	// 按字段控制向量化：skip=true的字段不进入向量
	vectorized := map[string]interface{}{
		"text2vec-weaviate": map[string]interface{}{
			"skip":                  false,
			"vectorizePropertyName": false,
		},
	}
	skipped := map[string]interface{}{
		"text2vec-weaviate": map[string]interface{}{
			"skip":                  true,
			"vectorizePropertyName": false,
		},
	}

	property := func(name, dataType, description string, moduleConfig map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"name":         name,
			"dataType":     []string{dataType},
			"description":  description,
			"moduleConfig": moduleConfig,
		}
	}

	classBody := map[string]interface{}{
		"class":       w.class,
		"description": "Candidate profiles with skills and experience for semantic matching",
		"vectorizer":  "text2vec-weaviate",
		"moduleConfig": map[string]interface{}{
			"text2vec-weaviate": map[string]interface{}{
				"vectorizeClassName": false,
			},
		},
		"properties": []interface{}{
			property("candidateId", "text", "Unique candidate identifier", skipped),
			property("candidateName", "text", "Candidate full name", skipped),
			property("email", "text", "Candidate email address", skipped),
			property("skills", "text[]", "List of candidate skills - vectorized for semantic search", vectorized),
			property("totalExperience", "int", "Total years of experience", skipped),
			property("aboutMe", "text", "Candidate profile summary - vectorized for semantic search", vectorized),
			property("syncedAt", "text", "Last sync timestamp", skipped),
		},
	}

	resp, body, err := w.doRaw(ctx, http.MethodPost, "/v1/schema", classBody)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("创建集合失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("创建集合失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	span.SetStatus(codes.Ok, "")
	log.Printf("已成功创建Weaviate集合: %s", w.class)
	return nil
}

// RecreateSchema 删除并重建候选人集合。
// 删除时404视为成功；外部存储可能异步处理删除，因此重建前等待一段有界时间。
// 调用方必须在成功后触发全量同步，否则索引为空。
func (w *Weaviate) RecreateSchema(ctx context.Context) error {
	ctx, span := weaviateTracer.Start(ctx, "Weaviate.RecreateSchema",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "weaviate"),
		attribute.String("db.operation", "recreate_schema"),
		attribute.String("db.collection", w.class),
	)

	resp, body, err := w.doRaw(ctx, http.MethodDelete, "/v1/schema/"+w.class, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("删除集合失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		err := fmt.Errorf("删除集合失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		span.AddEvent("class_not_found_on_delete")
	} else {
		log.Printf("已删除Weaviate集合: %s", w.class)
	}

	// 等待外部存储完成删除
	select {
	case <-ctx.Done():
		err := ctx.Err()
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	case <-time.After(w.recreateWait):
	}

	if err := w.EnsureSchema(ctx); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("重建集合失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	log.Printf("Weaviate集合 %s 重建完成，请触发候选人全量同步", w.class)
	return nil
}

// PutCandidate 写入候选人文档，文档ID由候选人ID确定性派生
func (w *Weaviate) PutCandidate(ctx context.Context, doc *types.CandidateDocument) error {
	ctx, span := weaviateTracer.Start(ctx, "Weaviate.PutCandidate",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "weaviate"),
		attribute.String("db.operation", "put_object"),
		attribute.String("db.collection", w.class),
		attribute.String("candidate.id", doc.CandidateID),
		attribute.Int("candidate.skills.count", len(doc.Skills)),
	)

	skills := doc.Skills
	if skills == nil {
		skills = []string{}
	}

	objBody := map[string]interface{}{
		"class": w.class,
		"id":    CandidateDocID(doc.CandidateID),
		"properties": map[string]interface{}{
			"candidateId":     doc.CandidateID,
			"candidateName":   doc.CandidateName,
			"email":           doc.Email,
			"skills":          skills,
			"totalExperience": doc.TotalExperience,
			"aboutMe":         doc.AboutMe,
			"syncedAt":        doc.SyncedAt.Format(time.RFC3339),
		},
	}

	resp, body, err := w.doRaw(ctx, http.MethodPost, "/v1/objects", objBody)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("写入候选人文档失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("写入候选人文档失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// DeleteCandidate 删除候选人文档，404视为成功（文档本就不存在）
func (w *Weaviate) DeleteCandidate(ctx context.Context, candidateID string) error {
	ctx, span := weaviateTracer.Start(ctx, "Weaviate.DeleteCandidate",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "weaviate"),
		attribute.String("db.operation", "delete_object"),
		attribute.String("db.collection", w.class),
		attribute.String("candidate.id", candidateID),
	)

	docID := CandidateDocID(candidateID)
	resp, body, err := w.doRaw(ctx, http.MethodDelete, "/v1/objects/"+w.class+"/"+docID, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("删除候选人文档失败: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		span.SetStatus(codes.Ok, "")
		return nil
	case http.StatusNotFound:
		span.AddEvent("object_not_found")
		span.SetStatus(codes.Ok, "object already absent")
		return nil
	default:
		err := fmt.Errorf("删除候选人文档失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}
}

// graphqlHit GraphQL查询返回的单个候选人对象
type graphqlHit struct {
	CandidateID     string   `json:"candidateId"`
	CandidateName   string   `json:"candidateName"`
	Email           string   `json:"email"`
	Skills          []string `json:"skills"`
	TotalExperience int      `json:"totalExperience"`
	AboutMe         string   `json:"aboutMe"`
	Additional      struct {
		Certainty *float64 `json:"certainty"`
		Distance  *float64 `json:"distance"`
	} `json:"_additional"`
}

// graphqlResponse GraphQL响应的类型化表示。
// 形状不符时解码为空值，调用方按空结果处理（fail-closed）。
type graphqlResponse struct {
	Data struct {
		Get map[string][]graphqlHit `json:"Get"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// SearchCandidates 对候选人集合发起nearText语义检索。
// certaintyFloor 只用于控制召回量，最终的阈值过滤在排序器中完成。
func (w *Weaviate) SearchCandidates(ctx context.Context, query string, limit int, certaintyFloor float64) ([]types.RetrievalHit, error) {
	ctx, span := weaviateTracer.Start(ctx, "Weaviate.SearchCandidates",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "weaviate"),
		attribute.String("db.operation", "near_text_search"),
		attribute.String("db.collection", w.class),
		attribute.Int("search.limit", limit),
		attribute.Float64("search.certainty_floor", certaintyFloor),
	)

	if limit <= 0 {
		limit = 10 // 默认限制为10
	}

	// strconv.Quote 处理查询词中的引号和反斜杠，避免破坏GraphQL语法
	gql := fmt.Sprintf(`{
  Get {
    %s(
      nearText: {concepts: [%s], certainty: %.2f}
      limit: %d
    ) {
      candidateId
      candidateName
      email
      skills
      totalExperience
      aboutMe
      _additional { certainty distance }
    }
  }
}`, w.class, strconv.Quote(query), certaintyFloor, limit)

	var result graphqlResponse
	err := w.doRequest(ctx, http.MethodPost, "/v1/graphql", map[string]interface{}{"query": gql}, &result)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		err := fmt.Errorf("weaviate GraphQL查询出错: %s", strings.Join(msgs, "; "))
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	objects := result.Data.Get[w.class]
	hits := make([]types.RetrievalHit, 0, len(objects))
	for _, obj := range objects {
		if obj.CandidateID == "" {
			// 缺少候选人ID的对象无法参与排序，直接跳过
			continue
		}
		certainty := 0.0
		if obj.Additional.Certainty != nil {
			certainty = *obj.Additional.Certainty
		}
		hits = append(hits, types.RetrievalHit{
			CandidateID:     obj.CandidateID,
			CandidateName:   obj.CandidateName,
			Email:           obj.Email,
			Skills:          obj.Skills,
			TotalExperience: obj.TotalExperience,
			AboutMe:         obj.AboutMe,
			Certainty:       certainty,
		})
	}

	span.SetAttributes(attribute.Int("search.results.count", len(hits)))
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

// doRaw 发送HTTP请求并返回原始响应和响应体
func (w *Weaviate) doRaw(ctx context.Context, method, path string, body interface{}) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.endpoint+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	// 注入OpenTelemetry追踪上下文到HTTP请求
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("执行HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	return resp, respBody, nil
}

// doRequest 发送HTTP请求并将2xx响应解析到result
func (w *Weaviate) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	ctx, span := weaviateTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", w.endpoint),
		attribute.String("db.system", "weaviate"),
		attribute.String("db.operation", path),
	)

	resp, respBody, err := w.doRaw(ctx, method, path, body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int("http.response.body.size", len(respBody)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("weaviate API error: status=%d, body=%s", resp.StatusCode, string(respBody))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return fmt.Errorf("解析响应体失败: %w", err)
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
