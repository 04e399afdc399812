package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWeaviate(t *testing.T, handler http.HandlerFunc) (*Weaviate, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	w, err := NewWeaviate(&config.WeaviateConfig{
		Endpoint:       server.URL,
		Class:          "CandidateProfile",
		RecreateWaitMS: 1, // 测试中不需要真实等待
	})
	require.NoError(t, err)
	return w, server
}

func TestCandidateDocIDDeterministic(t *testing.T) {
	id1 := CandidateDocID("cand-001")
	id2 := CandidateDocID("cand-001")
	id3 := CandidateDocID("cand-002")

	assert.Equal(t, id1, id2, "同一候选人ID应生成相同的文档ID")
	assert.NotEqual(t, id1, id3, "不同候选人ID应生成不同的文档ID")
}

func TestEnsureSchemaCreatesWhenMissing(t *testing.T) {
	var createdClass map[string]interface{}

	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/schema/CandidateProfile":
			rw.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createdClass))
			rw.WriteHeader(http.StatusOK)
		default:
			t.Errorf("未预期的请求: %s %s", r.Method, r.URL.Path)
			rw.WriteHeader(http.StatusInternalServerError)
		}
	})

	err := w.EnsureSchema(context.Background())
	require.NoError(t, err)
	require.NotNil(t, createdClass)
	assert.Equal(t, "CandidateProfile", createdClass["class"])
	assert.Equal(t, "text2vec-weaviate", createdClass["vectorizer"])

	// skills和aboutMe必须参与向量化，其余字段跳过
	props, ok := createdClass["properties"].([]interface{})
	require.True(t, ok)
	skipByName := make(map[string]bool)
	for _, p := range props {
		prop := p.(map[string]interface{})
		mc := prop["moduleConfig"].(map[string]interface{})["text2vec-weaviate"].(map[string]interface{})
		skipByName[prop["name"].(string)] = mc["skip"].(bool)
	}
	assert.False(t, skipByName["skills"])
	assert.False(t, skipByName["aboutMe"])
	assert.True(t, skipByName["candidateId"])
	assert.True(t, skipByName["candidateName"])
	assert.True(t, skipByName["totalExperience"])
}

func TestEnsureSchemaSkipsWhenExists(t *testing.T) {
	created := false

	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/schema/CandidateProfile":
			rw.WriteHeader(http.StatusOK)
			rw.Write([]byte(`{"class":"CandidateProfile"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
			created = true
			rw.WriteHeader(http.StatusOK)
		}
	})

	err := w.EnsureSchema(context.Background())
	require.NoError(t, err)
	assert.False(t, created, "集合已存在时不应重复创建")
}

func TestRecreateSchemaToleratesMissingClass(t *testing.T) {
	ensured := false

	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/schema/CandidateProfile":
			// 集合不存在，删除返回404也应继续重建
			rw.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/schema/CandidateProfile":
			rw.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
			ensured = true
			rw.WriteHeader(http.StatusOK)
		}
	})

	err := w.RecreateSchema(context.Background())
	require.NoError(t, err)
	assert.True(t, ensured, "重建后应重新创建集合")
}

func TestPutCandidate(t *testing.T) {
	var received map[string]interface{}

	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/objects", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		rw.WriteHeader(http.StatusOK)
	})

	doc := &types.CandidateDocument{
		CandidateID:     "cand-001",
		CandidateName:   "张三",
		Email:           "zhangsan@example.com",
		Skills:          []string{"Go", "Kubernetes"},
		TotalExperience: 5,
		AboutMe:         "资深后端工程师",
		SyncedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	err := w.PutCandidate(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "CandidateProfile", received["class"])
	assert.Equal(t, CandidateDocID("cand-001"), received["id"], "文档ID应由候选人ID确定性派生")

	props := received["properties"].(map[string]interface{})
	assert.Equal(t, "cand-001", props["candidateId"])
	assert.Equal(t, "张三", props["candidateName"])
	assert.Equal(t, float64(5), props["totalExperience"])
	assert.Equal(t, "2025-06-01T12:00:00Z", props["syncedAt"])
}

func TestDeleteCandidateToleratesNotFound(t *testing.T) {
	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		rw.WriteHeader(http.StatusNotFound)
	})

	err := w.DeleteCandidate(context.Background(), "cand-gone")
	assert.NoError(t, err, "文档不存在时删除应视为成功")
}

func TestSearchCandidates(t *testing.T) {
	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/graphql", r.URL.Path)

		var payload struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Contains(t, payload.Query, "nearText")
		assert.Contains(t, payload.Query, `"Go Kubernetes"`)
		assert.Contains(t, payload.Query, "certainty: 0.30")
		assert.Contains(t, payload.Query, "limit: 30")

		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`{
			"data": {
				"Get": {
					"CandidateProfile": [
						{
							"candidateId": "cand-001",
							"candidateName": "张三",
							"email": "zhangsan@example.com",
							"skills": ["Go", "Kubernetes"],
							"totalExperience": 5,
							"aboutMe": "资深后端工程师",
							"_additional": {"certainty": 0.92}
						},
						{
							"candidateId": "cand-002",
							"candidateName": "李四",
							"skills": ["Java"],
							"totalExperience": 2,
							"_additional": {"certainty": 0.61}
						}
					]
				}
			}
		}`))
	})

	hits, err := w.SearchCandidates(context.Background(), "Go Kubernetes", 30, 0.3)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "cand-001", hits[0].CandidateID)
	assert.InDelta(t, 0.92, hits[0].Certainty, 1e-9)
	assert.Equal(t, []string{"Go", "Kubernetes"}, hits[0].Skills)
	assert.Equal(t, 5, hits[0].TotalExperience)
	assert.Equal(t, "cand-002", hits[1].CandidateID)
}

func TestSearchCandidatesGraphQLError(t *testing.T) {
	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"errors":[{"message":"no vectorizer module configured"}]}`))
	})

	hits, err := w.SearchCandidates(context.Background(), "Go", 10, 0.3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vectorizer module configured")
	assert.Nil(t, hits)
}

func TestSearchCandidatesMalformedShape(t *testing.T) {
	// 响应形状不符预期时按空结果处理，不报错也不返回脏数据
	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"data":{"Get":{}}}`))
	})

	hits, err := w.SearchCandidates(context.Background(), "Go", 10, 0.3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchCandidatesSkipsHitsWithoutID(t *testing.T) {
	w, _ := newTestWeaviate(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{
			"data": {"Get": {"CandidateProfile": [
				{"candidateName": "无ID候选人", "_additional": {"certainty": 0.9}},
				{"candidateId": "cand-003", "_additional": {"certainty": 0.7}}
			]}}
		}`))
	})

	hits, err := w.SearchCandidates(context.Background(), "Go", 10, 0.3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "cand-003", hits[0].CandidateID)
}
