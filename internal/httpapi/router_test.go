package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/finchat/internal/ai"
	"github.com/suPer8Hu/finchat/internal/chat"
	"github.com/suPer8Hu/finchat/internal/chatclient"
	"github.com/suPer8Hu/finchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/finchat/internal/index"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type echoProvider struct {
	err error
}

func (p echoProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "echo: " + messages[len(messages)-1].Content, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (p *fakePublisher) PublishRefresh(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, jobID)
	return nil
}

type testEnv struct {
	router *gin.Engine
	svc    *chat.Service
}

func newEnv(t *testing.T, prov ai.Provider, pub handlers.RefreshPublisher) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, chat.Migrate(db))

	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) { return prov, nil })

	svc := chat.NewService(chat.NewRepo(db), reg, index.NewMemory(), chat.Options{DefaultProvider: "fake", TopK: 2})
	h := handlers.NewHandler(svc, pub, zap.NewNop())
	return testEnv{router: NewRouter(h, zap.NewNop(), []string{"*"}), svc: svc}
}

func (e testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestChatAndHistory(t *testing.T) {
	env := newEnv(t, echoProvider{}, nil)

	w := env.do(http.MethodPost, "/api/chat", `{"message":"hello","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"response":"echo: hello"}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/get-history?session_id=abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[["hello", true], ["echo: hello", false]]`, w.Body.String())

	w = env.do(http.MethodGet, "/api/get-history?session_id=unknown", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestChat_BadRequests(t *testing.T) {
	env := newEnv(t, echoProvider{}, nil)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"not json", `nope`, http.StatusBadRequest},
		{"missing session", `{"message":"hi"}`, http.StatusBadRequest},
		{"blank message", `{"message":"   ","session_id":"abc"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/chat", tc.body)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	w := env.do(http.MethodGet, "/api/get-history", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_ProviderFailure(t *testing.T) {
	env := newEnv(t, echoProvider{err: errors.New("offline")}, nil)

	w := env.do(http.MethodPost, "/api/chat", `{"message":"hello","session_id":"abc"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRefreshIndex_Inline(t *testing.T) {
	env := newEnv(t, echoProvider{}, nil)

	w := env.do(http.MethodPost, "/api/documents", `{"title":"Limits","content":"Daily transfer limit is 5000."}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/api/refresh-index", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "succeeded", resp.Status)

	w = env.do(http.MethodGet, "/api/index-jobs/"+resp.JobID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var env2 struct {
		Data struct {
			Job chat.IndexJob `json:"job"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env2))
	require.NotNil(t, env2.Data.Job.DocumentCount)
	assert.Equal(t, 1, *env2.Data.Job.DocumentCount)

	w = env.do(http.MethodGet, "/api/index-jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshIndex_Queued(t *testing.T) {
	pub := &fakePublisher{}
	env := newEnv(t, echoProvider{}, pub)

	w := env.do(http.MethodPost, "/api/refresh-index", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, pub.jobs, 1)

	job, err := env.svc.GetIndexJob(context.Background(), pub.jobs[0])
	require.NoError(t, err)
	assert.Equal(t, chat.JobQueued, job.Status)

	pub.err = errors.New("broker down")
	w = env.do(http.MethodPost, "/api/refresh-index", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouter_FallbacksAndRequestID(t *testing.T) {
	env := newEnv(t, echoProvider{}, nil)

	w := env.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = env.do(http.MethodDelete, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = env.do(http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatClientEndToEnd(t *testing.T) {
	env := newEnv(t, echoProvider{}, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx := context.Background()
	store := chatclient.NewMemoryStorage()
	c := chatclient.New(chatclient.NewHTTPBackend(srv.URL, ""), store)

	reply, err := c.Send(ctx, "what is my limit")
	require.NoError(t, err)
	assert.Equal(t, "echo: what is my limit", reply.Text)

	n, err := c.RefreshIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, chatclient.NotifySuccess, n.Kind)

	// a second client sharing the storage sees the same conversation
	other := chatclient.New(chatclient.NewHTTPBackend(srv.URL, ""), store)
	require.NoError(t, other.LoadHistory(ctx))
	assert.Equal(t, c.Messages(), other.Messages())

	other.Reset()
	require.NoError(t, other.LoadHistory(ctx))
	assert.Empty(t, other.Messages())
}
