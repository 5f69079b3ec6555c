package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/respatch/internal/config"
	"github.com/jengzang/respatch/internal/database"
	"github.com/jengzang/respatch/internal/middleware"
)

var start = time.Date(2023, 7, 1, 6, 0, 0, 0, time.UTC)

// fixesCSV is two 30 minute stops 1 km apart for one tag
func fixesCSV(tag string) string {
	var b strings.Builder
	b.WriteString("TAG,TIME,X,Y,SD,NBS\n")
	row := func(m int, x, y float64) {
		fmt.Fprintf(&b, "%s,%d,%g,%g,4,5\n", tag, start.Add(time.Duration(m)*time.Minute).UnixMilli(), x, y)
	}
	for m := 0; m < 30; m++ {
		row(m, float64(m%3), float64(m%2))
	}
	for m := 30; m < 39; m++ {
		row(m, float64(100*(m-29)), 0)
	}
	for m := 39; m < 69; m++ {
		row(m, 1000+float64(m%3), float64(m%2))
	}
	return b.String()
}

func tidesCSV() string {
	return "timestamp,waterlevel,tide_number\n" +
		start.Add(-time.Hour).Format(time.RFC3339) + ",110,1\n" +
		start.Add(35*time.Minute).Format(time.RFC3339) + ",105,2\n"
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newServer(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	conn, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Server.RateLimit = 0
	cfg.Server.JWTSecret = secret

	r, err := SetupRouter(cfg, conn)
	require.NoError(t, err)
	return r
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func upload(t *testing.T, fixes, tides string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range map[string]string{"fixes": fixes, "tides": tides} {
		if content == "" {
			continue
		}
		part, err := mw.CreateFormFile(name, name+".csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	r := newServer(t, "")
	w, _ := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestRunLifecycle(t *testing.T) {
	r := newServer(t, "")

	w, env := do(r, upload(t, fixesCSV("2087"), tidesCSV()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Runs []struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Patches int    `json:"patches"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created.Runs, 1)
	run := created.Runs[0]
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 2, run.Patches)

	t.Run("list", func(t *testing.T) {
		w, env := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs?individual=2087", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var page struct {
			Total int64 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &page))
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("get", func(t *testing.T) {
		w, _ := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID, nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w, _ = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	for view, rows := range map[string]int{"": 2, "summary": 2, "points": 60, "spatial": 2} {
		t.Run("view "+view, func(t *testing.T) {
			w, env := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID+"/patches?view="+view, nil))
			require.Equal(t, http.StatusOK, w.Code)
			var out struct {
				Rows []json.RawMessage `json:"rows"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &out))
			assert.Len(t, out.Rows, rows)
		})
	}

	t.Run("unknown view", func(t *testing.T) {
		w, _ := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID+"/patches?view=heatmap", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("geojson", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID+"/patches.geojson", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "geo+json")

		var fc struct {
			Type     string            `json:"type"`
			Features []json.RawMessage `json:"features"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
		assert.Equal(t, "FeatureCollection", fc.Type)
		assert.Len(t, fc.Features, 2)
	})

	t.Run("delete", func(t *testing.T) {
		w, _ := do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+run.ID, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		w, _ = do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+run.ID, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCreateRunRejectsBadUpload(t *testing.T) {
	r := newServer(t, "")

	w, _ := do(r, upload(t, fixesCSV("2087"), ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(r, upload(t, "TAG,X\n1,2\n", tidesCSV()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStages(t *testing.T) {
	r := newServer(t, "")
	w, env := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/stages", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stages []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stages))
	require.NotEmpty(t, stages)
	assert.Equal(t, "cleaner", stages[0].Name)
	assert.Equal(t, "patch_accessor", stages[len(stages)-1].Name)
}

func TestAuthRequired(t *testing.T) {
	r := newServer(t, "secret")

	w, _ := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	m, err := middleware.NewTokenManager("secret")
	require.NoError(t, err)
	token, err := m.Issue("analyst", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w, _ = do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
