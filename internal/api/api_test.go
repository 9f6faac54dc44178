package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdvantusAI/m8-collab/internal/api/middleware"
	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/edit"
	"github.com/AdvantusAI/m8-collab/internal/repository/memory"
	"github.com/AdvantusAI/m8-collab/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.Load(domain.Sources{
		Forecast: []domain.ForecastRow{
			{ID: "f1", CustomerID: "A", ProductID: "P1", LocationID: "L1", PostDate: "2025-03-01", StatisticalForecast: 300},
			{ID: "f2", CustomerID: "B", ProductID: "P1", LocationID: "L2", PostDate: "2025-03-03", StatisticalForecast: 700},
			{ID: "f3", CustomerID: "C", ProductID: "", LocationID: "L3", PostDate: "2025-03-03", StatisticalForecast: 50},
		},
		Products: []domain.ProductAttributes{{ProductID: "P1", UnitMultipliers: domain.UnitMultipliers{CaseEquivalent: 1, Volume: 2, Weight: 1}}},
	})
	collab := service.NewCollaborationService(store, store, nil, service.DefaultPlanning(2025))
	router := NewRouter(&Services{
		Collaboration: collab,
		Feeds:         service.NewFeedService(store, collab),
	}, nil)
	return router, store
}

func do(router *gin.Engine, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthAndRequestID(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
}

func TestSummaryEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/collaboration/summary?customer_ids=A,B&metrics=effective_forecast&unit=volume", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary domain.CollaborationSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, domain.StatusOK, summary.Status)
	assert.Len(t, summary.Rows, 2)
	assert.Equal(t, 2000.0, summary.Total.Metrics[domain.MetricEffectiveForecast].YTD)

	w = do(router, http.MethodGet, "/api/v1/collaboration/summary?customer_ids=nobody", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, domain.StatusNoData, summary.Status)
}

func TestBadQueryParameters(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, target := range []string{
		"/api/v1/collaboration/summary?unit=furlongs",
		"/api/v1/collaboration/summary?metrics=nonsense",
		"/api/v1/collaboration/matrix?start_date=03/01/2025",
		"/api/v1/collaboration/matrix?start_date=2025-06-01&end_date=2025-01-01",
		"/api/v1/collaboration/rollup?metric=effective_forecast&window=decade",
		"/api/v1/collaboration/rollup",
	} {
		w := do(router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestMatrixAndRollupEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/collaboration/matrix?start_date=2025-01-01&end_date=2025-06-30&metrics=statistical_forecast", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view domain.MatrixView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.Periods, 6)
	assert.Len(t, view.Rows, 3)

	w = do(router, http.MethodGet, "/api/v1/collaboration/rollup?metric=statistical_forecast&window=ytd&customer_id=B&product_id=P1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rollup struct {
		Value float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rollup))
	assert.Equal(t, 700.0, rollup.Value)

	w = do(router, http.MethodGet, "/api/v1/collaboration/rollup?metric=statistical_forecast&customer_id=Z", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDiagnosticsRequiresBuild(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/collaboration/diagnostics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPost, "/api/v1/collaboration/rebuild", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/collaboration/diagnostics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accepted":3`)
}

func TestEditEndpointStatuses(t *testing.T) {
	router, store := newTestRouter(t)

	body, _ := json.Marshal(map[string]interface{}{"customer_id": "A", "product_id": "P1", "period": "2025-03-15", "value": 450})
	w := do(router, http.MethodPost, "/api/v1/collaboration/edit", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res edit.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, store.Len())

	// C has no product, so its share cannot be keyed while A and B succeed.
	body, _ = json.Marshal(map[string]interface{}{"all": true, "period": "Mar-25", "value": 2000})
	w = do(router, http.MethodPost, "/api/v1/collaboration/edit", body)
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Rejected)

	body, _ = json.Marshal(map[string]interface{}{"customer_id": "C", "period": "Mar-25", "value": 5})
	w = do(router, http.MethodPost, "/api/v1/collaboration/edit", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	for _, bad := range []map[string]interface{}{
		{"customer_id": "A", "product_id": "P1", "period": "Mar-25"},
		{"product_id": "P1", "period": "Mar-25", "value": 1},
		{"customer_id": "A", "product_id": "P1", "period": "sometime", "value": 1},
		{"customer_id": "A", "product_id": "P1", "period": "Mar-30", "value": 1},
	} {
		body, _ = json.Marshal(bad)
		w = do(router, http.MethodPost, "/api/v1/collaboration/edit", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	}

	body, _ = json.Marshal(map[string]interface{}{"customer_id": "Q", "product_id": "P1", "period": "Mar-25", "value": 1})
	w = do(router, http.MethodPost, "/api/v1/collaboration/edit", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportWithoutStorage(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(router, http.MethodPost, "/api/v1/collaboration/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFeedUpload(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "sell_in_march.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("customer_id,product_id,location_id,postdate,quantity\nA,P1,L1,2025-03-02,12\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/feeds/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"written":1`)

	w = do(router, http.MethodGet, "/api/v1/collaboration/rollup?metric=sell_in_prior_year&window=ytd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"value":12`)
}

func TestFeedUploadRejectsUnknownFiles(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "notes.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/feeds/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"https://a.example, https://b.example", " "})
	assert.False(t, all)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, origins)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}
