package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/dog-photo-cache/internal/testutil"
	"github.com/Sternrassler/dog-photo-cache/pkg/cache"
	"github.com/Sternrassler/dog-photo-cache/pkg/client"
	dbtestutil "github.com/Sternrassler/dog-photo-cache/pkg/database/testutil"
	"github.com/Sternrassler/dog-photo-cache/pkg/images"
	"github.com/Sternrassler/dog-photo-cache/pkg/photos"
)

type testEnv struct {
	handler http.Handler
	mock    *testutil.MockDogAPI
	store   *cache.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mock := testutil.NewMockDogAPI()
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 2 * time.Second
	upstream, err := client.New(cfg)
	require.NoError(t, err)

	db := dbtestutil.MustOpenTestDB(t, photos.Models()...)
	store := cache.NewMemoryStore()
	imageService := images.NewService(store, upstream, time.Minute)

	handler := newRouter(&server{
		store:  store,
		images: imageService,
		photos: photos.NewService(photos.NewRepository(db), imageService),
		ttl:    time.Minute,
		checks: readinessChecks(db, store),
	})

	return &testEnv{handler: handler, mock: mock, store: store}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("ready", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	})

	t.Run("not_ready_dependency_down", func(t *testing.T) {
		s := &server{checks: []readinessCheck{{
			name:  "cache",
			check: func(context.Context) error { return errors.New("connection refused") },
		}}}

		w := httptest.NewRecorder()
		s.readyHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "cache unavailable")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/external/dog/random-image", "")

	w := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "dogproxy_upstream_requests_total")
	assert.Contains(t, body, "dogproxy_cache_misses_total")
	assert.Contains(t, body, "dogproxy_http_requests_total")
}

func TestRandomImageEndpoint_CachesUpstream(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodGet, "/external/dog/random-image", "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[images.ImageResponse](t, w)
		assert.Equal(t, testutil.DefaultImageURL, resp.Message)
		assert.Equal(t, "success", resp.Status)
	}

	assert.Equal(t, 1, env.mock.GetRequestCount())
}

func TestRandomImageEndpoint_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mock.SetResponse("/breeds/image/random", testutil.NewServerErrorResponse())

	w := env.do(t, http.MethodGet, "/external/dog/random-image", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "UpstreamError", decode[errorResponse](t, w).Error)
}

func TestImageByBreedEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"known breed", "/external/dog/image-by-breed/pug", http.StatusOK},
		{"sub-breed segment", "/external/dog/image-by-breed/hound/afghan", http.StatusOK},
		{"sub-breed encoded space", "/external/dog/image-by-breed/hound%20afghan", http.StatusOK},
		{"unknown breed", "/external/dog/image-by-breed/unicorn", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, w.Code, "body: %s", w.Body.String())
		})
	}
}

func TestImageByBreedEndpoint_TransientFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mock.SetResponse("/breed/pug/images/random", testutil.NewServerErrorResponse())

	w := env.do(t, http.MethodGet, "/external/dog/image-by-breed/pug", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestBreedsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/external/dog/breeds", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[images.BreedListResponse](t, w)
	assert.Contains(t, resp.Message, "retriever")
	assert.Equal(t, []string{"boston", "english", "french"}, resp.Message["bulldog"])
}

func TestImagePageEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/external/dog/html", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `<img src="`+testutil.DefaultImageURL+`"`)
	assert.Contains(t, w.Body.String(), "<title>Random Dog</title>")

	w = env.do(t, http.MethodGet, "/external/dog/html?breed=pug", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Random Pug")

	w = env.do(t, http.MethodGet, "/external/dog/html?breed=unicorn", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Breed &#39;unicorn&#39; not found.")
}

func TestImagePageTitle_MultibyteBreed(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/external/dog/html?breed=%C3%A9pagneul", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "<title>Random Épagneul</title>")
}

func TestCapitalize(t *testing.T) {
	tests := map[string]string{
		"pug":          "Pug",
		"HOUND afghan": "Hound afghan",
		"épagneul":     "Épagneul",
		"ñandu":        "Ñandu",
		"":             "",
	}

	for input, want := range tests {
		assert.Equal(t, want, capitalize(input), "capitalize(%q)", input)
	}
}

func TestDogPhotosFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/dog-photos/save?breed=hound%20afghan", "")
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	saved := decode[photos.Photo](t, w)
	require.NotZero(t, saved.ID)
	require.NotNil(t, saved.Stats)
	assert.Zero(t, saved.Stats.Views)
	assert.Equal(t, "hound", *saved.Breed)
	assert.Equal(t, "afghan", *saved.SubBreed)

	target := "/dog-photos/" + jsonNumber(saved.ID)
	for want := int64(1); want <= 2; want++ {
		w = env.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[photos.Photo](t, w)
		require.NotNil(t, got.Stats)
		assert.Equal(t, want, got.Stats.Views)
		assert.NotNil(t, got.Stats.LastViewedAt)
	}

	w = env.do(t, http.MethodPost, "/dog-photos/save", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/dog-photos?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]photos.Photo](t, w)
	require.Len(t, list, 2)
	assert.EqualValues(t, 2, list[1].Stats.Views)

	w = env.do(t, http.MethodGet, "/dog-photos", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]photos.Photo](t, w), 2)
}

func TestDogPhotosErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"unknown breed", http.MethodPost, "/dog-photos/save?breed=unicorn", http.StatusNotFound},
		{"missing photo", http.MethodGet, "/dog-photos/4242", http.StatusNotFound},
		{"zero id", http.MethodGet, "/dog-photos/0", http.StatusBadRequest},
		{"non numeric id", http.MethodGet, "/dog-photos/abc", http.StatusBadRequest},
		{"limit too large", http.MethodGet, "/dog-photos?limit=101", http.StatusBadRequest},
		{"limit zero", http.MethodGet, "/dog-photos?limit=0", http.StatusBadRequest},
		{"limit not a number", http.MethodGet, "/dog-photos?limit=ten", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.target, "")
			assert.Equal(t, tt.status, w.Code, "body: %s", w.Body.String())
		})
	}
}

func TestCacheAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	key := "cache:external:dog_breed:hound/afghan"

	w := env.do(t, http.MethodGet, "/cache/exists/"+key, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[cacheExistence](t, w).Exists)

	w = env.do(t, http.MethodPost, "/cache/set", `{"key":"'`+key+`'","value":{"message":"x","status":"success"},"ttl":30}`)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, cacheStatus{Status: "saved", Key: key}, decode[cacheStatus](t, w))

	w = env.do(t, http.MethodGet, "/cache/exists/"+key, "")
	assert.True(t, decode[cacheExistence](t, w).Exists)

	w = env.do(t, http.MethodGet, "/cache/get/"+key, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[cacheValue](t, w)
	assert.Equal(t, key, got.Key)
	assert.JSONEq(t, `{"message":"x","status":"success"}`, string(got.Value))

	w = env.do(t, http.MethodDelete, "/cache/delete/"+key, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deleted", decode[cacheStatus](t, w).Status)

	w = env.do(t, http.MethodDelete, "/cache/delete/"+key, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/cache/get/"+key, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheSetValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"missing key", `{"value":1}`},
		{"missing value", `{"key":"k"}`},
		{"negative ttl", `{"key":"k","value":1,"ttl":-5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/cache/set", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", w.Body.String())
		})
	}
	assert.Zero(t, env.store.Len())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"photo not found", photos.ErrNotFound, http.StatusNotFound},
		{"breed not found", photos.ErrBreedNotFound, http.StatusNotFound},
		{"invalid limit", photos.ErrInvalidLimit, http.StatusBadRequest},
		{"invalid breed", images.ErrInvalidBreed, http.StatusBadRequest},
		{"upstream", &client.UpstreamError{ErrorClass: client.ErrorClassNetwork}, http.StatusBadGateway},
		{"cache", cache.ErrCacheUnavailable, http.StatusServiceUnavailable},
		{"persistence", &photos.PersistenceError{Op: "create photo", Err: errors.New("locked")}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func jsonNumber(id uint) string {
	data, _ := json.Marshal(id)
	return string(data)
}
