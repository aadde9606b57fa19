// Package testutil provides testing utilities for the dog photo proxy.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock dog API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockDogAPI is a configurable mock of the dog.ceo API for testing.
type MockDogAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	requestCount int
	pathCounts   map[string]int
}

// NewMockDogAPI creates a new mock dog API server. Paths are matched
// without the leading "/api" prefix, e.g. "/breeds/image/random".
func NewMockDogAPI() *MockDogAPI {
	mock := &MockDogAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")

		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[path]++
		handler, exists := mock.handlers[path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r, path)
	}))

	return mock
}

// URL returns the base URL to configure the client with.
func (m *MockDogAPI) URL() string {
	return m.server.URL + "/api"
}

// Close shuts down the mock server.
func (m *MockDogAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockDogAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockDogAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockDogAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockDogAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockDogAPI) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// defaultHandler mimics dog.ceo: known breeds succeed, everything else is
// answered with the upstream's 404 error body.
func (m *MockDogAPI) defaultHandler(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case path == "/breeds/image/random":
		w.Write([]byte(ImageBody(DefaultImageURL)))
	case path == "/breeds/list/all":
		w.Write([]byte(BreedListBody))
	case strings.HasPrefix(path, "/breed/") && strings.HasSuffix(path, "/images/random"):
		breed := strings.TrimSuffix(strings.TrimPrefix(path, "/breed/"), "/images/random")
		if !knownBreed(breed) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(BreedNotFoundBody))
			return
		}
		w.Write([]byte(ImageBody("https://images.dog.ceo/breeds/" + strings.ReplaceAll(breed, "/", "-") + "/n0001.jpg")))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"error","message":"No route found","code":404}`))
	}
}

// DefaultImageURL is served by the default random image handler.
const DefaultImageURL = "https://images.dog.ceo/breeds/hound-afghan/n02088094_1003.jpg"

// BreedListBody is a trimmed /breeds/list/all response.
const BreedListBody = `{"message":{"beagle":[],"bulldog":["boston","english","french"],"hound":["afghan","basset","blood"],"pug":[],"retriever":["chesapeake","curly","flatcoated","golden"]},"status":"success"}`

// BreedNotFoundBody is the upstream answer for an unknown breed.
const BreedNotFoundBody = `{"status":"error","message":"Breed not found (master breed does not exist)","code":404}`

// ImageBody builds a successful image response for url.
func ImageBody(url string) string {
	data, _ := json.Marshal(map[string]string{"message": url, "status": "success"})
	return string(data)
}

// NewImageResponse creates a standard 200 OK image response.
func NewImageResponse(url string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: ImageBody(url)}
}

// NewBodyErrorResponse creates a 200 OK response with a body-level error status.
func NewBodyErrorResponse(message string) MockResponse {
	data, _ := json.Marshal(map[string]string{"message": message, "status": "error"})
	return MockResponse{StatusCode: http.StatusOK, Body: string(data)}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

func knownBreed(breed string) bool {
	var list struct {
		Message map[string][]string `json:"message"`
	}
	_ = json.Unmarshal([]byte(BreedListBody), &list)

	parts := strings.SplitN(breed, "/", 2)
	subs, ok := list.Message[parts[0]]
	if !ok {
		return false
	}
	if len(parts) == 1 {
		return true
	}
	for _, sub := range subs {
		if sub == parts[1] {
			return true
		}
	}
	return false
}
