package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/dog-photo-cache/pkg/cache"
	"github.com/Sternrassler/dog-photo-cache/pkg/client"
	"github.com/Sternrassler/dog-photo-cache/pkg/images"
	"github.com/Sternrassler/dog-photo-cache/pkg/photos"
	"github.com/Sternrassler/dog-photo-cache/pkg/validator"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// cacheItem is the body of POST /cache/set. TTL is in seconds; an absent
// TTL uses the configured one and 0 stores the value without expiry.
type cacheItem struct {
	Key   string          `json:"key" validate:"required,max=256"`
	Value json.RawMessage `json:"value" validate:"required"`
	TTL   *int            `json:"ttl" validate:"omitempty,min=0"`
}

type cacheValue struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type cacheStatus struct {
	Status string `json:"status"`
	Key    string `json:"key"`
}

type cacheExistence struct {
	Key    string `json:"key"`
	Exists bool   `json:"exists"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			log.Warn().Err(err).Str("check", c.name).Msg("Readiness check failed")
			http.Error(w, c.name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) randomImage(w http.ResponseWriter, r *http.Request) {
	resp, err := s.images.RandomImage(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) imageByBreed(w http.ResponseWriter, r *http.Request) {
	breed := pathParam(r, "breed")
	if sub := pathParam(r, "subBreed"); sub != "" {
		breed += "/" + sub
	}

	resp, found, err := s.images.ImageByBreed(r.Context(), breed)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "BreedNotFound", fmt.Sprintf("Breed '%s' not found.", breed))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) breedList(w http.ResponseWriter, r *http.Request) {
	resp, err := s.images.BreedList(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var imagePageTemplate = template.Must(template.New("page").Parse(`<html>
    <head><title>{{.Title}}</title></head>
    <body style="font-family:Arial; text-align:center; padding-top: 20px; background-color: #f4f4f4;">
        {{if .ImageURL}}<h2>{{.Title}}</h2>
        <img src="{{.ImageURL}}" alt="{{.Title}}" style="max-width:90%; max-height: 80vh; border-radius:10px;">
        {{else}}<h2>Error {{.Status}}</h2><p>{{.Detail}}</p>{{end}}
    </body>
</html>
`))

type pageData struct {
	Title    string
	ImageURL string
	Status   int
	Detail   string
}

// imagePage renders a random image, of the "breed" query parameter when set,
// as a minimal HTML page.
func (s *server) imagePage(w http.ResponseWriter, r *http.Request) {
	breed := strings.TrimSpace(r.URL.Query().Get("breed"))

	var (
		img   *images.ImageResponse
		err   error
		title = "Random Dog"
	)
	if breed != "" {
		var found bool
		img, found, err = s.images.ImageByBreed(r.Context(), breed)
		title = "Random " + capitalize(breed)
		if err == nil && !found {
			renderPage(w, http.StatusNotFound, pageData{Title: title, Status: http.StatusNotFound, Detail: fmt.Sprintf("Breed '%s' not found.", breed)})
			return
		}
	} else {
		img, err = s.images.RandomImage(r.Context())
	}

	if err != nil {
		status := statusFor(err)
		renderPage(w, status, pageData{Title: title, Status: status, Detail: http.StatusText(status)})
		return
	}

	renderPage(w, http.StatusOK, pageData{Title: title, ImageURL: img.Message, Status: http.StatusOK})
}

// capitalize upper-cases the first rune of s and lower-cases the rest.
func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if first == utf8.RuneError {
		return strings.ToLower(s)
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(s[size:])
}

func renderPage(w http.ResponseWriter, status int, page pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := imagePageTemplate.Execute(w, page); err != nil {
		log.Error().Err(err).Msg("Failed to render image page")
	}
}

func (s *server) savePhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := s.photos.SaveRandomPhoto(r.Context(), r.URL.Query().Get("breed"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (s *server) listPhotos(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be an integer")
			return
		}
		limit = parsed
		if limit == 0 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 100")
			return
		}
	}

	list, err := s.photos.ListPhotos(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []photos.Photo{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) getPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "id must be a positive integer")
		return
	}

	photo, err := s.photos.GetPhotoWithStats(r.Context(), uint(id), true)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (s *server) cacheExists(w http.ResponseWriter, r *http.Request) {
	key := cacheKeyParam(r)
	exists, err := s.store.Exists(r.Context(), key)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cacheExistence{Key: key, Exists: exists})
}

func (s *server) cacheGet(w http.ResponseWriter, r *http.Request) {
	key := cacheKeyParam(r)
	value, ok, err := s.store.Get(r.Context(), key)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "KeyNotFound", "Key not found")
		return
	}
	writeJSON(w, http.StatusOK, cacheValue{Key: key, Value: value})
}

func (s *server) cacheSet(w http.ResponseWriter, r *http.Request) {
	var item cacheItem
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be a JSON object with key and value")
		return
	}
	item.Key = decodeKey(item.Key)
	if err := validator.ValidateStruct(item); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	ttl := s.ttl
	if item.TTL != nil {
		ttl = cache.TTLFromSeconds(*item.TTL)
	}

	if err := s.store.Set(r.Context(), item.Key, item.Value, ttl); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cacheStatus{Status: "saved", Key: item.Key})
}

func (s *server) cacheDelete(w http.ResponseWriter, r *http.Request) {
	key := cacheKeyParam(r)
	deleted, err := s.store.Delete(r.Context(), key)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "KeyNotFound", "Key not found")
		return
	}
	writeJSON(w, http.StatusOK, cacheStatus{Status: "deleted", Key: key})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var (
		upErr *client.UpstreamError
		vErrs validator.ValidationErrors
	)

	switch {
	case errors.Is(err, photos.ErrNotFound), errors.Is(err, photos.ErrBreedNotFound):
		return http.StatusNotFound
	case errors.Is(err, photos.ErrInvalidLimit),
		errors.Is(err, photos.ErrInvalidPhoto),
		errors.Is(err, images.ErrInvalidBreed),
		errors.As(err, &vErrs):
		return http.StatusBadRequest
	case errors.As(err, &upErr):
		return http.StatusBadGateway
	case errors.Is(err, cache.ErrCacheUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError converts service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	switch status {
	case http.StatusNotFound:
		writeError(w, status, "NotFound", err.Error())
	case http.StatusBadRequest:
		writeError(w, status, "InvalidRequest", err.Error())
	case http.StatusBadGateway:
		log.Warn().Err(err).Msg("Upstream request failed")
		writeError(w, status, "UpstreamError", err.Error())
	case http.StatusServiceUnavailable:
		log.Warn().Err(err).Msg("Cache unavailable")
		writeError(w, status, "CacheUnavailable", "The cache backend is unavailable")
	default:
		log.Error().Err(err).Msg("Handler error")
		writeError(w, status, "InternalServerError", "An internal error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// pathParam returns the unescaped chi URL parameter name.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(raw); err == nil {
		return unescaped
	}
	return raw
}

func cacheKeyParam(r *http.Request) string {
	return decodeKey(pathParam(r, "*"))
}

// decodeKey strips surrounding quotes that clients sometimes send with keys.
func decodeKey(key string) string {
	return strings.Trim(strings.TrimSpace(key), `'"`)
}
