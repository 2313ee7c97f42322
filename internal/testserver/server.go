// Package testserver is a fake CivitAI tRPC endpoint for tests. It serves
// scripted collection pages, generation data and tags, records every
// request and can be told to fail specific procedures or images.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"
)

// BasePath is where the tRPC procedures are mounted.
const BasePath = "/api/trpc"

// Request is one recorded call.
type Request struct {
	Procedure string
	// Input is the decoded "json" member of the input envelope.
	Input gjson.Result
	// HasMeta reports whether the envelope carried the meta block.
	HasMeta bool
	Cookie  string
	Header  http.Header
}

// Server simulates the tRPC procedures used by a harvest.
type Server struct {
	server *httptest.Server

	mu             sync.RWMutex
	collections    map[int64][][]map[string]any
	collectionInfo map[int64]map[string]any
	details        map[int64]map[string]any
	tags           map[int64][]map[string]any
	versions       map[int64]map[string]any
	presets        []map[string]any
	procErrors     map[string]int
	imageErrors    map[int64]int
	pageErrors     map[int]int
	requests       []Request
	token          string
	numericCursors bool
	ignoreCursor   bool

	requestCount int32
}

// New starts a server. Call Close when done.
func New() *Server {
	s := &Server{
		collections:    make(map[int64][][]map[string]any),
		collectionInfo: make(map[int64]map[string]any),
		details:        make(map[int64]map[string]any),
		tags:           make(map[int64][]map[string]any),
		versions:       make(map[int64]map[string]any),
		procErrors:     make(map[string]int),
		imageErrors:    make(map[int64]int),
		pageErrors:     make(map[int]int),
	}

	r := chi.NewRouter()
	r.Route(BasePath, func(r chi.Router) {
		r.Get("/{procedure}", s.handle)
	})
	s.server = httptest.NewServer(r)
	return s
}

// URL is the tRPC base URL to configure the client with.
func (s *Server) URL() string {
	return s.server.URL + BasePath
}

// Close shuts the server down
func (s *Server) Close() {
	s.server.Close()
}

// RequireToken makes every procedure answer 401 unless the session cookie
// carries token.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// UseNumericCursors switches nextCursor values from strings to integers.
func (s *Server) UseNumericCursors(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numericCursors = on
}

// IgnoreCursor makes image.getInfinite always answer with the first page,
// the way the live API does for some cursor encodings.
func (s *Server) IgnoreCursor(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreCursor = on
}

// AddCollection registers the pages of a collection.
func (s *Server) AddCollection(id int64, pages ...[]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[id] = pages
}

// SetCollectionInfo sets the collection.getById answer.
func (s *Server) SetCollectionInfo(id int64, info map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionInfo[id] = info
}

// SetDetail overrides the generated generation data of an image.
func (s *Server) SetDetail(imageID int64, detail map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[imageID] = detail
}

// SetTags sets the votable tags of an image.
func (s *Server) SetTags(imageID int64, tags []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[imageID] = tags
}

// SetModelVersion sets the modelVersion.getById answer.
func (s *Server) SetModelVersion(versionID int64, version map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[versionID] = version
}

// SetPresets sets the system.getBrowsingSettingAddons answer.
func (s *Server) SetPresets(presets []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets = presets
}

// FailProcedure makes every call of procedure answer with status.
func (s *Server) FailProcedure(procedure string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procErrors[procedure] = status
}

// FailImage makes the per-image procedures answer with status for imageID.
func (s *Server) FailImage(imageID int64, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageErrors[imageID] = status
}

// FailPage makes image.getInfinite answer with status when page index
// (zero based) is requested.
func (s *Server) FailPage(index int, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageErrors[index] = status
}

// Requests returns a copy of the recorded requests.
func (s *Server) Requests() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Request(nil), s.requests...)
}

// RequestsFor returns the recorded requests of one procedure.
func (s *Server) RequestsFor(procedure string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Procedure == procedure {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount is the total number of requests served.
func (s *Server) RequestCount() int {
	return int(atomic.LoadInt32(&s.requestCount))
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.requestCount, 1)
	procedure := chi.URLParam(r, "procedure")

	envelope := gjson.Parse(r.URL.Query().Get("input"))
	req := Request{
		Procedure: procedure,
		Input:     envelope.Get("json"),
		HasMeta:   envelope.Get("meta").Exists(),
		Header:    r.Header.Clone(),
	}
	if c, err := r.Cookie("__Secure-civitai-token"); err == nil {
		req.Cookie = c.Value
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	token := s.token
	status := s.procErrors[procedure]
	s.mu.Unlock()

	if token != "" && req.Cookie != token {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}
	if status != 0 {
		writeError(w, status, http.StatusText(status))
		return
	}

	switch procedure {
	case "image.getInfinite":
		s.handleInfinite(w, req)
	case "image.getGenerationData":
		s.handleImage(w, req, s.detailFor)
	case "tag.getVotableTags":
		s.handleImage(w, req, s.tagsFor)
	case "image.get":
		s.handleImage(w, req, s.basicFor)
	case "collection.getById":
		s.handleCollectionInfo(w, req)
	case "modelVersion.getById":
		s.handleModelVersion(w, req)
	case "system.getBrowsingSettingAddons":
		s.mu.RLock()
		presets := s.presets
		s.mu.RUnlock()
		writeData(w, presets)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("No procedure found on path %q", procedure))
	}
}

func (s *Server) handleInfinite(w http.ResponseWriter, req Request) {
	id := req.Input.Get("collectionId").Int()

	s.mu.RLock()
	pages, ok := s.collections[id]
	numeric := s.numericCursors
	ignore := s.ignoreCursor
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}

	index := 0
	if cursor := req.Input.Get("cursor"); !ignore && cursor.Exists() && cursor.Type != gjson.Null {
		n, err := parseCursor(cursor)
		if err != nil || n < 1 || n > len(pages) {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		index = n
	}

	s.mu.RLock()
	status := s.pageErrors[index]
	s.mu.RUnlock()
	if status != 0 {
		writeError(w, status, http.StatusText(status))
		return
	}

	items := []map[string]any{}
	if index < len(pages) {
		items = pages[index]
	}

	var next any
	if index+1 < len(pages) {
		next = cursorValue(index+1, numeric)
	}

	writeData(w, map[string]any{
		"nextCursor": next,
		"items":      items,
	})
}

// cursorValue encodes page n as either "page:n" or a large integer.
func cursorValue(n int, numeric bool) any {
	if numeric {
		return json.Number(strconv.FormatInt(int64(9007199254740000+n), 10))
	}
	return fmt.Sprintf("page:%d", n)
}

func parseCursor(c gjson.Result) (int, error) {
	if c.Type == gjson.Number {
		v, err := strconv.ParseInt(c.Raw, 10, 64)
		if err != nil {
			return 0, err
		}
		return int(v - 9007199254740000), nil
	}
	var n int
	_, err := fmt.Sscanf(c.String(), "page:%d", &n)
	return n, err
}

func (s *Server) handleImage(w http.ResponseWriter, req Request, lookup func(int64) any) {
	id := req.Input.Get("id").Int()

	s.mu.RLock()
	status := s.imageErrors[id]
	s.mu.RUnlock()

	if status != 0 {
		writeError(w, status, http.StatusText(status))
		return
	}
	writeData(w, lookup(id))
}

func (s *Server) detailFor(id int64) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.details[id]; ok {
		return d
	}
	return GenerationData(id)
}

func (s *Server) tagsFor(id int64) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tags[id]; ok {
		return t
	}
	return []map[string]any{}
}

func (s *Server) basicFor(id int64) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, pages := range s.collections {
		for _, page := range pages {
			for _, item := range page {
				if toInt64(item["id"]) == id {
					return item
				}
			}
		}
	}
	return nil
}

func (s *Server) handleCollectionInfo(w http.ResponseWriter, req Request) {
	id := req.Input.Get("id").Int()
	s.mu.RLock()
	info, ok := s.collectionInfo[id]
	s.mu.RUnlock()
	if !ok {
		writeData(w, map[string]any{"collection": nil})
		return
	}
	writeData(w, map[string]any{
		"collection":  info,
		"permissions": map[string]any{"read": true, "write": false},
	})
}

func (s *Server) handleModelVersion(w http.ResponseWriter, req Request) {
	id := req.Input.Get("id").Int()
	s.mu.RLock()
	v, ok := s.versions[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "model version not found")
		return
	}
	writeData(w, v)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"result": map[string]any{
			"data": map[string]any{"json": data},
		},
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"json": map[string]any{
				"message": message,
				"code":    -32000,
				"data":    map[string]any{"httpStatus": status},
			},
		},
	})
}
