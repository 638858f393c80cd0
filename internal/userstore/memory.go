package userstore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Collections served by the in-memory store
var Collections = []string{"users", "tokens"}

type collection struct {
	order   []string
	records map[string]map[string]any
}

// MemoryServer is a schemaless json-server compatible store kept in memory.
// Records are JSON objects keyed by their "id" field.
type MemoryServer struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewMemoryServer() *MemoryServer {
	s := &MemoryServer{collections: make(map[string]*collection)}
	for _, name := range Collections {
		s.collections[name] = &collection{records: make(map[string]map[string]any)}
	}
	return s
}

// Handler returns the HTTP surface of the store.
func (s *MemoryServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/{collection}", func(r chi.Router) {
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Get("/{id}", s.get)
		r.Patch("/{id}", s.update(false))
		r.Put("/{id}", s.update(true))
		r.Delete("/{id}", s.remove)
	})
	return r
}

// Len returns the number of records in a collection.
func (s *MemoryServer) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.records)
	}
	return 0
}

func (s *MemoryServer) collection(w http.ResponseWriter, r *http.Request) (*collection, bool) {
	c, ok := s.collections[chi.URLParam(r, "collection")]
	if !ok {
		utils.WriteError(w, "unknown collection", http.StatusNotFound)
	}
	return c, ok
}

func (s *MemoryServer) list(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collection(w, r)
	if !ok {
		return
	}

	filters := r.URL.Query()
	out := make([]map[string]any, 0)
	for _, id := range c.order {
		rec := c.records[id]
		match := true
		for key := range filters {
			if fmt.Sprint(rec[key]) != filters.Get(key) {
				match = false
				break
			}
		}
		if match {
			out = append(out, rec)
		}
	}
	utils.WriteJSON(w, out)
}

func (s *MemoryServer) get(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	rec, ok := c.records[chi.URLParam(r, "id")]
	if !ok {
		utils.WriteError(w, "record not found", http.StatusNotFound)
		return
	}
	utils.WriteJSON(w, rec)
}

func (s *MemoryServer) create(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeRecord(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collection(w, r)
	if !ok {
		return
	}

	id := fmt.Sprint(body["id"])
	if body["id"] == nil || id == "" {
		id = uuid.NewString()
	}
	if _, exists := c.records[id]; exists {
		utils.WriteError(w, "record already exists", http.StatusConflict)
		return
	}
	body["id"] = id
	c.records[id] = body
	c.order = append(c.order, id)

	logger.Debug("Store record created", zap.String("collection", chi.URLParam(r, "collection")), zap.String("id", id))
	utils.WriteJSONStatus(w, http.StatusCreated, body)
}

func (s *MemoryServer) update(replace bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeRecord(w, r)
		if !ok {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		c, ok := s.collection(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		rec, ok := c.records[id]
		if !ok {
			utils.WriteError(w, "record not found", http.StatusNotFound)
			return
		}

		if replace {
			rec = make(map[string]any, len(body))
		}
		for k, v := range body {
			rec[k] = v
		}
		rec["id"] = id
		c.records[id] = rec
		utils.WriteJSON(w, rec)
	}
}

func (s *MemoryServer) remove(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := c.records[id]; !ok {
		utils.WriteError(w, "record not found", http.StatusNotFound)
		return
	}
	delete(c.records, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	utils.WriteJSON(w, map[string]any{})
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		utils.WriteError(w, "body must be a JSON object", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}
