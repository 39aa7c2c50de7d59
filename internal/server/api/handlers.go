// Package api exposes typed repositories over HTTP. Each registered entity
// type gets a set of chi routes mapping onto its repository operations.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/server/graph"
	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/repository"
)

// Server holds the HTTP server dependencies
type Server struct {
	store  *graph.Store
	logger *zap.Logger
}

// New creates a new API server
func New(store *graph.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, logger: logger.Named("api")}
}

// Routes builds the router: /health, /metrics, and whatever mount registers
// under /api.
func (s *Server) Routes(mount func(r chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.HealthCheck)
	if s.store != nil && s.store.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.store.Metrics.Handler())
	}
	r.Route("/api", mount)
	return r
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Mount registers the CRUD and label routes of repo under path:
//
//	POST   {path}                      add
//	GET    {path}?limit=&skip=&label=  list
//	GET    {path}/{id}                 get
//	PUT    {path}/{id}                 update
//	DELETE {path}/{id}                 delete
//	GET    {path}/{id}/labels          labels
//	PUT    {path}/{id}/labels/{label}  add label
//	DELETE {path}/{id}/labels/{label}  remove label
func Mount[E repository.Entity[K], K repository.Key](s *Server, r chi.Router, path string, repo *repository.Repository[E, K]) {
	h := &entityHandler[E, K]{Server: s, repo: repo}
	r.Post(path, h.create)
	r.Get(path, h.list)
	r.Get(path+"/{id}", h.get)
	r.Put(path+"/{id}", h.update)
	r.Delete(path+"/{id}", h.delete)
	r.Get(path+"/{id}/labels", h.labels)
	r.Put(path+"/{id}/labels/{label}", h.addLabel)
	r.Delete(path+"/{id}/labels/{label}", h.deleteLabel)
}

// MountRelation registers the name relationship routes from repo's entities
// to O under path:
//
//	GET    {path}/{id}/{name}          related entities
//	GET    {path}/{id}/{name}/count    related count
//	PUT    {path}/{id}/{name}/{outID}  link, with an optional JSON property body
//	GET    {path}/{id}/{name}/{outID}  exists
//	DELETE {path}/{id}/{name}/{outID}  unlink
func MountRelation[E repository.Entity[K], O repository.Entity[K], K repository.Key](s *Server, r chi.Router, path string, repo *repository.Repository[E, K], name string) {
	h := &relationHandler[E, O, K]{Server: s, repo: repo, name: name}
	base := path + "/{id}/" + name
	r.Get(base, h.related)
	r.Get(base+"/count", h.count)
	r.Put(base+"/{outID}", h.link)
	r.Get(base+"/{outID}", h.exists)
	r.Delete(base+"/{outID}", h.unlink)
}

type entityHandler[E repository.Entity[K], K repository.Key] struct {
	*Server
	repo *repository.Repository[E, K]
}

func (h *entityHandler[E, K]) create(w http.ResponseWriter, r *http.Request) {
	e, err := decodeEntity[E](r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	added, err := h.repo.Add(r.Context(), e)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeEntity(w, http.StatusCreated, added)
}

func (h *entityHandler[E, K]) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"))
	if err != nil {
		http.Error(w, "invalid limit parameter", http.StatusBadRequest)
		return
	}
	skip, err := intParam(query.Get("skip"))
	if err != nil {
		http.Error(w, "invalid skip parameter", http.StatusBadRequest)
		return
	}

	opts := []repository.QueryOption{repository.Paged(limit, skip)}
	if label := query.Get("label"); label != "" {
		opts = append(opts, repository.WithLabel(label))
	}

	entities, err := h.repo.GetAll(r.Context(), opts...)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeEntities(h.Server, w, entities)
}

func (h *entityHandler[E, K]) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}

	e, found, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !found {
		http.Error(w, fmt.Sprintf("%s %v not found", h.repo.TypeName(), id), http.StatusNotFound)
		return
	}
	h.writeEntity(w, http.StatusOK, e)
}

// update replaces the entity keyed by the path; the body's own Id is ignored.
func (h *entityHandler[E, K]) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}
	e, err := decodeEntity[E](r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e.SetID(id)

	updated, err := h.repo.Update(r.Context(), e)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeEntity(w, http.StatusOK, updated)
}

func (h *entityHandler[E, K]) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}

	e, found, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !found {
		http.Error(w, fmt.Sprintf("%s %v not found", h.repo.TypeName(), id), http.StatusNotFound)
		return
	}
	if err := h.repo.Delete(r.Context(), e); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *entityHandler[E, K]) labels(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}

	labels, err := h.repo.GetLabels(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
}

func (h *entityHandler[E, K]) addLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}

	done, err := h.repo.AddLabel(r.Context(), id, chi.URLParam(r, "label"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": done})
}

func (h *entityHandler[E, K]) deleteLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}

	done, err := h.repo.DeleteLabel(r.Context(), id, chi.URLParam(r, "label"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": done})
}

type relationHandler[E repository.Entity[K], O repository.Entity[K], K repository.Key] struct {
	*Server
	repo *repository.Repository[E, K]
	name string
}

func (h *relationHandler[E, O, K]) related(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}

	related, err := repository.GetRelated[O](r.Context(), h.repo, id, h.name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeEntities(h.Server, w, related)
}

func (h *relationHandler[E, O, K]) count(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}

	n, err := repository.GetRelatedCount[O](r.Context(), h.repo, id, h.name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *relationHandler[E, O, K]) link(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}
	outID, ok := pathKey[K](w, r, "outID")
	if !ok {
		return
	}

	relation, err := decodeProperties(r.Body)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var payload any
	if relation != nil {
		payload = normalizeNumbers(relation)
	}
	done, err := repository.AddRelationshipWith[O](r.Context(), h.repo, id, outID, h.name, payload)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"linked": done})
}

func (h *relationHandler[E, O, K]) exists(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}
	outID, ok := pathKey[K](w, r, "outID")
	if !ok {
		return
	}

	has, err := repository.HasRelationship[O](r.Context(), h.repo, id, outID, h.name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": has})
}

func (h *relationHandler[E, O, K]) unlink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey[K](w, r, "id")
	if !ok {
		return
	}
	outID, ok := pathKey[K](w, r, "outID")
	if !ok {
		return
	}

	done, err := repository.DeleteRelationship[O](r.Context(), h.repo, id, outID, h.name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": done})
}

// fail maps repository and store errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case repository.IsMissingIdentity(err),
		repository.IsUnsupported(err),
		errors.Is(err, cypher.ErrInvalidIdentifier):
		status = http.StatusBadRequest
	case errors.Is(err, graph.ErrConstraintViolation):
		status = http.StatusConflict
	case graph.IsNotSupported(err):
		status = http.StatusNotImplemented
	case errors.Is(err, graph.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

// writeEntity renders e with the same property names it is stored under.
func (s *Server) writeEntity(w http.ResponseWriter, status int, e any) {
	props, err := cypher.Properties(e)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, status, props)
}

func writeEntities[E any](s *Server, w http.ResponseWriter, entities []E) {
	items := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		props, err := cypher.Properties(e)
		if err != nil {
			s.fail(w, err)
			return
		}
		items = append(items, props)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathKey[K repository.Key](w http.ResponseWriter, r *http.Request, param string) (K, bool) {
	k, err := repository.ParseKey[K](chi.URLParam(r, param))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s parameter", param), http.StatusBadRequest)
		return k, false
	}
	return k, true
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// decodeEntity reads a JSON object keyed by property names into E.
func decodeEntity[E any](r *http.Request) (E, error) {
	var zero E
	props, err := decodeProperties(r.Body)
	if err != nil {
		return zero, fmt.Errorf("decoding body: %w", err)
	}
	return cypher.Decode[E](props)
}

// normalizeNumbers turns json.Number values into int64 or float64 so the
// drivers see native types.
func normalizeNumbers(props map[string]any) map[string]any {
	for k, v := range props {
		switch tv := v.(type) {
		case json.Number:
			if n, err := tv.Int64(); err == nil {
				props[k] = n
			} else if f, err := tv.Float64(); err == nil {
				props[k] = f
			}
		case map[string]any:
			props[k] = normalizeNumbers(tv)
		}
	}
	return props
}

func decodeProperties(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var props map[string]any
	if err := dec.Decode(&props); err != nil {
		return nil, err
	}
	return props, nil
}
