package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/w-h-a/vulnkb/rag"
	"github.com/w-h-a/vulnkb/store"
)

type queryRequest struct {
	Query string `json:"query"`
	Count int    `json:"n,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Security Vulnerabilities Knowledge Base API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if len(req.Query) == 0 {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var opts []rag.QueryOption
	if req.Count > 0 {
		opts = append(opts, rag.WithCount(req.Count))
	}

	result := s.engine.ProcessQuery(r.Context(), req.Query, opts...)

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListVulnerabilities(w http.ResponseWriter, r *http.Request) {
	opts := []store.ListOption{}

	if pkg := r.URL.Query().Get("package"); len(pkg) > 0 {
		opts = append(opts, store.WithPackage(pkg))
	}
	if severity := r.URL.Query().Get("severity"); len(severity) > 0 {
		opts = append(opts, store.WithSeverity(severity))
	}

	limit, err := queryInt(r, "limit", 10)
	if err != nil || limit < 1 || limit > 100 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}
	opts = append(opts, store.WithLimit(limit))

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}
	opts = append(opts, store.WithOffset(offset))

	vulns, err := s.store.List(r.Context(), opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching vulnerabilities: %v", err))
		return
	}

	if vulns == nil {
		vulns = []*store.Vulnerability{}
	}

	writeJSON(w, http.StatusOK, vulns)
}

func (s *Server) handleCreateVulnerability(w http.ResponseWriter, r *http.Request) {
	var v store.Vulnerability
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if len(v.Id) == 0 || len(v.Package) == 0 {
		writeError(w, http.StatusBadRequest, "id and package are required")
		return
	}

	if err := s.store.Create(r.Context(), &v); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, fmt.Sprintf("vulnerability with ID %s already exists", v.Id))
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("error creating vulnerability: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, &v)
}

func (s *Server) handleGetVulnerability(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	v, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("vulnerability with ID %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching vulnerability: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdateVulnerability(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var v store.Vulnerability
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	v.Id = id

	if err := s.store.Update(r.Context(), &v); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("vulnerability with ID %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("error updating vulnerability: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, &v)
}

func (s *Server) handleDeleteVulnerability(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	// vector and reference first so the index never outlives the record
	if vectorId, err := s.store.VectorId(ctx, id); err == nil {
		if err := s.index.Delete(ctx, vectorId); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("error deleting vector: %v", err))
			return
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("error deleting vulnerability: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching packages: %v", err))
		return
	}

	packages := make([]string, 0, len(stats.TopPackages))
	for pkg := range stats.TopPackages {
		packages = append(packages, pkg)
	}

	writeJSON(w, http.StatusOK, packages)
}

func (s *Server) handleSeverities(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching severities: %v", err))
		return
	}

	severities := make([]string, 0, len(stats.BySeverity))
	for severity := range stats.BySeverity {
		severities = append(severities, severity)
	}

	writeJSON(w, http.StatusOK, severities)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching statistics: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if len(raw) == 0 {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
