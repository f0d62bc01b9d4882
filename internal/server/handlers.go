package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/model"
	"github.com/sells-group/license-map/internal/spatial"
)

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/nearby", s.handleNearby)
		r.Get("/records", s.handleRecords)
		r.Get("/records/{license}", s.handleRecord)
		r.Get("/status", s.handleStatus)
		r.Post("/reload", s.handleReload)
	})
	return r
}

type nearbyResponse struct {
	Reference model.ReferencePoint    `json:"reference"`
	RadiusKm  float64                 `json:"radius_km"`
	Count     int                     `json:"count"`
	Results   []model.ProximityResult `json:"results"`
}

type recordsResponse struct {
	Reference *model.ReferencePoint   `json:"reference,omitempty"`
	Count     int                     `json:"count"`
	Records   []model.Record          `json:"records,omitempty"`
	Results   []model.ProximityResult `json:"results,omitempty"`
}

type statusResponse struct {
	Meta     model.DatasetMeta  `json:"meta"`
	Stats    model.DatasetStats `json:"stats"`
	Indexed  int                `json:"indexed"`
	LoadedAt time.Time          `json:"loaded_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"records": len(s.current().dataset.Records),
	})
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref, err := s.reference(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	radius := s.opts.DefaultRadiusKm
	if v := q.Get("radius_km"); v != "" {
		if radius, err = strconv.ParseFloat(v, 64); err != nil || math.IsInf(radius, 0) {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid radius_km %q", v))
			return
		}
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := s.current().index.Within(ref, radius)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, nearbyResponse{
		Reference: ref,
		RadiusKm:  radius,
		Count:     len(results),
		Results:   results,
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	snap := s.current()
	q := r.URL.Query()
	if q.Get("lat") == "" && q.Get("lon") == "" {
		out := make([]model.Record, 0, len(snap.dataset.Records))
		for _, rec := range snap.dataset.Records {
			out = append(out, rec.Clone())
		}
		writeJSON(w, http.StatusOK, recordsResponse{Count: len(out), Records: out})
		return
	}

	ref, err := s.reference(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	results, err := spatial.Annotate(snap.dataset.Records, ref)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Reference: &ref, Count: len(results), Results: results})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	license := chi.URLParam(r, "license")
	snap := s.current()
	i, ok := snap.byID[license]
	if !ok {
		writeError(w, http.StatusNotFound, eris.Errorf("licence %q not found", license))
		return
	}
	writeJSON(w, http.StatusOK, snap.dataset.Records[i].Clone())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.current()
	writeJSON(w, http.StatusOK, statusResponse{
		Meta:     snap.dataset.Meta,
		Stats:    snap.dataset.Stats(),
		Indexed:  snap.index.Len(),
		LoadedAt: snap.loadedAt,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		zap.L().Error("server: reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.handleStatus(w, r)
}

// reference reads lat/lon from the query. Both absent means the fallback
// point; one without the other is an error.
func (s *Server) reference(r *http.Request) (model.ReferencePoint, error) {
	q := r.URL.Query()
	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr == "" && lonStr == "" {
		return s.opts.Fallback, nil
	}
	if latStr == "" || lonStr == "" {
		return model.ReferencePoint{}, eris.New("lat and lon must be given together")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return model.ReferencePoint{}, eris.Errorf("invalid lat %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return model.ReferencePoint{}, eris.Errorf("invalid lon %q", lonStr)
	}
	ref := model.ReferencePoint{Lat: lat, Lon: lon, Source: model.ReferenceManual}
	if err := spatial.ValidateReference(ref); err != nil {
		return model.ReferencePoint{}, err
	}
	return ref, nil
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid limit %q", v)
	}
	return n, nil
}

func statusFor(err error) int {
	if errors.Is(err, spatial.ErrInvalidReferencePoint) || errors.Is(err, spatial.ErrInvalidRadius) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
