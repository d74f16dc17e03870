package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/jonathan/offer-ingest/internal/db"
	"github.com/jonathan/offer-ingest/internal/fetch"
	"github.com/jonathan/offer-ingest/internal/types"
)

const maxListLimit = 500

// EnqueueRequest is the body of POST /enqueue. Source may be omitted for known hosts.
type EnqueueRequest struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// requestSource parses the named source or detects it from the URL host.
func requestSource(req EnqueueRequest) (types.Source, error) {
	if req.Source != "" {
		return types.ParseSource(req.Source)
	}
	if source, ok := fetch.DetectSource(req.URL); ok {
		return source, nil
	}
	return "", &ErrValidation{Field: "source", Message: "required when the URL host is not a known job board"}
}

// parseQueryInt parses an integer query parameter with default and max values
func parseQueryInt(r *http.Request, key string, defaultValue, maxValue int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		return defaultValue
	}
	if maxValue > 0 && val > maxValue {
		return maxValue
	}
	return val
}

// offerKey reads {source} and {external_id} from the path.
func offerKey(r *http.Request) (types.Source, string, error) {
	source, err := types.ParseSource(r.PathValue("source"))
	if err != nil {
		return "", "", err
	}
	externalID := r.PathValue("external_id")
	if externalID == "" {
		return "", "", &ErrValidation{Field: "external_id", Message: "required"}
	}
	return source, externalID, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListOffers lists offers filtered by ?source=&active=&tag=&limit=.
func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := db.OfferFilters{
		Tag:   q.Get("tag"),
		Limit: parseQueryInt(r, "limit", 50, maxListLimit),
	}
	if raw := q.Get("source"); raw != "" {
		source, err := types.ParseSource(raw)
		if err != nil {
			s.failure(w, r, err)
			return
		}
		filters.Source = source
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			s.failure(w, r, &ErrValidation{Field: "active", Message: "must be a boolean"})
			return
		}
		filters.Active = &active
	}

	offers, err := s.store.ListOffers(r.Context(), filters)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if offers == nil {
		offers = []db.Offer{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"offers": offers,
		"count":  len(offers),
		"limit":  filters.Limit,
	})
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	source, externalID, err := offerKey(r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	offer, err := s.store.GetOfferByKey(r.Context(), source, externalID)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if offer == nil {
		s.errorResponse(w, http.StatusNotFound, "Offer not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, offer)
}

func (s *Server) handleOfferHistory(w http.ResponseWriter, r *http.Request) {
	source, externalID, err := offerKey(r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	records, err := s.store.ListHistory(r.Context(), source, externalID)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if records == nil {
		records = []db.HistoryRecord{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"history": records})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	source, externalID, err := offerKey(r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if err := s.archiver.Archive(r.Context(), source, externalID, db.ReasonManual); err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "archived"})
}

// handleEnqueue queues one offer URL, canonicalised when the source has rules.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.URL == "" {
		s.failure(w, r, &ErrValidation{Field: "url", Message: "required"})
		return
	}
	source, err := requestSource(req)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	target := req.URL
	if rules, ok := s.opts.Canonical[source]; ok {
		if canonical, ok := rules.Canonicalize(req.URL); ok {
			target = canonical
		}
	}

	if err := s.enqueuer.EnqueueURL(r.Context(), target, source); err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"status": "queued", "url": target})
}
