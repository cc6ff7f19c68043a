package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/MJE43/raid-extract/internal/fairness"
	"github.com/MJE43/raid-extract/internal/rules"
	"github.com/MJE43/raid-extract/internal/validate"
)

func (s *Server) handleRequestSeed(w http.ResponseWriter, r *http.Request) {
	commitment, err := s.seeds.RequestSeed(r.Context(), PlayerID(r.Context()))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, commitment)
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	seedID := chi.URLParam(r, "seedID")
	claim, ok := s.decodeClaim(w, r)
	if !ok {
		return
	}

	verdict, err := s.seeds.RevealAndSubmit(r.Context(), PlayerID(r.Context()), seedID, claim)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, verdict)
}

// handleValidate runs the validator without touching any seed or ledger.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	claim, ok := s.decodeClaim(w, r)
	if !ok {
		return
	}

	lo, hi := validate.ExpectedBand(claim)
	resp := ValidateResponse{
		Band:     [2]float64{lo, hi},
		MaxScore: validate.MaxScore(claim.ElapsedSeconds),
	}
	if rej := validate.Validate(claim); rej != nil {
		resp.Rejection = rej
	} else {
		award := validate.Authoritative(claim)
		resp.Valid = true
		resp.Award = &award
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.db.EnsureProfile(r.Context(), PlayerID(r.Context()))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.queryLimit(w, r)
	if !ok {
		return
	}
	playerID := PlayerID(r.Context())
	raids, err := s.db.ListHistory(r.Context(), playerID, limit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{PlayerID: playerID, Raids: raids})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.queryLimit(w, r)
	if !ok {
		return
	}
	entries, err := s.db.ListFeed(r.Context(), limit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FeedResponse{Entries: entries})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, RulesResponse{
		EngineVersion: EngineVersion,
		Difficulties:  rules.Difficulties(),
		Catalog:       s.catalog,
		Limits:        currentLimits(),
	})
}

// decodeClaim reads and checks a claim body. It writes the error response
// itself and reports false when the request should stop.
func (s *Server) decodeClaim(w http.ResponseWriter, r *http.Request) (validate.Claim, bool) {
	var claim validate.Claim
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&claim); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
		return claim, false
	}

	if err := s.validate.Struct(claim); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			s.errorHandler.HandleValidationError(w, r, fe.Field(), fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			return claim, false
		}
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return claim, false
	}
	return claim, true
}

func (s *Server) queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		s.errorHandler.HandleValidationError(w, r, "limit", "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

// handleServiceError maps seed service and store errors onto responses.
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	switch {
	case errors.Is(err, fairness.ErrSeedConsumed):
		s.errorHandler.HandleError(w, r, NewError(ErrTypeSeedConsumed, "seed already settled").
			WithRequestID(requestID).
			WithContext("seed_id", chi.URLParam(r, "seedID")).
			Build(), http.StatusConflict)
	case errors.Is(err, fairness.ErrUnknownSeed):
		s.errorHandler.HandleError(w, r, NewError(ErrTypeSeedNotFound, "unknown seed").
			WithRequestID(requestID).
			WithContext("seed_id", chi.URLParam(r, "seedID")).
			Build(), http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		s.errorHandler.HandleError(w, r, NewError(ErrTypeTimeout, "request timed out").
			WithRequestID(requestID).
			Build(), http.StatusGatewayTimeout)
	default:
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
	}
}
