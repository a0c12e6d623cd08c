package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/reftable"
	"github.com/joseph-ayodele/cbam-tracker/internal/repository"
	"github.com/joseph-ayodele/cbam-tracker/internal/taxcalc"
)

type materialsResponse struct {
	Categories          []string                `json:"categories"`
	Records             []entity.MaterialRecord `json:"records"`
	DisplayExchangeRate float64                 `json:"display_exchange_rate"`
	ExpiresAt           *time.Time              `json:"expires_at,omitempty"`
}

func (s *Server) handleMaterials(w http.ResponseWriter, r *http.Request) {
	t := s.Tables.Table(r.Context())
	resp := materialsResponse{
		Categories:          t.CategoriesWithOther(),
		Records:             t.Records(),
		DisplayExchangeRate: t.DisplayExchangeRate(),
	}
	if p, ok := s.Tables.(*reftable.Provider); ok {
		if exp := p.ExpiresAt(); !exp.IsZero() {
			resp.ExpiresAt = &exp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type estimateRequest struct {
	Material string  `json:"material"`
	WeightKg float64 `json:"weight_kg"`
}

type estimateResponse struct {
	taxcalc.Result
	Emissions float64 `json:"emissions_tco2e"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	material := strings.TrimSpace(req.Material)
	v := common.NewValidator().Field("material", material, common.Required, common.MaxLength(maxNameLen))
	if err := common.ValidateAndReturnError(v); err != nil {
		writeError(w, r, err)
		return
	}
	res := s.Analyzer.Estimate(r.Context(), material, req.WeightKg)
	writeJSON(w, http.StatusOK, estimateResponse{
		Result:    res,
		Emissions: taxcalc.EstimatedEmissions(res),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"categories": s.Tables.Table(r.Context()).Len(),
		"history":    repository.IsEnabled(s.History),
	})
}
