package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/portfolio"
)

// maxImportBytes bounds an import request body.
const maxImportBytes = 10 << 20

// handlePortfolio handles GET /api/portfolio?force=bool.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	summary, err := s.app.Portfolio.GetSummary(r.Context(), portfolio.SummaryOptions{Force: queryBool(r, "force")})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// handleHoldings handles GET /api/portfolio/holdings?q=&sort=&order=asc|desc.
func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	order := strings.ToLower(q.Get("order"))
	if order != "" && order != "asc" && order != "desc" {
		s.writeServiceError(w, r, &models.ValidationError{Field: "order", Message: "order must be asc or desc"})
		return
	}

	holdings, err := s.app.Portfolio.GetHoldings(r.Context(), portfolio.HoldingsQuery{
		Search:     q.Get("q"),
		Sort:       q.Get("sort"),
		Descending: order == "desc",
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"holdings": holdings,
		"count":    len(holdings),
	})
}

// handleAccounts handles GET /api/portfolio/accounts.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	accounts, err := s.app.Portfolio.GetAccounts(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// handleAllocationChart handles GET /api/portfolio/allocation.png.
func (s *Server) handleAllocationChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	summary, err := s.app.Portfolio.GetSummary(r.Context(), portfolio.SummaryOptions{})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeChart(w, r, func() ([]byte, error) { return portfolio.RenderAllocationChart(summary.Allocation) })
}

// handleHoldingsChart handles GET /api/portfolio/holdings.png.
func (s *Server) handleHoldingsChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	summary, err := s.app.Portfolio.GetSummary(r.Context(), portfolio.SummaryOptions{})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeChart(w, r, func() ([]byte, error) { return portfolio.RenderHoldingsChart(summary.Holdings) })
}

func (s *Server) writeChart(w http.ResponseWriter, r *http.Request, render func() ([]byte, error)) {
	png, err := render()
	if errors.Is(err, portfolio.ErrNothingToChart) {
		WriteErrorWithCode(w, http.StatusNotFound, err.Error(), "no_data")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handlePositions handles GET (list), POST (add) and DELETE (clear) on /api/positions.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		positions, err := s.app.Portfolio.ListPositions(ctx)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"positions": positions,
			"count":     len(positions),
		})

	case http.MethodPost:
		var in models.PositionInput
		if !DecodeJSON(w, r, &in) {
			return
		}
		p, err := in.ToPosition(0)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		result, err := s.app.Portfolio.AddPosition(ctx, p)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, result)

	case http.MethodDelete:
		result, err := s.app.Portfolio.ClearPositions(ctx)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// routePosition handles GET, PATCH and DELETE on /api/positions/{id}.
func (s *Server) routePosition(w http.ResponseWriter, r *http.Request) {
	id := PathParam(r, "/api/positions/", "")
	if id == "" || strings.Contains(strings.TrimPrefix(r.URL.Path, "/api/positions/"), "/") {
		WriteErrorWithCode(w, http.StatusNotFound, "Not found", "not_found")
		return
	}
	if !RequireMethod(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete) {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		p, err := s.app.Portfolio.GetPosition(ctx, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)

	case http.MethodPatch:
		var upd models.PositionUpdate
		if !DecodeJSON(w, r, &upd) {
			return
		}
		result, err := s.app.Portfolio.UpdatePosition(ctx, id, upd)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)

	case http.MethodDelete:
		result, err := s.app.Portfolio.RemovePosition(ctx, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// handlePositionsImport handles POST /api/positions/import. The body is a
// JSON array of records or {"positions": [...]}.
func (s *Server) handlePositionsImport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, "Import body too large", codeValidation)
		return
	}
	positions, err := app.ParsePositions(body)
	if errors.Is(err, app.ErrMalformedImport) {
		WriteErrorWithCode(w, http.StatusBadRequest, "Invalid JSON: "+err.Error(), codeValidation)
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.app.Portfolio.ImportPositions(r.Context(), positions)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, result)
}

// handleRefresh handles GET (status) and POST (forced refresh) on /api/refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		WriteJSON(w, http.StatusOK, s.app.Portfolio.RefreshStatus())
		return
	}

	summary, err := s.app.Portfolio.Refresh(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}
