package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
)

type assetPayload struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Chain         string          `json:"chain,omitempty"`
	Address       string          `json:"address,omitempty"`
	Symbol        string          `json:"symbol,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt,omitempty"`
}

func toAssetPayload(a core.Asset) assetPayload {
	return assetPayload{
		ID:            a.ID,
		Name:          a.Name,
		Currency:      a.Currency,
		CurrentAmount: a.CurrentAmount,
		Chain:         a.Chain,
		Address:       a.Address,
		Symbol:        a.Symbol,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (p assetPayload) toDomain() core.Asset {
	return core.Asset{
		ID:            p.ID,
		Name:          p.Name,
		Currency:      p.Currency,
		CurrentAmount: p.CurrentAmount,
		Chain:         p.Chain,
		Address:       p.Address,
		Symbol:        p.Symbol,
	}
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.assets.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]assetPayload, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetPayload(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var body assetPayload
	if !decodeBody(w, r, &body) {
		return
	}
	created, err := s.assets.Create(r.Context(), body.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetPayload(created))
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.assets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetPayload(asset))
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	var body assetPayload
	if !decodeBody(w, r, &body) {
		return
	}
	body.ID = r.PathValue("id")
	updated, report, err := s.assets.Update(r.Context(), body.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":          toAssetPayload(updated),
		"overAllocation": report,
	})
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.assets.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshAsset(w http.ResponseWriter, r *http.Request) {
	asset, report, err := s.assets.RefreshBalance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":          toAssetPayload(asset),
		"overAllocation": report,
	})
}
