package httpapi

import (
	"context"
	"errors"
	"net/http"

	"pkt.systems/fmusd/api"
	"pkt.systems/fmusd/internal/smda"
)

// smdaClient resolves the session's SMDA credentials and connects a client.
func (h *Handler) smdaClient(r *http.Request) (smda.Client, error) {
	if h.smdaConn == nil {
		return nil, httpError{Status: http.StatusServiceUnavailable, Code: "smda_unavailable", Detail: "no SMDA backend configured"}
	}
	id, err := requireSessionID(r)
	if err != nil {
		return nil, err
	}
	accessToken, subscriptionKey, err := h.manager.SMDACredentials(r.Context(), id)
	if err != nil {
		return nil, err
	}
	client, err := h.smdaConn.Connect(r.Context(), accessToken, subscriptionKey)
	if err != nil {
		return nil, httpError{Status: http.StatusBadGateway, Code: "smda_connect_failed", Detail: err.Error()}
	}
	return client, nil
}

func (h *Handler) handleSMDAHealth(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return methodNotAllowed(http.MethodGet)
	}
	client, err := h.smdaClient(r)
	if err != nil {
		return err
	}
	if err := client.CheckHealth(r.Context()); err != nil {
		return smdaQueryError(err)
	}
	w.Header().Set(UpstreamSourceHeaderName, upstreamSourceSMDA)
	writeJSON(w, http.StatusOK, api.Message{Message: "ok"})
	return nil
}

func (h *Handler) handleSMDAField(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return methodNotAllowed(http.MethodPost)
	}
	var req api.SMDAField
	if err := h.decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Identifier == "" {
		return httpError{Status: http.StatusBadRequest, Code: "invalid_request", Detail: "identifier is required"}
	}
	client, err := h.smdaClient(r)
	if err != nil {
		return err
	}
	result, err := client.SearchFields(r.Context(), req.Identifier)
	if err != nil {
		return smdaQueryError(err)
	}
	resp := api.SMDAFieldSearchResult{
		Hits:    result.Hits,
		Pages:   result.Pages,
		Results: make([]api.SMDAField, 0, len(result.Results)),
	}
	for _, f := range result.Results {
		resp.Results = append(resp.Results, api.SMDAField{Identifier: f.Identifier, UUID: f.UUID})
	}
	w.Header().Set(UpstreamSourceHeaderName, upstreamSourceSMDA)
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *Handler) handleSMDAMasterdata(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return methodNotAllowed(http.MethodPost)
	}
	var req api.SMDAMasterdataRequest
	if err := h.decodeJSON(r, &req); err != nil {
		return err
	}
	if len(req.Fields) == 0 {
		return httpError{Status: http.StatusBadRequest, Code: "invalid_request", Detail: "At least one SMDA field must be provided"}
	}
	identifiers := make([]string, 0, len(req.Fields))
	for _, f := range req.Fields {
		identifiers = append(identifiers, f.Identifier)
	}
	client, err := h.smdaClient(r)
	if err != nil {
		return err
	}
	md, err := client.Masterdata(r.Context(), identifiers)
	if err != nil {
		return smdaQueryError(err)
	}
	w.Header().Set(UpstreamSourceHeaderName, upstreamSourceSMDA)
	writeJSON(w, http.StatusOK, smdaMasterdataResponse(md))
	return nil
}

// smdaQueryError maps upstream SMDA failures onto HTTP-aware errors.
func smdaQueryError(err error) error {
	switch {
	case errors.Is(err, smda.ErrNoFieldsFound):
		return httpError{Status: http.StatusUnprocessableEntity, Code: "smda_no_fields", Detail: err.Error()}
	case errors.Is(err, smda.ErrCoordinateSystemNotFound):
		return httpError{Status: http.StatusNotFound, Code: "smda_crs_not_found", Detail: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return httpError{Status: http.StatusServiceUnavailable, Code: "smda_timeout", Detail: "SMDA API request timed out. Please try again."}
	default:
		return httpError{Status: http.StatusBadGateway, Code: "smda_query_failed", Detail: err.Error()}
	}
}

func smdaMasterdataResponse(md smda.Masterdata) api.SMDAMasterdataResult {
	resp := api.SMDAMasterdataResult{
		Field: make([]api.SMDAField, 0, len(md.Field)),
		FieldCoordinateSystem: api.SMDACoordinateSystem{
			Identifier: md.FieldCoordinateSystem.Identifier,
			UUID:       md.FieldCoordinateSystem.UUID,
		},
	}
	for _, f := range md.Field {
		resp.Field = append(resp.Field, api.SMDAField{Identifier: f.Identifier, UUID: f.UUID})
	}
	for _, c := range md.Country {
		resp.Country = append(resp.Country, api.SMDACountry{Identifier: c.Identifier, UUID: c.UUID})
	}
	for _, d := range md.Discovery {
		resp.Discovery = append(resp.Discovery, api.SMDADiscovery{
			FieldIdentifier: d.FieldIdentifier,
			Identifier:      d.Identifier,
			ShortIdentifier: d.ShortIdentifier,
			UUID:            d.UUID,
		})
	}
	for _, s := range md.StratigraphicColumns {
		resp.StratigraphicColumns = append(resp.StratigraphicColumns, api.SMDAStratColumn{Identifier: s.Identifier, UUID: s.UUID})
	}
	for _, cs := range md.CoordinateSystems {
		resp.CoordinateSystems = append(resp.CoordinateSystems, api.SMDACoordinateSystem{Identifier: cs.Identifier, UUID: cs.UUID})
	}
	return resp
}
