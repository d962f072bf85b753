package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/rpc"
)

// HasEndpoint reports whether the local endpoint table serves name.
func (h *Handler) HasEndpoint(name string) bool {
	return h.registry != nil && h.registry.Has(name)
}

// Call dispatches POST /rpc/{endpoint} through the local endpoint table, the
// same one peers reach over pub/sub.
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res := h.registry.Dispatch(r.Context(), endpoint, body)
	status := http.StatusOK
	if !res.Success && res.Error == rpc.ReasonInvalidEndpoint {
		status = http.StatusNotFound
	}

	h.logger.Info().
		Str("endpoint", endpoint).
		Bool("success", res.Success).
		Msg("Local call")
	h.JSON(w, status, res)
}

// Remote forwards POST /remote/{endpoint} to peers and returns their answer.
func (h *Handler) Remote(w http.ResponseWriter, r *http.Request) {
	if h.remote == nil {
		h.Error(w, http.StatusServiceUnavailable, "remote bridge not configured")
		return
	}
	endpoint := chi.URLParam(r, "endpoint")

	var data json.RawMessage
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > 0 {
		if !json.Valid(body) {
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		data = body
	}

	resp, err := h.remote.Request(r.Context(), endpoint, data)
	if err != nil {
		if errors.Is(err, rpc.ErrTimeout) {
			h.Error(w, http.StatusGatewayTimeout, "timeout")
			return
		}
		h.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Remote call failed")
		h.Error(w, http.StatusBadGateway, "remote request failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(resp) == 0 {
		resp = json.RawMessage("null")
	}
	w.Write(resp)
}
