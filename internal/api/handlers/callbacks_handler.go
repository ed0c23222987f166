package handlers

import (
	"net/http"

	"github.com/pvarki/takbackend/internal/services"
)

type CallbacksHandler struct {
	svc services.InstanceService
}

func NewCallbacksHandler(svc services.InstanceService) *CallbacksHandler {
	return &CallbacksHandler{svc: svc}
}

// Complete is the one-use callback the pipeline calls with its outputs.
func (h *CallbacksHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	var outputs map[string]any
	if err := decodeJSON(w, r, &outputs); err != nil || outputs == nil {
		writeErrorStr(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	if err := h.svc.CompleteInstance(r.Context(), id, outputs); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
