package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/pvarki/takbackend/internal/api/middleware"
	"github.com/pvarki/takbackend/internal/api/types"
	"github.com/pvarki/takbackend/internal/api/validators"
	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/services"
)

type SequencesHandler struct {
	svc   services.SequenceService
	links links.Builder
}

func NewSequencesHandler(svc services.SequenceService, lb links.Builder) *SequencesHandler {
	return &SequencesHandler{svc: svc, links: lb}
}

func (h *SequencesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.SequenceCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	seq, err := h.svc.CreateSequence(r.Context(), middleware.GetOwnerID(r.Context()), &services.CreateSequenceInput{
		InstanceID: uuid.MustParse(req.Server),
		Prefix:     req.Prefix,
		MaxClients: req.MaxClients,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ok(r, types.NewSequenceResponse(seq, h.links.NextClient(seq.ID))))
}

func (h *SequencesHandler) ListForInstance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	seqs, err := h.svc.ListSequences(r.Context(), id, middleware.GetOwnerID(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]types.SequenceResponse, 0, len(seqs))
	for i := range seqs {
		out = append(out, types.NewSequenceResponse(&seqs[i], h.links.NextClient(seqs[i].ID)))
	}
	writeJSON(w, http.StatusOK, ok(r, out))
}

func (h *SequencesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid sequence id")
		return
	}
	if err := h.svc.DeleteSequence(r.Context(), id, middleware.GetOwnerID(r.Context())); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NextClient allocates a client name and redirects to its instructions.
// Every GET allocates, so the link must not be prefetched.
func (h *SequencesHandler) NextClient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid sequence id")
		return
	}
	client, err := h.svc.NextClient(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.links.ClientInstructions(client.ID), http.StatusFound)
}
