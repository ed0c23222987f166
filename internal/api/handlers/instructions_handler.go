package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pvarki/takbackend/internal/api/types"
	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/services"
	"github.com/pvarki/takbackend/pkg/utils"
)

type InstructionsHandler struct {
	svc   services.InstructionsService
	links links.Builder
	docs  types.DocumentLinks
}

func NewInstructionsHandler(svc services.InstructionsService, lb links.Builder, docs types.DocumentLinks) *InstructionsHandler {
	return &InstructionsHandler{svc: svc, links: lb, docs: docs}
}

func (h *InstructionsHandler) Owner(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	ins, err := h.svc.InstanceInstructions(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := types.OwnerInstructionsResponse{
		ServerName: ins.Instance.ServerName,
		Documents:  h.docs,
		Sequences:  make([]types.SequenceResponse, 0, len(ins.Sequences)),
	}
	for i := range ins.Sequences {
		out.Sequences = append(out.Sequences, types.NewSequenceResponse(&ins.Sequences[i], h.links.NextClient(ins.Sequences[i].ID)))
	}
	writeJSON(w, http.StatusOK, ok(r, out))
}

func (h *InstructionsHandler) EndUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	ins, err := h.svc.InstanceInstructions(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := types.EndUserInstructionsResponse{
		ServerName: ins.Instance.ServerName,
		Documents:  h.docs,
		Sequences:  make([]types.EndUserSequence, 0, len(ins.Sequences)),
	}
	for _, seq := range ins.Sequences {
		out.Sequences = append(out.Sequences, types.EndUserSequence{Prefix: seq.Prefix, URL: h.links.NextClient(seq.ID)})
	}
	writeJSON(w, http.StatusOK, ok(r, out))
}

func (h *InstructionsHandler) Client(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid client id")
		return
	}
	b, err := h.svc.ClientBundle(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(r, types.ClientInstructionsResponse{
		ClientID:   b.Client.ID,
		ClientName: b.Client.Name,
		ServerName: b.Instance.ServerName,
		Documents:  h.docs,
		ZipURL:     h.links.ClientZip(b.Client.ID),
		ClientZip:  base64.StdEncoding.EncodeToString(b.Zip),
	}))
}

func (h *InstructionsHandler) ClientZip(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid client id")
		return
	}
	b, err := h.svc.ClientBundle(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	etag := utils.ETag(b.Zip)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, b.Client.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Zip)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Zip)
}
