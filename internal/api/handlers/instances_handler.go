package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/pvarki/takbackend/internal/api/middleware"
	"github.com/pvarki/takbackend/internal/api/types"
	"github.com/pvarki/takbackend/internal/api/validators"
	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/internal/services"
)

type InstancesHandler struct {
	svc   services.InstanceService
	links links.Builder
}

func NewInstancesHandler(svc services.InstanceService, lb links.Builder) *InstancesHandler {
	return &InstancesHandler{svc: svc, links: lb}
}

func (h *InstancesHandler) present(inst *models.Instance, withTF bool) types.InstanceResponse {
	return types.NewInstanceResponse(inst, types.InstanceURLs{
		EndUser: h.links.EndUserInstructions(inst.ID),
		Owner:   h.links.OwnerInstructions(inst.ID),
	}, withTF)
}

func (h *InstancesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.InstanceCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	var id uuid.UUID
	if req.ID != "" {
		id = uuid.MustParse(req.ID)
	}

	inst, err := h.svc.CreateInstance(r.Context(), middleware.GetOwnerID(r.Context()), &services.CreateInstanceInput{
		ID:               id,
		Color:            req.Color,
		Grouping:         req.Grouping,
		ServerName:       req.ServerName,
		TFInputs:         req.TFInputs,
		ReadyEmail:       req.ReadyEmail,
		ReadyCallbackURL: req.ReadyCallbackURL,
		SequencePrefix:   req.SequencePrefix,
		SequenceMax:      req.SequenceMax,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ok(r, h.present(inst, true)))
}

func (h *InstancesHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListInstances(r.Context(), middleware.GetOwnerID(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))

	out := make([]types.InstanceResponse, 0, end-start)
	for i := range items[start:end] {
		out = append(out, h.present(&items[start+i], false))
	}
	resp := ok(r, out)
	resp.Meta.Page, resp.Meta.PageSize, resp.Meta.Total = page, size, int64(len(items))
	writeJSON(w, http.StatusOK, resp)
}

func (h *InstancesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	inst, err := h.svc.GetInstance(r.Context(), id, middleware.GetOwnerID(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(r, h.present(inst, true)))
}

func (h *InstancesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	if err := h.svc.DeleteInstance(r.Context(), id, middleware.GetOwnerID(r.Context())); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
