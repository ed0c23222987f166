package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pvarki/takbackend/internal/api/middleware"
	"github.com/pvarki/takbackend/internal/api/types"
	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/internal/repository"
	"github.com/pvarki/takbackend/internal/services"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"github.com/pvarki/takbackend/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockInstanceService struct {
	mock.Mock
}

func (m *mockInstanceService) CreateInstance(ctx context.Context, ownerID string, input *services.CreateInstanceInput) (*models.Instance, error) {
	args := m.Called(ctx, ownerID, input)
	if v := args.Get(0); v != nil {
		return v.(*models.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInstanceService) GetInstance(ctx context.Context, instanceID uuid.UUID, ownerID string) (*models.Instance, error) {
	args := m.Called(ctx, instanceID, ownerID)
	if v := args.Get(0); v != nil {
		return v.(*models.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInstanceService) ListInstances(ctx context.Context, ownerID string) ([]models.Instance, error) {
	args := m.Called(ctx, ownerID)
	if v := args.Get(0); v != nil {
		return v.([]models.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInstanceService) DeleteInstance(ctx context.Context, instanceID uuid.UUID, ownerID string) error {
	return m.Called(ctx, instanceID, ownerID).Error(0)
}

func (m *mockInstanceService) CompleteInstance(ctx context.Context, instanceID uuid.UUID, outputs map[string]any) error {
	return m.Called(ctx, instanceID, outputs).Error(0)
}

type mockSequenceService struct {
	mock.Mock
}

func (m *mockSequenceService) CreateSequence(ctx context.Context, ownerID string, input *services.CreateSequenceInput) (*models.ClientSequence, error) {
	args := m.Called(ctx, ownerID, input)
	if v := args.Get(0); v != nil {
		return v.(*models.ClientSequence), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSequenceService) ListSequences(ctx context.Context, instanceID uuid.UUID, ownerID string) ([]models.ClientSequence, error) {
	args := m.Called(ctx, instanceID, ownerID)
	if v := args.Get(0); v != nil {
		return v.([]models.ClientSequence), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSequenceService) DeleteSequence(ctx context.Context, sequenceID uuid.UUID, ownerID string) error {
	return m.Called(ctx, sequenceID, ownerID).Error(0)
}

func (m *mockSequenceService) NextClient(ctx context.Context, sequenceID uuid.UUID) (*models.Client, error) {
	args := m.Called(ctx, sequenceID)
	if v := args.Get(0); v != nil {
		return v.(*models.Client), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockInstructionsService struct {
	mock.Mock
}

func (m *mockInstructionsService) InstanceInstructions(ctx context.Context, instanceID uuid.UUID) (*services.InstanceInstructions, error) {
	args := m.Called(ctx, instanceID)
	if v := args.Get(0); v != nil {
		return v.(*services.InstanceInstructions), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInstructionsService) ClientBundle(ctx context.Context, clientID uuid.UUID) (*services.ClientBundle, error) {
	args := m.Called(ctx, clientID)
	if v := args.Get(0); v != nil {
		return v.(*services.ClientBundle), args.Error(1)
	}
	return nil, args.Error(1)
}

var testLinks = links.New("https://tak.example.com")

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) types.APIResponse {
	t.Helper()
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{appErr.New(appErr.CodeInvalid, "x"), http.StatusBadRequest},
		{appErr.New(appErr.CodeNotFound, "entity not found"), http.StatusNotFound},
		{repository.ErrMaxClientsExceeded, http.StatusConflict},
		{repository.ErrAlreadyCompleted, http.StatusConflict},
		{appErr.New(appErr.CodeUnavailable, "x"), http.StatusServiceUnavailable},
		{appErr.New(appErr.CodeUpstreamFailed, "x"), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestCallbacksHandler_Complete(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		path    string
		body    string
		svcErr  error
		callSvc bool
		want    int
	}{
		{name: "first completion", path: id.String(), body: `{"dns_name":"a"}`, callSvc: true, want: http.StatusNoContent},
		{name: "second completion", path: id.String(), body: `{"dns_name":"a"}`, svcErr: repository.ErrAlreadyCompleted, callSvc: true, want: http.StatusConflict},
		{name: "unknown instance", path: id.String(), body: `{}`, svcErr: appErr.New(appErr.CodeNotFound, "entity not found"), callSvc: true, want: http.StatusNotFound},
		{name: "not an object", path: id.String(), body: `[1,2]`, want: http.StatusBadRequest},
		{name: "null body", path: id.String(), body: `null`, want: http.StatusBadRequest},
		{name: "bad id", path: "nope", body: `{}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockInstanceService{}
			if tt.callSvc {
				svc.On("CompleteInstance", mock.Anything, id, mock.Anything).Return(tt.svcErr).Once()
			}
			r := chi.NewRouter()
			r.Post("/callbacks/{id}", NewCallbacksHandler(svc).Complete)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/callbacks/"+tt.path, strings.NewReader(tt.body)))
			require.Equal(t, tt.want, rr.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestSequencesHandler_NextClient(t *testing.T) {
	seqID := uuid.New()

	t.Run("redirects to client instructions", func(t *testing.T) {
		clientID := uuid.New()
		svc := &mockSequenceService{}
		svc.On("NextClient", mock.Anything, seqID).Return(&models.Client{ID: clientID, Name: "FOX_001"}, nil).Once()
		r := chi.NewRouter()
		r.Get("/nextclient/{id}", NewSequencesHandler(svc, testLinks).NextClient)

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nextclient/"+seqID.String(), nil))
		require.Equal(t, http.StatusFound, rr.Code)
		require.Equal(t, testLinks.ClientInstructions(clientID), rr.Header().Get("Location"))
		require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
		svc.AssertExpectations(t)
	})

	t.Run("exhausted sequence conflicts", func(t *testing.T) {
		svc := &mockSequenceService{}
		svc.On("NextClient", mock.Anything, seqID).Return(nil, repository.ErrMaxClientsExceeded).Once()
		r := chi.NewRouter()
		r.Get("/nextclient/{id}", NewSequencesHandler(svc, testLinks).NextClient)

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nextclient/"+seqID.String(), nil))
		require.Equal(t, http.StatusConflict, rr.Code)
		resp := decodeEnvelope(t, rr)
		require.False(t, resp.Success)
		require.Equal(t, string(appErr.CodeMaxClientsExceeded), resp.Error.Code)
	})
}

func TestSequencesHandler_Create(t *testing.T) {
	instanceID := uuid.New()
	svc := &mockSequenceService{}
	svc.On("CreateSequence", mock.Anything, "owner-1", mock.MatchedBy(func(in *services.CreateSequenceInput) bool {
		return in.InstanceID == instanceID && in.Prefix == "FOX_" && in.MaxClients == 3
	})).Return(&models.ClientSequence{ID: uuid.New(), InstanceID: instanceID, Prefix: "FOX_", MaxClients: 3}, nil).Once()
	h := NewSequencesHandler(svc, testLinks)

	body := `{"server":"` + instanceID.String() + `","prefix":"FOX_","max_clients":3}`
	req := httptest.NewRequest(http.MethodPost, "/sequences", strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), middleware.OwnerIDKey, "owner-1"))
	rr := httptest.NewRecorder()
	h.Create(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	svc.AssertExpectations(t)

	t.Run("short prefix rejected", func(t *testing.T) {
		body := `{"server":"` + instanceID.String() + `","prefix":"FO","max_clients":3}`
		rr := httptest.NewRecorder()
		h.Create(rr, httptest.NewRequest(http.MethodPost, "/sequences", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestInstructionsHandler(t *testing.T) {
	docs := types.DocumentLinks{Instructions: "https://docs/instructions.pdf"}
	instanceID := uuid.New()
	clientID := uuid.New()
	inst := &models.Instance{ID: instanceID, ServerName: "alpha"}
	bundle := &services.ClientBundle{
		Client:   &models.Client{ID: clientID, InstanceID: instanceID, Name: "FOX_001"},
		Instance: inst,
		Zip:      []byte("PK\x03\x04zip"),
	}

	newRouter := func(svc services.InstructionsService) http.Handler {
		h := NewInstructionsHandler(svc, testLinks, docs)
		r := chi.NewRouter()
		r.Get("/instances/{id}/instructions", h.Owner)
		r.Get("/instances/{id}/instructions/enduser", h.EndUser)
		r.Get("/clients/{id}/instructions", h.Client)
		r.Get("/clients/{id}/instructions/zip", h.ClientZip)
		return r
	}

	t.Run("not ready yet asks to retry", func(t *testing.T) {
		svc := &mockInstructionsService{}
		svc.On("InstanceInstructions", mock.Anything, instanceID).
			Return(nil, appErr.New(appErr.CodeUnavailable, "TAK server is not yet fully up")).Once()
		rr := httptest.NewRecorder()
		newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/instances/"+instanceID.String()+"/instructions", nil))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Equal(t, retryAfter, rr.Header().Get("Retry-After"))
	})

	t.Run("end user sees sequence links", func(t *testing.T) {
		seqID := uuid.New()
		svc := &mockInstructionsService{}
		svc.On("InstanceInstructions", mock.Anything, instanceID).Return(&services.InstanceInstructions{
			Instance:  inst,
			Sequences: []models.ClientSequence{{ID: seqID, InstanceID: instanceID, Prefix: "FOX_", MaxClients: 5}},
		}, nil).Once()
		rr := httptest.NewRecorder()
		newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/instances/"+instanceID.String()+"/instructions/enduser", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), testLinks.NextClient(seqID))
		require.Contains(t, rr.Body.String(), "https://docs/instructions.pdf")
	})

	t.Run("client instructions embed the zip", func(t *testing.T) {
		svc := &mockInstructionsService{}
		svc.On("ClientBundle", mock.Anything, clientID).Return(bundle, nil).Once()
		rr := httptest.NewRecorder()
		newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clients/"+clientID.String()+"/instructions", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Data types.ClientInstructionsResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		zip, err := base64.StdEncoding.DecodeString(resp.Data.ClientZip)
		require.NoError(t, err)
		require.Equal(t, bundle.Zip, zip)
		require.Equal(t, testLinks.ClientZip(clientID), resp.Data.ZipURL)
	})

	t.Run("zip download", func(t *testing.T) {
		svc := &mockInstructionsService{}
		svc.On("ClientBundle", mock.Anything, clientID).Return(bundle, nil).Twice()
		router := newRouter(svc)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clients/"+clientID.String()+"/instructions/zip", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
		require.Equal(t, `attachment; filename="FOX_001.zip"`, rr.Header().Get("Content-Disposition"))
		require.Equal(t, bundle.Zip, rr.Body.Bytes())

		req := httptest.NewRequest(http.MethodGet, "/clients/"+clientID.String()+"/instructions/zip", nil)
		req.Header.Set("If-None-Match", rr.Header().Get("ETag"))
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNotModified, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("certificate api refusing credentials", func(t *testing.T) {
		svc := &mockInstructionsService{}
		svc.On("ClientBundle", mock.Anything, clientID).
			Return(nil, appErr.New(appErr.CodeUpstreamFailed, "certificate api refused credentials")).Once()
		rr := httptest.NewRecorder()
		newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clients/"+clientID.String()+"/instructions/zip", nil))
		require.Equal(t, http.StatusBadGateway, rr.Code)
		require.Empty(t, rr.Header().Get("Retry-After"))
	})
}

func TestInstancesHandler_CreateRequiresValidBody(t *testing.T) {
	svc := &mockInstanceService{}
	h := NewInstancesHandler(svc, testLinks)

	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/instances", strings.NewReader(`{"color":"red","server_name":"alpha"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "CreateInstance", mock.Anything, mock.Anything, mock.Anything)
}

func TestInstancesHandler_CreateSequenceFailureCarriesInstanceID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		code appErr.Code
		want int
	}{
		{"conflict", appErr.CodeConflict, http.StatusConflict},
		{"internal", appErr.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockInstanceService{}
			svc.On("CreateInstance", mock.Anything, "owner-1", mock.Anything).
				Return(nil, appErr.New(tt.code, "instance created but initial sequence failed").WithMeta("instance_id", id.String())).Once()
			h := NewInstancesHandler(svc, testLinks)

			body := `{"id":"` + id.String() + `","color":"#ff0000","server_name":"alpha","sequence_prefix":"FOX_","sequence_max":5}`
			req := httptest.NewRequest(http.MethodPost, "/instances", strings.NewReader(body))
			req = req.WithContext(context.WithValue(req.Context(), middleware.OwnerIDKey, "owner-1"))
			rr := httptest.NewRecorder()
			h.Create(rr, req)

			require.Equal(t, tt.want, rr.Code)
			resp := decodeEnvelope(t, rr)
			require.NotNil(t, resp.Error)
			require.Equal(t, id.String(), resp.Error.Meta["instance_id"])
			svc.AssertExpectations(t)
		})
	}
}

func TestInstancesHandler_ListPaginates(t *testing.T) {
	items := make([]models.Instance, 5)
	for i := range items {
		items[i] = models.Instance{ID: uuid.New(), OwnerID: "owner-1", ServerName: "srv", TFInputs: []byte(`{"server_name":"srv"}`)}
	}
	svc := &mockInstanceService{}
	svc.On("ListInstances", mock.Anything, "owner-1").Return(items, nil).Once()
	h := NewInstancesHandler(svc, testLinks)

	req := httptest.NewRequest(http.MethodGet, "/instances?page=2&page_size=2", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.OwnerIDKey, "owner-1"))
	rr := httptest.NewRecorder()
	h.List(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data []types.InstanceResponse `json:"data"`
		Meta types.Meta               `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, items[2].ID, resp.Data[0].ID)
	require.Empty(t, resp.Data[0].TFInputs)
	require.Equal(t, int64(5), resp.Meta.Total)
	svc.AssertExpectations(t)
}
