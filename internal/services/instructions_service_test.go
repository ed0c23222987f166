package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/pvarki/takbackend/internal/certsapi"
	"github.com/pvarki/takbackend/internal/models"
	appErr "github.com/pvarki/takbackend/pkg/errors"
)

func outputsFor(t *testing.T, srv *httptest.Server) datatypes.JSON {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return datatypes.JSON(fmt.Sprintf(`{"dns_name":{"value":%q},"cert_api_token":{"value":"tok"}}`, u.Host))
}

func TestInstructionsService_ClientBundleWaitsForReadiness(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
		probes int
	)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.URL.Path == "/api/v1":
			probes++
			if probes < 3 {
				events = append(events, "not-ready")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			events = append(events, "ready")
		case r.Method == http.MethodGet:
			events = append(events, "get")
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost:
			events = append(events, "post")
			_, _ = w.Write([]byte("ZIP"))
		}
	}))
	defer srv.Close()

	now := time.Now()
	inst := &models.Instance{ID: uuid.New(), ServerName: "alpha", TFOutputs: outputsFor(t, srv), TFCompleted: &now}
	client := &models.Client{ID: uuid.New(), InstanceID: inst.ID, Name: "FOX_001"}

	instances := &mockInstanceRepository{}
	clients := &mockClientRepository{}
	instances.On("GetByID", mock.Anything, inst.ID, mock.Anything).Return(nil, inst).Once()
	clients.On("GetByID", mock.Anything, client.ID, mock.Anything).Return(nil, client).Once()

	svc := NewInstructionsService(instances, &mockSequenceRepository{}, clients, certsapi.NewPoller(time.Millisecond), InstructionsServiceOptions{
		CertsScheme:   "https",
		CertsHTTP:     srv.Client(),
		ReadinessWait: 5 * time.Second,
	})

	bundle, err := svc.ClientBundle(context.Background(), client.ID)
	require.NoError(t, err)
	require.Equal(t, "ZIP", string(bundle.Zip))
	require.Equal(t, "FOX_001", bundle.Client.Name)
	require.Equal(t, []string{"not-ready", "not-ready", "ready", "get", "post"}, events)
	mock.AssertExpectationsForObjects(t, instances, clients)
}

func TestInstructionsService_Gates(t *testing.T) {
	now := time.Now()
	outputs := datatypes.JSON(`{"dns_name":"alpha.example.com","cert_api_token":"tok"}`)

	tests := []struct {
		name     string
		instance *models.Instance
		poller   error
		wantCode appErr.Code
	}{
		{name: "outputs not received", instance: &models.Instance{}, wantCode: appErr.CodeUnavailable},
		{name: "completed without outputs", instance: &models.Instance{TFCompleted: &now}, wantCode: appErr.CodeConflict},
		{name: "outputs without cert api", instance: &models.Instance{TFOutputs: datatypes.JSON(`{"x":1}`)}, wantCode: appErr.CodeConflict},
		{name: "cert api not up", instance: &models.Instance{TFOutputs: outputs}, poller: context.DeadlineExceeded, wantCode: appErr.CodeUnavailable},
		{name: "cert api refuses token", instance: &models.Instance{TFOutputs: outputs}, poller: certsapi.ErrUnauthorized, wantCode: appErr.CodeUpstreamFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.instance.ID = uuid.New()
			instances := &mockInstanceRepository{}
			poller := &mockPoller{}
			instances.On("GetByID", mock.Anything, tt.instance.ID, mock.Anything).Return(nil, tt.instance).Once()
			if tt.poller != nil {
				poller.On("AwaitReady", mock.Anything, mock.Anything).Return(tt.poller).Once()
			}

			svc := NewInstructionsService(instances, &mockSequenceRepository{}, &mockClientRepository{}, poller, InstructionsServiceOptions{ReadinessWait: time.Second})
			_, err := svc.InstanceInstructions(context.Background(), tt.instance.ID)
			require.Equal(t, tt.wantCode, appErr.CodeOf(err), "got %v", err)
			mock.AssertExpectationsForObjects(t, instances, poller)
		})
	}
}

func TestInstructionsService_InstanceInstructions(t *testing.T) {
	inst := &models.Instance{ID: uuid.New(), ServerName: "alpha", TFOutputs: datatypes.JSON(`{"dns_name":"a","cert_api_token":"b"}`)}
	seqs := []models.ClientSequence{{ID: uuid.New(), InstanceID: inst.ID, Prefix: "FOX_", MaxClients: 10, NextClientNo: 4}}

	instances := &mockInstanceRepository{}
	sequences := &mockSequenceRepository{}
	poller := &mockPoller{}
	instances.On("GetByID", mock.Anything, inst.ID, mock.Anything).Return(nil, inst).Once()
	sequences.On("ListByInstance", mock.Anything, inst.ID).Return(seqs, nil).Once()
	poller.On("AwaitReady", mock.Anything, mock.AnythingOfType("*certsapi.Client")).Return(nil).Once()

	svc := NewInstructionsService(instances, sequences, &mockClientRepository{}, poller, InstructionsServiceOptions{})
	out, err := svc.InstanceInstructions(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Equal(t, "alpha", out.Instance.ServerName)
	require.Len(t, out.Sequences, 1)
	mock.AssertExpectationsForObjects(t, instances, sequences, poller)
}
