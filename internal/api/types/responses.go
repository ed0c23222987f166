package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pvarki/takbackend/internal/models"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details string         `json:"details,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
	Total     int64  `json:"total,omitempty"`
}

type InstanceResponse struct {
	ID                  uuid.UUID       `json:"id"`
	OwnerID             string          `json:"owner_id"`
	Color               string          `json:"color"`
	Grouping            string          `json:"grouping"`
	ServerName          string          `json:"server_name"`
	TFCompleted         *time.Time      `json:"tf_completed"`
	TFInputs            json.RawMessage `json:"tf_inputs,omitempty"`
	TFOutputs           json.RawMessage `json:"tf_outputs,omitempty"`
	ReadyEmail          *string         `json:"ready_email,omitempty"`
	ReadyCallbackURL    *string         `json:"ready_callback_url,omitempty"`
	EndUserInstructions string          `json:"enduser_instructions,omitempty"`
	OwnerInstructions   string          `json:"owner_instructions,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// InstanceURLs are only rendered once the pipeline has reported back.
type InstanceURLs struct {
	EndUser string
	Owner   string
}

// NewInstanceResponse hides the pipeline payloads unless withTF is set.
func NewInstanceResponse(inst *models.Instance, urls InstanceURLs, withTF bool) InstanceResponse {
	out := InstanceResponse{
		ID:               inst.ID,
		OwnerID:          inst.OwnerID,
		Color:            inst.Color,
		Grouping:         inst.Grouping,
		ServerName:       inst.ServerName,
		TFCompleted:      inst.TFCompleted,
		ReadyEmail:       inst.ReadyEmail,
		ReadyCallbackURL: inst.ReadyCallbackURL,
		CreatedAt:        inst.CreatedAt,
		UpdatedAt:        inst.UpdatedAt,
	}
	if withTF {
		if len(inst.TFInputs) > 0 {
			out.TFInputs = json.RawMessage(inst.TFInputs)
		}
		if inst.HasOutputs() {
			out.TFOutputs = json.RawMessage(inst.TFOutputs)
		}
	}
	if inst.Completed() || inst.HasOutputs() {
		out.EndUserInstructions = urls.EndUser
		out.OwnerInstructions = urls.Owner
	}
	return out
}

type SequenceResponse struct {
	ID           uuid.UUID `json:"id"`
	Server       uuid.UUID `json:"server"`
	Prefix       string    `json:"prefix"`
	MaxClients   int       `json:"max_clients"`
	NextClientNo int       `json:"next_client_no"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewSequenceResponse(seq *models.ClientSequence, nextClientURL string) SequenceResponse {
	return SequenceResponse{
		ID:           seq.ID,
		Server:       seq.InstanceID,
		Prefix:       seq.Prefix,
		MaxClients:   seq.MaxClients,
		NextClientNo: seq.NextClientNo,
		URL:          nextClientURL,
		CreatedAt:    seq.CreatedAt,
	}
}

type DocumentLinks struct {
	Instructions string `json:"instructions_pdf,omitempty"`
	TAKCard      string `json:"takcard_pdf,omitempty"`
	Templates    string `json:"templates_zip,omitempty"`
}

type OwnerInstructionsResponse struct {
	ServerName string             `json:"server_name"`
	Documents  DocumentLinks      `json:"documents"`
	Sequences  []SequenceResponse `json:"client_sequences"`
}

type EndUserSequence struct {
	Prefix string `json:"prefix"`
	URL    string `json:"url"`
}

type EndUserInstructionsResponse struct {
	ServerName string            `json:"server_name"`
	Documents  DocumentLinks     `json:"documents"`
	Sequences  []EndUserSequence `json:"client_sequences"`
}

type ClientInstructionsResponse struct {
	ClientID   uuid.UUID     `json:"client_id"`
	ClientName string        `json:"client_name"`
	ServerName string        `json:"server_name"`
	Documents  DocumentLinks `json:"documents"`
	ZipURL     string        `json:"zip_url"`
	// ClientZip is the base64 encoded bundle.
	ClientZip string `json:"client_zip_b64"`
}
