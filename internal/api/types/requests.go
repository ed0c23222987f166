package types

type InstanceCreateRequest struct {
	// ID may be supplied by the caller; one is generated otherwise.
	ID               string         `json:"id" validate:"omitempty,uuid"`
	Color            string         `json:"color" validate:"required,hexcolor"`
	Grouping         string         `json:"grouping"`
	ServerName       string         `json:"server_name" validate:"required"`
	TFInputs         map[string]any `json:"tf_inputs"`
	ReadyEmail       *string        `json:"ready_email" validate:"omitempty,email"`
	ReadyCallbackURL *string        `json:"ready_callback_url" validate:"omitempty,url"`
	SequencePrefix   *string        `json:"sequence_prefix" validate:"omitempty,client_prefix"`
	SequenceMax      *int           `json:"sequence_max" validate:"omitempty,min=1"`
}

type SequenceCreateRequest struct {
	Server     string `json:"server" validate:"required,uuid"`
	Prefix     string `json:"prefix" validate:"required,client_prefix"`
	MaxClients int    `json:"max_clients" validate:"required,min=1"`
}
