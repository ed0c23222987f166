package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Instance is one deployed TAK server. TFOutputs and TFCompleted stay NULL
// until the pipeline calls back, and are then written together exactly once.
type Instance struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OwnerID          string         `gorm:"not null;index" json:"owner_id" validate:"required"`
	Color            string         `gorm:"type:varchar(16);not null;index" json:"color" validate:"required"`
	Grouping         string         `gorm:"not null;default:'_';index" json:"grouping"`
	ServerName       string         `gorm:"not null" json:"server_name" validate:"required"`
	TFInputs         datatypes.JSON `gorm:"column:tf_inputs;type:jsonb;not null;default:'{}'" json:"tf_inputs,omitempty"`
	TFOutputs        datatypes.JSON `gorm:"column:tf_outputs;type:jsonb" json:"tf_outputs,omitempty"`
	TFCompleted      *time.Time     `gorm:"column:tf_completed" json:"tf_completed"`
	ReadyEmail       *string        `gorm:"column:ready_email" json:"ready_email,omitempty"`
	ReadyCallbackURL *string        `gorm:"column:ready_callback_url" json:"ready_callback_url,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Instance) TableName() string { return "takinstances" }

// BeforeCreate keeps caller-supplied ids and fills in the rest.
func (i *Instance) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Completed reports whether the pipeline callback has been recorded.
func (i *Instance) Completed() bool { return i.TFCompleted != nil }

// HasOutputs reports whether a non-empty pipeline output payload is stored.
func (i *Instance) HasOutputs() bool {
	s := string(i.TFOutputs)
	return len(s) > 0 && s != "null" && s != "{}"
}
