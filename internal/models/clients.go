package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMaxClients is used when a sequence is created without an explicit bound.
const DefaultMaxClients = 100

// ClientSequence hands out client names for one instance.
// NextClientNo never exceeds MaxClients+1.
type ClientSequence struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InstanceID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:server_prefix_unique,priority:1" json:"server"`
	Instance     *Instance      `gorm:"foreignKey:InstanceID" json:"-"`
	Prefix       string         `gorm:"not null;uniqueIndex:server_prefix_unique,priority:2" json:"prefix"`
	MaxClients   int            `gorm:"not null;default:100" json:"max_clients"`
	NextClientNo int            `gorm:"not null;default:1" json:"next_client_no"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ClientSequence) TableName() string { return "clientsequences" }

func (s *ClientSequence) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.MaxClients == 0 {
		s.MaxClients = DefaultMaxClients
	}
	if s.NextClientNo == 0 {
		s.NextClientNo = 1
	}
	return nil
}

// Exhausted reports whether every name in the sequence has been handed out.
func (s *ClientSequence) Exhausted() bool { return s.NextClientNo > s.MaxClients }

// Client is one allocated name. Rows are only ever inserted.
type Client struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InstanceID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:server_name_unique,priority:1" json:"server"`
	Instance   *Instance       `gorm:"foreignKey:InstanceID" json:"-"`
	SequenceID uuid.UUID       `gorm:"type:uuid;not null;index" json:"sequence"`
	Sequence   *ClientSequence `gorm:"foreignKey:SequenceID" json:"-"`
	Name       string          `gorm:"not null;uniqueIndex:server_name_unique,priority:2" json:"name"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
