package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	IntegrationDapodik   = "dapodik"
	IntegrationSimpatika = "simpatika"
	IntegrationCustom    = "custom"

	IntegrationInactive = "inactive"
	IntegrationActive   = "active"
	IntegrationError    = "error"

	LogTypeSync    = "sync"
	LogTypeWebhook = "webhook"
	LogTypeError   = "error"
)

// IntegrationConfig holds the provider connection settings plus per-entity
// sync toggles.
type IntegrationConfig struct {
	APIURL       string `json:"api_url"`
	APIKey       string `json:"api_key"`
	SyncStudents bool   `json:"sync_students"`
	SyncTeachers bool   `json:"sync_teachers"`
	SyncSchool   bool   `json:"sync_school"`
}

// FieldMapping overrides the default source-field names per entity class:
// entity -> target field -> source field in the provider payload.
type FieldMapping map[string]map[string]string

type Integration struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	TenantID     int64             `json:"tenant_id" db:"tenant_id"`
	Name         string            `json:"name" db:"name"`
	Type         string            `json:"type" db:"type"`     // dapodik, simpatika, custom
	Status       string            `json:"status" db:"status"` // inactive, active, error
	Description  *string           `json:"description,omitempty" db:"description"`
	Config       IntegrationConfig `json:"config" db:"config"`
	FieldMapping FieldMapping      `json:"field_mapping,omitempty" db:"field_mapping"`
	LastSyncAt   *time.Time        `json:"last_sync_at,omitempty" db:"last_sync_at"`
	LastError    *string           `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// IntegrationLog is an append-only audit row; never mutated after insert.
type IntegrationLog struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	IntegrationID uuid.UUID      `json:"integration_id" db:"integration_id"`
	Type          string         `json:"type" db:"type"` // sync, webhook, error
	Message       string         `json:"message" db:"message"`
	Data          map[string]any `json:"data,omitempty" db:"data"`
	Success       bool           `json:"success" db:"success"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

type CreateIntegrationRequest struct {
	Name         string            `json:"name" binding:"required"`
	Type         string            `json:"type" binding:"required,oneof=dapodik simpatika custom"`
	Description  *string           `json:"description,omitempty"`
	Config       IntegrationConfig `json:"config"`
	FieldMapping FieldMapping      `json:"field_mapping,omitempty"`
}

// WebhookPayload is the provider-initiated push shape: an event name plus
// a provider-defined data object.
type WebhookPayload struct {
	Event string         `json:"event" binding:"required"`
	Data  map[string]any `json:"data"`
}

// SyncTally counts per-entity-class outcomes of a sync run. Partial
// success is the normal case for bulk external sync.
type SyncTally struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SyncResult aggregates the per-class tallies of one SyncData run.
type SyncResult struct {
	School   SyncTally `json:"school"`
	Students SyncTally `json:"students"`
	Teachers SyncTally `json:"teachers"`
}
