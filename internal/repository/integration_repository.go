package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sekolahub/backend/internal/database"
	"github.com/sekolahub/backend/internal/models"
)

type IntegrationRepository struct {
	db *database.DB
}

func NewIntegrationRepository(db *database.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func scanIntegration(row interface{ Scan(...any) error }) (*models.Integration, error) {
	integration := &models.Integration{}
	var config, mapping []byte

	err := row.Scan(
		&integration.ID,
		&integration.TenantID,
		&integration.Name,
		&integration.Type,
		&integration.Status,
		&integration.Description,
		&config,
		&mapping,
		&integration.LastSyncAt,
		&integration.LastError,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(config) > 0 {
		if err := json.Unmarshal(config, &integration.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &integration.FieldMapping); err != nil {
			return nil, fmt.Errorf("failed to decode field mapping: %w", err)
		}
	}

	return integration, nil
}

const integrationColumns = `id, tenant_id, name, type, status, description, config, field_mapping,
	last_sync_at, last_error, created_at, updated_at`

// Create persists a new integration in inactive state
func (r *IntegrationRepository) Create(integration *models.Integration) error {
	config, err := json.Marshal(integration.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	var mapping []byte
	if integration.FieldMapping != nil {
		mapping, err = json.Marshal(integration.FieldMapping)
		if err != nil {
			return fmt.Errorf("failed to encode field mapping: %w", err)
		}
	}

	query := `
		INSERT INTO integrations (id, tenant_id, name, type, status, description, config, field_mapping)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(
		query,
		integration.ID,
		integration.TenantID,
		integration.Name,
		integration.Type,
		integration.Status,
		integration.Description,
		config,
		mapping,
	).Scan(&integration.CreatedAt, &integration.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}

	return nil
}

// GetByID retrieves an integration scoped to a tenant
func (r *IntegrationRepository) GetByID(id uuid.UUID, tenantID int64) (*models.Integration, error) {
	query := fmt.Sprintf(`SELECT %s FROM integrations WHERE id = $1 AND tenant_id = $2`, integrationColumns)

	integration, err := scanIntegration(r.db.QueryRow(query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return integration, nil
}

// GetByIDAny retrieves an integration without a tenant scope. Used on the
// webhook path, where the provider only knows the integration id.
func (r *IntegrationRepository) GetByIDAny(id uuid.UUID) (*models.Integration, error) {
	query := fmt.Sprintf(`SELECT %s FROM integrations WHERE id = $1`, integrationColumns)

	integration, err := scanIntegration(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return integration, nil
}

// ListActive retrieves every active integration, for the scheduler pass
func (r *IntegrationRepository) ListActive() ([]models.Integration, error) {
	query := fmt.Sprintf(`SELECT %s FROM integrations WHERE status = 'active' ORDER BY created_at ASC`, integrationColumns)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	integrations := []models.Integration{}
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		integrations = append(integrations, *integration)
	}

	return integrations, nil
}

// SetStatus updates the health state, clearing last_error unless one is given
func (r *IntegrationRepository) SetStatus(id uuid.UUID, status string, lastError *string) error {
	query := `
		UPDATE integrations
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`

	if _, err := r.db.Exec(query, status, lastError, id); err != nil {
		return fmt.Errorf("failed to set integration status: %w", err)
	}

	return nil
}

// SetLastSync stamps a completed sync run
func (r *IntegrationRepository) SetLastSync(id uuid.UUID) error {
	query := `UPDATE integrations SET last_sync_at = NOW(), updated_at = NOW() WHERE id = $1`

	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	return nil
}

// AddLog appends an audit row. Log rows are never updated or deleted.
func (r *IntegrationRepository) AddLog(entry *models.IntegrationLog) error {
	var data []byte
	if entry.Data != nil {
		var err error
		data, err = json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("failed to encode log data: %w", err)
		}
	}

	query := `
		INSERT INTO integration_logs (id, integration_id, type, message, data, success)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		query,
		entry.ID,
		entry.IntegrationID,
		entry.Type,
		entry.Message,
		data,
		entry.Success,
	).Scan(&entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to add integration log: %w", err)
	}

	return nil
}

// GetLogs retrieves the newest audit rows for an integration, joined
// through the owning integration so the read stays tenant-scoped.
func (r *IntegrationRepository) GetLogs(integrationID uuid.UUID, tenantID int64, logType string, limit int) ([]models.IntegrationLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT l.id, l.integration_id, l.type, l.message, l.data, l.success, l.created_at
		FROM integration_logs l
		INNER JOIN integrations i ON l.integration_id = i.id
		WHERE l.integration_id = $1 AND i.tenant_id = $2
	`
	args := []any{integrationID, tenantID}

	if logType != "" {
		args = append(args, logType)
		query += fmt.Sprintf(" AND l.type = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY l.created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	logs := []models.IntegrationLog{}
	for rows.Next() {
		var entry models.IntegrationLog
		var data []byte

		err := rows.Scan(
			&entry.ID,
			&entry.IntegrationID,
			&entry.Type,
			&entry.Message,
			&data,
			&entry.Success,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}

		if len(data) > 0 {
			if err := json.Unmarshal(data, &entry.Data); err != nil {
				return nil, fmt.Errorf("failed to decode log data: %w", err)
			}
		}

		logs = append(logs, entry)
	}

	return logs, nil
}
