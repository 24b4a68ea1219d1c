package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sekolahub/backend/internal/domain"
	"github.com/sekolahub/backend/internal/models"
)

// IntegrationStore is what the engine needs from integration persistence.
type IntegrationStore interface {
	Create(integration *models.Integration) error
	GetByID(id uuid.UUID, tenantID int64) (*models.Integration, error)
	GetByIDAny(id uuid.UUID) (*models.Integration, error)
	SetStatus(id uuid.UUID, status string, lastError *string) error
	SetLastSync(id uuid.UUID) error
	AddLog(entry *models.IntegrationLog) error
	GetLogs(integrationID uuid.UUID, tenantID int64, logType string, limit int) ([]models.IntegrationLog, error)
}

// DirectoryStore upserts synced records into the tenant directory.
type DirectoryStore interface {
	UpsertStudent(student *models.Student) error
	UpsertTeacher(teacher *models.Teacher) error
	UpsertInstitution(institution *models.Institution) error
}

// WebhookHandler processes webhook payloads for custom integrations.
type WebhookHandler func(integration *models.Integration, payload *models.WebhookPayload) error

// provider abstracts over the Dapodik and Simpatika pull clients.
type provider interface {
	FetchSchool() (map[string]any, error)
	FetchStudents() ([]map[string]any, error)
	FetchTeachers() ([]map[string]any, error)
}

// Engine runs pull syncs and webhook ingestion for external integrations.
type Engine struct {
	integrations IntegrationStore
	directory    DirectoryStore
	logger       *zap.Logger
	httpTimeout  time.Duration

	// custom webhook handlers keyed by integration name
	handlers map[string]WebhookHandler

	// overridable in tests to point providers at a local server
	newProvider func(integration *models.Integration) (provider, error)
}

func NewEngine(integrations IntegrationStore, directory DirectoryStore, logger *zap.Logger, httpTimeout time.Duration) *Engine {
	e := &Engine{
		integrations: integrations,
		directory:    directory,
		logger:       logger,
		httpTimeout:  httpTimeout,
		handlers:     make(map[string]WebhookHandler),
	}
	e.newProvider = e.defaultProvider
	return e
}

// RegisterHandler installs a webhook handler for a custom integration,
// keyed by the integration's name.
func (e *Engine) RegisterHandler(name string, handler WebhookHandler) {
	e.handlers[name] = handler
}

// CreateIntegration registers a new integration. It starts inactive and
// must be activated before syncing or receiving webhooks.
func (e *Engine) CreateIntegration(tenantID int64, req *models.CreateIntegrationRequest) (*models.Integration, error) {
	if req.Type != models.IntegrationCustom && req.Config.APIURL == "" {
		return nil, domain.NewValidation("config.api_url is required for %s integrations", req.Type)
	}

	integration := &models.Integration{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Name:         req.Name,
		Type:         req.Type,
		Status:       models.IntegrationInactive,
		Description:  req.Description,
		Config:       req.Config,
		FieldMapping: req.FieldMapping,
	}

	if err := e.integrations.Create(integration); err != nil {
		return nil, err
	}

	return integration, nil
}

func (e *Engine) GetIntegration(id uuid.UUID, tenantID int64) (*models.Integration, error) {
	integration, err := e.integrations.GetByID(id, tenantID)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		return nil, domain.NewNotFound("integration")
	}
	return integration, nil
}

// Activate flips an integration to active, clearing any previous error.
func (e *Engine) Activate(id uuid.UUID, tenantID int64) (*models.Integration, error) {
	integration, err := e.GetIntegration(id, tenantID)
	if err != nil {
		return nil, err
	}

	if err := e.integrations.SetStatus(integration.ID, models.IntegrationActive, nil); err != nil {
		return nil, err
	}
	integration.Status = models.IntegrationActive
	integration.LastError = nil
	return integration, nil
}

func (e *Engine) Deactivate(id uuid.UUID, tenantID int64) (*models.Integration, error) {
	integration, err := e.GetIntegration(id, tenantID)
	if err != nil {
		return nil, err
	}

	if err := e.integrations.SetStatus(integration.ID, models.IntegrationInactive, nil); err != nil {
		return nil, err
	}
	integration.Status = models.IntegrationInactive
	return integration, nil
}

func (e *Engine) GetLogs(id uuid.UUID, tenantID int64, logType string, limit int) ([]models.IntegrationLog, error) {
	if _, err := e.GetIntegration(id, tenantID); err != nil {
		return nil, err
	}
	return e.integrations.GetLogs(id, tenantID, logType, limit)
}

func (e *Engine) defaultProvider(integration *models.Integration) (provider, error) {
	switch integration.Type {
	case models.IntegrationDapodik:
		return newDapodikClient(integration.Config.APIURL, integration.Config.APIKey, e.httpTimeout), nil
	case models.IntegrationSimpatika:
		return newSimpatikaClient(integration.Config.APIURL, integration.Config.APIKey, e.httpTimeout), nil
	default:
		return nil, fmt.Errorf("integration type %q does not support pull sync", integration.Type)
	}
}

// SyncData runs a full pull sync for one integration. The active check
// happens before anything is logged so a rejected run leaves no audit
// trace. Per-item failures are tallied and recorded in the final log
// entry, and a failed class fetch gets its own error log row while the
// remaining classes still run. Partial failures never block the run:
// lastSyncAt is stamped and the success log written on every completed
// run. Only configuration failures (missing api_url, a type with no
// pull provider) flip the integration into the error status.
func (e *Engine) SyncData(id uuid.UUID, tenantID int64) (*models.SyncResult, error) {
	integration, err := e.GetIntegration(id, tenantID)
	if err != nil {
		return nil, err
	}

	if integration.Status != models.IntegrationActive {
		return nil, domain.NewSyncError(integration.Name, fmt.Errorf("integration is not active"))
	}

	result, err := e.runSync(integration)
	if err != nil {
		e.failSync(integration, err)
		return nil, domain.NewSyncError(integration.Name, err)
	}

	if err := e.integrations.SetLastSync(integration.ID); err != nil {
		e.logger.Warn("failed to record last sync time",
			zap.String("integration_id", integration.ID.String()),
			zap.Error(err))
	}

	e.addLog(integration.ID, models.LogTypeSync, "sync completed", true, map[string]any{
		"school":   result.School,
		"students": result.Students,
		"teachers": result.Teachers,
	})

	e.logger.Info("sync completed",
		zap.String("integration", integration.Name),
		zap.Int("students_synced", result.Students.Synced),
		zap.Int("students_failed", result.Students.Failed),
		zap.Int("teachers_synced", result.Teachers.Synced),
		zap.Int("teachers_failed", result.Teachers.Failed))

	return result, nil
}

func (e *Engine) runSync(integration *models.Integration) (*models.SyncResult, error) {
	if integration.Config.APIURL == "" {
		return nil, fmt.Errorf("integration config is missing api_url")
	}

	client, err := e.newProvider(integration)
	if err != nil {
		return nil, err
	}

	defaults := defaultsFor(integration.Type)
	result := &models.SyncResult{}

	if integration.Config.SyncSchool {
		if err := e.syncSchool(integration, client, defaults, result); err != nil {
			e.classFailed(integration, "school", err, &result.School)
		}
	}
	if integration.Config.SyncStudents {
		if err := e.syncStudents(integration, client, defaults, result); err != nil {
			e.classFailed(integration, "student", err, &result.Students)
		}
	}
	if integration.Config.SyncTeachers {
		if err := e.syncTeachers(integration, client, defaults, result); err != nil {
			e.classFailed(integration, "teacher", err, &result.Teachers)
		}
	}

	return result, nil
}

// classFailed records a failed fetch for one entity class. The class gets
// an error log row and a tally mark; the other classes still run.
func (e *Engine) classFailed(integration *models.Integration, class string, cause error, tally *models.SyncTally) {
	tally.Failed++
	e.addLog(integration.ID, models.LogTypeError, fmt.Sprintf("%s sync failed: %v", class, cause), false, nil)
	e.logger.Warn("entity class sync failed",
		zap.String("integration", integration.Name),
		zap.String("class", class),
		zap.Error(cause))
}

func (e *Engine) syncSchool(integration *models.Integration, client provider, defaults map[string]map[string]string, result *models.SyncResult) error {
	payload, err := client.FetchSchool()
	if err != nil {
		return err
	}

	institution := buildInstitution(integration.TenantID, payload, integration.FieldMapping, defaults)
	if err := e.directory.UpsertInstitution(institution); err != nil {
		result.School.Failed++
		return nil
	}
	result.School.Synced++
	return nil
}

func (e *Engine) syncStudents(integration *models.Integration, client provider, defaults map[string]map[string]string, result *models.SyncResult) error {
	items, err := client.FetchStudents()
	if err != nil {
		return err
	}

	for _, item := range items {
		student, err := buildStudent(integration.TenantID, item, integration.FieldMapping, defaults)
		if err != nil {
			result.Students.Failed++
			continue
		}
		if err := e.directory.UpsertStudent(student); err != nil {
			result.Students.Failed++
			continue
		}
		result.Students.Synced++
	}
	return nil
}

func (e *Engine) syncTeachers(integration *models.Integration, client provider, defaults map[string]map[string]string, result *models.SyncResult) error {
	items, err := client.FetchTeachers()
	if err != nil {
		return err
	}

	for _, item := range items {
		teacher, err := buildTeacher(integration.TenantID, item, integration.FieldMapping, defaults)
		if err != nil {
			result.Teachers.Failed++
			continue
		}
		if err := e.directory.UpsertTeacher(teacher); err != nil {
			result.Teachers.Failed++
			continue
		}
		result.Teachers.Synced++
	}
	return nil
}

// failSync handles configuration failures that abort a run before any
// class could sync.
func (e *Engine) failSync(integration *models.Integration, cause error) {
	msg := cause.Error()
	if err := e.integrations.SetStatus(integration.ID, models.IntegrationError, &msg); err != nil {
		e.logger.Error("failed to flip integration into error status",
			zap.String("integration_id", integration.ID.String()),
			zap.Error(err))
	}

	e.addLog(integration.ID, models.LogTypeError, msg, false, nil)

	e.logger.Error("sync failed",
		zap.String("integration", integration.Name),
		zap.Error(cause))
}

// HandleWebhook ingests a provider-initiated push. The integration must
// be active; once past that gate, receipt is logged before any
// processing so failed payloads still leave an audit trace.
func (e *Engine) HandleWebhook(id uuid.UUID, payload *models.WebhookPayload) error {
	integration, err := e.integrations.GetByIDAny(id)
	if err != nil {
		return err
	}
	if integration == nil {
		return domain.NewNotFound("integration")
	}

	if integration.Status != models.IntegrationActive {
		return domain.NewSyncError(integration.Name, fmt.Errorf("integration is not active"))
	}

	e.addLog(integration.ID, models.LogTypeWebhook, fmt.Sprintf("received %s", payload.Event), true, map[string]any{
		"event": payload.Event,
	})

	if err := e.dispatchWebhook(integration, payload); err != nil {
		e.addLog(integration.ID, models.LogTypeError, err.Error(), false, map[string]any{
			"event": payload.Event,
		})
		return domain.NewSyncError(integration.Name, err)
	}

	e.addLog(integration.ID, models.LogTypeWebhook, fmt.Sprintf("processed %s", payload.Event), true, map[string]any{
		"event": payload.Event,
	})

	return nil
}

func (e *Engine) dispatchWebhook(integration *models.Integration, payload *models.WebhookPayload) error {
	if integration.Type == models.IntegrationCustom {
		handler, ok := e.handlers[integration.Name]
		if !ok {
			// Custom pushes without a handler are acknowledged, not
			// rejected; the receipt log is the record.
			e.logger.Info("no handler configured for custom integration",
				zap.String("integration", integration.Name),
				zap.String("event", payload.Event))
			return nil
		}
		return handler(integration, payload)
	}

	defaults := defaultsFor(integration.Type)

	switch payload.Event {
	case "student.created", "student.updated":
		student, err := buildStudent(integration.TenantID, payload.Data, integration.FieldMapping, defaults)
		if err != nil {
			return err
		}
		return e.directory.UpsertStudent(student)

	case "teacher.created", "teacher.updated":
		teacher, err := buildTeacher(integration.TenantID, payload.Data, integration.FieldMapping, defaults)
		if err != nil {
			return err
		}
		return e.directory.UpsertTeacher(teacher)

	case "sekolah.updated":
		institution := buildInstitution(integration.TenantID, payload.Data, integration.FieldMapping, defaults)
		return e.directory.UpsertInstitution(institution)

	default:
		// Unknown events are acknowledged, never rejected; providers
		// add event types without warning.
		e.logger.Info("ignoring unknown webhook event",
			zap.String("integration", integration.Name),
			zap.String("event", payload.Event))
		return nil
	}
}

func (e *Engine) addLog(integrationID uuid.UUID, logType, message string, success bool, data map[string]any) {
	entry := &models.IntegrationLog{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		Type:          logType,
		Message:       message,
		Data:          data,
		Success:       success,
	}
	if err := e.integrations.AddLog(entry); err != nil {
		e.logger.Error("failed to write integration log",
			zap.String("integration_id", integrationID.String()),
			zap.Error(err))
	}
}
