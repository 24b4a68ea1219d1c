package sync

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sekolahub/backend/internal/domain"
	"github.com/sekolahub/backend/internal/models"
)

// fakeIntegrationStore is an in-memory IntegrationStore.
type fakeIntegrationStore struct {
	integrations map[uuid.UUID]*models.Integration
	logs         []models.IntegrationLog
}

func newFakeIntegrationStore() *fakeIntegrationStore {
	return &fakeIntegrationStore{integrations: make(map[uuid.UUID]*models.Integration)}
}

func (f *fakeIntegrationStore) Create(integration *models.Integration) error {
	cp := *integration
	f.integrations[integration.ID] = &cp
	return nil
}

func (f *fakeIntegrationStore) GetByID(id uuid.UUID, tenantID int64) (*models.Integration, error) {
	i, ok := f.integrations[id]
	if !ok || i.TenantID != tenantID {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

func (f *fakeIntegrationStore) GetByIDAny(id uuid.UUID) (*models.Integration, error) {
	i, ok := f.integrations[id]
	if !ok {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

func (f *fakeIntegrationStore) ListActive() ([]models.Integration, error) {
	var out []models.Integration
	for _, i := range f.integrations {
		if i.Status == models.IntegrationActive {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (f *fakeIntegrationStore) SetStatus(id uuid.UUID, status string, lastError *string) error {
	if i, ok := f.integrations[id]; ok {
		i.Status = status
		i.LastError = lastError
	}
	return nil
}

func (f *fakeIntegrationStore) SetLastSync(id uuid.UUID) error {
	if i, ok := f.integrations[id]; ok {
		now := time.Now()
		i.LastSyncAt = &now
	}
	return nil
}

func (f *fakeIntegrationStore) AddLog(entry *models.IntegrationLog) error {
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeIntegrationStore) GetLogs(integrationID uuid.UUID, tenantID int64, logType string, limit int) ([]models.IntegrationLog, error) {
	var out []models.IntegrationLog
	for _, l := range f.logs {
		if l.IntegrationID != integrationID {
			continue
		}
		if logType != "" && l.Type != logType {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeIntegrationStore) logsFor(id uuid.UUID) []models.IntegrationLog {
	logs, _ := f.GetLogs(id, 0, "", 0)
	return logs
}

// fakeDirectory keys students by nisn and teachers by nik/nuptk,
// matching the SQL upsert semantics.
type fakeDirectory struct {
	students     map[string]*models.Student
	teachers     map[string]*models.Teacher
	institutions map[int64]*models.Institution
	failNISN     string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		students:     make(map[string]*models.Student),
		teachers:     make(map[string]*models.Teacher),
		institutions: make(map[int64]*models.Institution),
	}
}

func (f *fakeDirectory) UpsertStudent(student *models.Student) error {
	if f.failNISN != "" && student.NISN == f.failNISN {
		return fmt.Errorf("forced upsert failure")
	}
	cp := *student
	f.students[fmt.Sprintf("%d/%s", student.TenantID, student.NISN)] = &cp
	return nil
}

func (f *fakeDirectory) UpsertTeacher(teacher *models.Teacher) error {
	key := ""
	if teacher.NIK != nil {
		key = *teacher.NIK
	} else if teacher.NUPTK != nil {
		key = *teacher.NUPTK
	}
	cp := *teacher
	f.teachers[fmt.Sprintf("%d/%s", teacher.TenantID, key)] = &cp
	return nil
}

func (f *fakeDirectory) UpsertInstitution(institution *models.Institution) error {
	cp := *institution
	f.institutions[institution.TenantID] = &cp
	return nil
}

func newTestEngine() (*Engine, *fakeIntegrationStore, *fakeDirectory) {
	store := newFakeIntegrationStore()
	directory := newFakeDirectory()
	return NewEngine(store, directory, zap.NewNop(), 5*time.Second), store, directory
}

func createIntegration(t *testing.T, engine *Engine, integrationType, apiURL string, active bool) *models.Integration {
	t.Helper()
	integration, err := engine.CreateIntegration(testTenant, &models.CreateIntegrationRequest{
		Name: "district feed",
		Type: integrationType,
		Config: models.IntegrationConfig{
			APIURL:       apiURL,
			APIKey:       "sekret",
			SyncStudents: true,
		},
	})
	if err != nil {
		t.Fatalf("CreateIntegration failed: %v", err)
	}
	if active {
		integration, err = engine.Activate(integration.ID, testTenant)
		if err != nil {
			t.Fatalf("Activate failed: %v", err)
		}
	}
	return integration
}

const testTenant = int64(7)

func TestEngine_NewIntegrationStartsInactive(t *testing.T) {
	engine, _, _ := newTestEngine()

	integration := createIntegration(t, engine, models.IntegrationDapodik, "http://example.invalid", false)
	if integration.Status != models.IntegrationInactive {
		t.Errorf("status = %q, want %q", integration.Status, models.IntegrationInactive)
	}
}

func TestEngine_SyncDataRejectsInactiveBeforeLogging(t *testing.T) {
	engine, store, _ := newTestEngine()

	integration := createIntegration(t, engine, models.IntegrationDapodik, "http://example.invalid", false)

	_, err := engine.SyncData(integration.ID, testTenant)
	if !errors.Is(err, domain.ErrSync) {
		t.Fatalf("got %v, want sync error", err)
	}
	if len(store.logsFor(integration.ID)) != 0 {
		t.Errorf("rejected run must leave no audit rows, got %d", len(store.logsFor(integration.ID)))
	}
	if store.integrations[integration.ID].Status != models.IntegrationInactive {
		t.Errorf("status changed to %q", store.integrations[integration.ID].Status)
	}
}

func TestEngine_SyncDataPartialFailureTally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/siswa" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekret" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		// middle record has no nisn under any known key
		fmt.Fprint(w, `[
			{"nisn": "001", "nama": "Budi"},
			{"nama": "Tanpa Nomor"},
			{"nisn": "003", "nama": "Siti"}
		]`)
	}))
	defer server.Close()

	engine, store, directory := newTestEngine()
	integration := createIntegration(t, engine, models.IntegrationDapodik, server.URL, true)

	result, err := engine.SyncData(integration.ID, testTenant)
	if err != nil {
		t.Fatalf("SyncData failed: %v", err)
	}

	if result.Students.Synced != 2 || result.Students.Failed != 1 {
		t.Errorf("students tally = %+v, want {2 1}", result.Students)
	}
	if len(directory.students) != 2 {
		t.Errorf("stored students = %d, want 2", len(directory.students))
	}

	// Item failures do not flip the integration; a success log is
	// written and the sync time recorded.
	saved := store.integrations[integration.ID]
	if saved.Status != models.IntegrationActive {
		t.Errorf("status = %q, want active", saved.Status)
	}
	if saved.LastSyncAt == nil {
		t.Error("last_sync_at not recorded")
	}
	logs := store.logsFor(integration.ID)
	if len(logs) != 1 || logs[0].Type != models.LogTypeSync || !logs[0].Success {
		t.Errorf("expected one successful sync log, got %+v", logs)
	}
}

func TestEngine_SyncDataClassFailureContinues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sekolah":
			http.Error(w, "school endpoint down", http.StatusInternalServerError)
		case "/siswa":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[{"nisn": "001", "nama": "Budi"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	engine, store, directory := newTestEngine()
	integration, err := engine.CreateIntegration(testTenant, &models.CreateIntegrationRequest{
		Name: "district feed",
		Type: models.IntegrationDapodik,
		Config: models.IntegrationConfig{
			APIURL:       server.URL,
			APIKey:       "sekret",
			SyncSchool:   true,
			SyncStudents: true,
		},
	})
	if err != nil {
		t.Fatalf("CreateIntegration failed: %v", err)
	}
	if _, err := engine.Activate(integration.ID, testTenant); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	// The broken school endpoint costs only its own class; students
	// still sync and the run completes.
	result, err := engine.SyncData(integration.ID, testTenant)
	if err != nil {
		t.Fatalf("SyncData failed: %v", err)
	}

	if result.School.Failed != 1 || result.School.Synced != 0 {
		t.Errorf("school tally = %+v, want {0 1}", result.School)
	}
	if result.Students.Synced != 1 {
		t.Errorf("students tally = %+v, want {1 0}", result.Students)
	}
	if len(directory.students) != 1 {
		t.Errorf("stored students = %d, want 1", len(directory.students))
	}

	saved := store.integrations[integration.ID]
	if saved.Status != models.IntegrationActive {
		t.Errorf("status = %q, want active", saved.Status)
	}
	if saved.LastSyncAt == nil {
		t.Error("last_sync_at not recorded")
	}

	logs := store.logsFor(integration.ID)
	if len(logs) != 2 {
		t.Fatalf("expected error + sync logs, got %+v", logs)
	}
	if logs[0].Type != models.LogTypeError || logs[0].Success {
		t.Errorf("first log = %+v, want failed error log", logs[0])
	}
	if logs[1].Type != models.LogTypeSync || !logs[1].Success {
		t.Errorf("second log = %+v, want successful sync log", logs[1])
	}
}

func TestEngine_SyncDataBadConfigFlipsStatus(t *testing.T) {
	engine, store, _ := newTestEngine()

	// Custom integrations have no pull provider, so a manual sync is a
	// configuration failure, not a class failure.
	integration := createIntegration(t, engine, models.IntegrationCustom, "http://example.invalid", true)

	_, err := engine.SyncData(integration.ID, testTenant)
	if !errors.Is(err, domain.ErrSync) {
		t.Fatalf("got %v, want sync error", err)
	}

	saved := store.integrations[integration.ID]
	if saved.Status != models.IntegrationError {
		t.Errorf("status = %q, want error", saved.Status)
	}
	if saved.LastError == nil {
		t.Error("last_error not recorded")
	}
	if saved.LastSyncAt != nil {
		t.Error("last_sync_at must not be stamped on a failed run")
	}
	logs := store.logsFor(integration.ID)
	if len(logs) != 1 || logs[0].Type != models.LogTypeError || logs[0].Success {
		t.Errorf("expected one error log, got %+v", logs)
	}
}

func TestEngine_SyncDataIdempotentUpserts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": [{"nisn": "001", "nama": "Budi"}]}`)
	}))
	defer server.Close()

	engine, _, directory := newTestEngine()
	integration := createIntegration(t, engine, models.IntegrationDapodik, server.URL, true)

	for i := 0; i < 2; i++ {
		if _, err := engine.SyncData(integration.ID, testTenant); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}
	if len(directory.students) != 1 {
		t.Errorf("stored students = %d, want 1 after two runs", len(directory.students))
	}
}

func TestEngine_SimpatikaClientShape(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"nisn": "002", "nama_lengkap": "Ani"}]`)
	}))
	defer server.Close()

	engine, _, directory := newTestEngine()
	integration := createIntegration(t, engine, models.IntegrationSimpatika, server.URL, true)

	if _, err := engine.SyncData(integration.ID, testTenant); err != nil {
		t.Fatalf("SyncData failed: %v", err)
	}
	if gotPath != "/api/siswa" {
		t.Errorf("path = %q, want /api/siswa", gotPath)
	}
	if gotKey != "sekret" {
		t.Errorf("X-API-Key = %q, want sekret", gotKey)
	}
	student, ok := directory.students["7/002"]
	if !ok || student.Name != "Ani" {
		t.Errorf("simpatika name mapping failed: %+v", directory.students)
	}
}

func TestEngine_WebhookStudentCreated(t *testing.T) {
	engine, store, directory := newTestEngine()
	integration := createIntegration(t, engine, models.IntegrationDapodik, "http://example.invalid", true)

	err := engine.HandleWebhook(integration.ID, &models.WebhookPayload{
		Event: "student.created",
		Data:  map[string]any{"nisn": "009", "nama": "Rina"},
	})
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}

	if _, ok := directory.students["7/009"]; !ok {
		t.Error("student row not written")
	}
	logs := store.logsFor(integration.ID)
	if len(logs) != 2 {
		t.Fatalf("log rows = %d, want 2 (receipt + processed)", len(logs))
	}
	for _, l := range logs {
		if l.Type != models.LogTypeWebhook || !l.Success {
			t.Errorf("unexpected log row: %+v", l)
		}
	}
}

func TestEngine_WebhookRejectsInactive(t *testing.T) {
	engine, store, _ := newTestEngine()
	integration := createIntegration(t, engine, models.IntegrationDapodik, "http://example.invalid", false)

	err := engine.HandleWebhook(integration.ID, &models.WebhookPayload{Event: "student.created"})
	if !errors.Is(err, domain.ErrSync) {
		t.Fatalf("got %v, want sync error", err)
	}
	if len(store.logsFor(integration.ID)) != 0 {
		t.Error("rejected webhook must leave no audit rows")
	}
}

func TestEngine_WebhookUnknownEventIgnored(t *testing.T) {
	engine, store, directory := newTestEngine()
	integration := createIntegration(t, engine, models.IntegrationDapodik, "http://example.invalid", true)

	err := engine.HandleWebhook(integration.ID, &models.WebhookPayload{
		Event: "cafeteria.menu_changed",
		Data:  map[string]any{},
	})
	if err != nil {
		t.Fatalf("unknown event should be acknowledged, got %v", err)
	}
	if len(directory.students) != 0 {
		t.Error("unknown event must not touch the directory")
	}
	if len(store.logsFor(integration.ID)) != 2 {
		t.Errorf("log rows = %d, want 2", len(store.logsFor(integration.ID)))
	}
}

func TestEngine_WebhookBadPayloadLogsError(t *testing.T) {
	engine, store, _ := newTestEngine()
	integration := createIntegration(t, engine, models.IntegrationDapodik, "http://example.invalid", true)

	err := engine.HandleWebhook(integration.ID, &models.WebhookPayload{
		Event: "student.created",
		Data:  map[string]any{"nama": "No Key"},
	})
	if !errors.Is(err, domain.ErrSync) {
		t.Fatalf("got %v, want sync error", err)
	}

	logs := store.logsFor(integration.ID)
	if len(logs) != 2 {
		t.Fatalf("log rows = %d, want 2 (receipt + error)", len(logs))
	}
	if logs[1].Type != models.LogTypeError || logs[1].Success {
		t.Errorf("second row should be a failed error log, got %+v", logs[1])
	}
}

func TestEngine_WebhookCustomHandler(t *testing.T) {
	engine, _, _ := newTestEngine()
	integration, err := engine.CreateIntegration(testTenant, &models.CreateIntegrationRequest{
		Name: "attendance bridge",
		Type: models.IntegrationCustom,
	})
	if err != nil {
		t.Fatalf("CreateIntegration failed: %v", err)
	}
	if _, err := engine.Activate(integration.ID, testTenant); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	var gotEvent string
	engine.RegisterHandler("attendance bridge", func(i *models.Integration, p *models.WebhookPayload) error {
		gotEvent = p.Event
		return nil
	})

	err = engine.HandleWebhook(integration.ID, &models.WebhookPayload{Event: "attendance.posted"})
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if gotEvent != "attendance.posted" {
		t.Errorf("handler saw %q, want attendance.posted", gotEvent)
	}
}

func TestEngine_WebhookCustomWithoutHandlerAcknowledged(t *testing.T) {
	engine, store, directory := newTestEngine()
	integration, err := engine.CreateIntegration(testTenant, &models.CreateIntegrationRequest{
		Name: "crm bridge",
		Type: models.IntegrationCustom,
	})
	if err != nil {
		t.Fatalf("CreateIntegration failed: %v", err)
	}
	if _, err := engine.Activate(integration.ID, testTenant); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	err = engine.HandleWebhook(integration.ID, &models.WebhookPayload{Event: "lead.created"})
	if err != nil {
		t.Fatalf("push without a handler must be acknowledged, got %v", err)
	}

	if len(directory.students)+len(directory.teachers)+len(directory.institutions) != 0 {
		t.Error("directory must not change without a handler")
	}
	logs := store.logsFor(integration.ID)
	if len(logs) != 2 {
		t.Fatalf("log rows = %d, want 2 (receipt + processed)", len(logs))
	}
	for i, l := range logs {
		if l.Type != models.LogTypeWebhook || !l.Success {
			t.Errorf("log %d = %+v, want successful webhook log", i, l)
		}
	}
}

func TestEngine_WebhookUnknownIntegration(t *testing.T) {
	engine, _, _ := newTestEngine()

	err := engine.HandleWebhook(uuid.New(), &models.WebhookPayload{Event: "student.created"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}
