package sync

import (
	"fmt"
	"time"

	"github.com/sekolahub/backend/internal/models"
)

// Entity class names used in field-mapping overrides and provider paths.
const (
	entityStudent = "student"
	entityTeacher = "teacher"
	entitySchool  = "sekolah"
)

// Default source-field names per provider and entity class. An
// integration's field mapping may override any target field; when the
// overridden key is absent from the payload the default still applies.
var dapodikDefaults = map[string]map[string]string{
	entityStudent: {
		"nisn":       "nisn",
		"name":       "nama",
		"gender":     "jenis_kelamin",
		"birth_date": "tanggal_lahir",
		"address":    "alamat",
	},
	entityTeacher: {
		"nik":        "nik",
		"nuptk":      "nuptk",
		"name":       "nama",
		"gender":     "jenis_kelamin",
		"birth_date": "tanggal_lahir",
		"subject":    "mata_pelajaran",
	},
	entitySchool: {
		"npsn":      "npsn",
		"name":      "nama",
		"address":   "alamat",
		"phone":     "telepon",
		"email":     "email",
		"principal": "kepala_sekolah",
	},
}

var simpatikaDefaults = map[string]map[string]string{
	entityStudent: {
		"nisn":       "nisn",
		"name":       "nama_lengkap",
		"gender":     "jenis_kelamin",
		"birth_date": "tgl_lahir",
		"address":    "alamat",
	},
	entityTeacher: {
		"nik":        "nik",
		"nuptk":      "nuptk",
		"name":       "nama_lengkap",
		"gender":     "jenis_kelamin",
		"birth_date": "tgl_lahir",
		"subject":    "mapel",
	},
	entitySchool: {
		"npsn":      "npsn",
		"name":      "nama_madrasah",
		"address":   "alamat",
		"phone":     "no_telp",
		"email":     "email",
		"principal": "kepala_madrasah",
	},
}

func defaultsFor(integrationType string) map[string]map[string]string {
	if integrationType == models.IntegrationSimpatika {
		return simpatikaDefaults
	}
	return dapodikDefaults
}

// mappedValue resolves a target field from a provider payload. The
// integration's override wins when the payload actually carries the
// overridden key; otherwise the provider default source field applies.
func mappedValue(payload map[string]any, mapping models.FieldMapping, defaults map[string]map[string]string, entity, target string) any {
	if entityMap, ok := mapping[entity]; ok {
		if src, ok := entityMap[target]; ok && src != "" {
			if v, ok := payload[src]; ok {
				return v
			}
		}
	}

	if def, ok := defaults[entity][target]; ok {
		return payload[def]
	}

	return nil
}

// mappedString resolves a target field and coerces it to a string.
func mappedString(payload map[string]any, mapping models.FieldMapping, defaults map[string]map[string]string, entity, target string) string {
	v := mappedValue(payload, mapping, defaults, entity, target)
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode to float64; ids like NISN arrive as both
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
}

// parseDate parses provider dates permissively. An unparseable date
// yields nil rather than an error, so one malformed field cannot abort a
// whole sync run.
func parseDate(v any) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	return nil
}

// buildStudent maps a provider payload onto a student row. A missing
// NISN is a hard validation failure, not a skip.
func buildStudent(tenantID int64, payload map[string]any, mapping models.FieldMapping, defaults map[string]map[string]string) (*models.Student, error) {
	nisn := mappedString(payload, mapping, defaults, entityStudent, "nisn")
	if nisn == "" {
		return nil, fmt.Errorf("student nisn is required")
	}

	name := mappedString(payload, mapping, defaults, entityStudent, "name")

	return &models.Student{
		TenantID:  tenantID,
		NISN:      nisn,
		Name:      name,
		Gender:    optString(mappedString(payload, mapping, defaults, entityStudent, "gender")),
		BirthDate: parseDate(mappedValue(payload, mapping, defaults, entityStudent, "birth_date")),
		Address:   optString(mappedString(payload, mapping, defaults, entityStudent, "address")),
	}, nil
}

// buildTeacher maps a provider payload onto a teacher row. At least one
// of NIK or NUPTK must be present to key the upsert.
func buildTeacher(tenantID int64, payload map[string]any, mapping models.FieldMapping, defaults map[string]map[string]string) (*models.Teacher, error) {
	nik := mappedString(payload, mapping, defaults, entityTeacher, "nik")
	nuptk := mappedString(payload, mapping, defaults, entityTeacher, "nuptk")
	if nik == "" && nuptk == "" {
		return nil, fmt.Errorf("teacher nik or nuptk is required")
	}

	return &models.Teacher{
		TenantID:  tenantID,
		NIK:       optString(nik),
		NUPTK:     optString(nuptk),
		Name:      mappedString(payload, mapping, defaults, entityTeacher, "name"),
		Gender:    optString(mappedString(payload, mapping, defaults, entityTeacher, "gender")),
		BirthDate: parseDate(mappedValue(payload, mapping, defaults, entityTeacher, "birth_date")),
		Subject:   optString(mappedString(payload, mapping, defaults, entityTeacher, "subject")),
	}, nil
}

// buildInstitution maps a provider payload onto the tenant's single
// school record; the tenant id alone keys the upsert.
func buildInstitution(tenantID int64, payload map[string]any, mapping models.FieldMapping, defaults map[string]map[string]string) *models.Institution {
	return &models.Institution{
		TenantID:  tenantID,
		NPSN:      optString(mappedString(payload, mapping, defaults, entitySchool, "npsn")),
		Name:      mappedString(payload, mapping, defaults, entitySchool, "name"),
		Address:   optString(mappedString(payload, mapping, defaults, entitySchool, "address")),
		Phone:     optString(mappedString(payload, mapping, defaults, entitySchool, "phone")),
		Email:     optString(mappedString(payload, mapping, defaults, entitySchool, "email")),
		Principal: optString(mappedString(payload, mapping, defaults, entitySchool, "principal")),
	}
}
