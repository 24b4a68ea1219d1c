package repository

import (
	"database/sql"
	"fmt"

	"github.com/sekolahub/backend/internal/database"
	"github.com/sekolahub/backend/internal/models"
)

// DirectoryRepository owns the student/teacher/institution rows that the
// sync engine upserts from external providers. Upserts are keyed by
// natural keys (NISN, NIK-or-NUPTK, tenant id) so re-running a sync with
// identical payloads never creates duplicates.
type DirectoryRepository struct {
	db *database.DB
}

func NewDirectoryRepository(db *database.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// UpsertStudent inserts or updates a student keyed by (tenant, NISN).
// Optional fields only overwrite when the incoming value is set.
func (r *DirectoryRepository) UpsertStudent(student *models.Student) error {
	query := `
		INSERT INTO students (tenant_id, nisn, name, gender, birth_date, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, nisn) DO UPDATE SET
			name = EXCLUDED.name,
			gender = COALESCE(EXCLUDED.gender, students.gender),
			birth_date = COALESCE(EXCLUDED.birth_date, students.birth_date),
			address = COALESCE(EXCLUDED.address, students.address),
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		query,
		student.TenantID,
		student.NISN,
		student.Name,
		student.Gender,
		student.BirthDate,
		student.Address,
	).Scan(&student.ID, &student.CreatedAt, &student.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert student: %w", err)
	}

	return nil
}

// findTeacher looks up an existing teacher by NIK first, then NUPTK
func (r *DirectoryRepository) findTeacher(tenantID int64, nik, nuptk *string) (int64, error) {
	queries := []struct {
		key   *string
		query string
	}{
		{nik, `SELECT id FROM teachers WHERE tenant_id = $1 AND nik = $2`},
		{nuptk, `SELECT id FROM teachers WHERE tenant_id = $1 AND nuptk = $2`},
	}

	for _, q := range queries {
		if q.key == nil || *q.key == "" {
			continue
		}
		var id int64
		err := r.db.QueryRow(q.query, tenantID, *q.key).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to find teacher: %w", err)
		}
		return id, nil
	}

	return 0, nil
}

// UpsertTeacher inserts or updates a teacher keyed by NIK or NUPTK within
// the tenant. Two alternative natural keys rule out a single unique
// constraint, so this is a read-then-write upsert.
func (r *DirectoryRepository) UpsertTeacher(teacher *models.Teacher) error {
	id, err := r.findTeacher(teacher.TenantID, teacher.NIK, teacher.NUPTK)
	if err != nil {
		return err
	}

	if id == 0 {
		query := `
			INSERT INTO teachers (tenant_id, nik, nuptk, name, gender, birth_date, subject)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at
		`

		err := r.db.QueryRow(
			query,
			teacher.TenantID,
			teacher.NIK,
			teacher.NUPTK,
			teacher.Name,
			teacher.Gender,
			teacher.BirthDate,
			teacher.Subject,
		).Scan(&teacher.ID, &teacher.CreatedAt, &teacher.UpdatedAt)

		if err != nil {
			return fmt.Errorf("failed to insert teacher: %w", err)
		}

		return nil
	}

	query := `
		UPDATE teachers SET
			nik = COALESCE($1, nik),
			nuptk = COALESCE($2, nuptk),
			name = $3,
			gender = COALESCE($4, gender),
			birth_date = COALESCE($5, birth_date),
			subject = COALESCE($6, subject),
			updated_at = NOW()
		WHERE id = $7
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(
		query,
		teacher.NIK,
		teacher.NUPTK,
		teacher.Name,
		teacher.Gender,
		teacher.BirthDate,
		teacher.Subject,
		id,
	).Scan(&teacher.ID, &teacher.CreatedAt, &teacher.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to update teacher: %w", err)
	}

	return nil
}

// UpsertInstitution inserts or updates the single school record of a
// tenant; the tenant id alone is the natural key.
func (r *DirectoryRepository) UpsertInstitution(institution *models.Institution) error {
	query := `
		INSERT INTO institutions (tenant_id, npsn, name, address, phone, email, principal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			npsn = COALESCE(EXCLUDED.npsn, institutions.npsn),
			name = EXCLUDED.name,
			address = COALESCE(EXCLUDED.address, institutions.address),
			phone = COALESCE(EXCLUDED.phone, institutions.phone),
			email = COALESCE(EXCLUDED.email, institutions.email),
			principal = COALESCE(EXCLUDED.principal, institutions.principal),
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		query,
		institution.TenantID,
		institution.NPSN,
		institution.Name,
		institution.Address,
		institution.Phone,
		institution.Email,
		institution.Principal,
	).Scan(&institution.ID, &institution.CreatedAt, &institution.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert institution: %w", err)
	}

	return nil
}
