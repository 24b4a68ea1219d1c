package repository

import (
	"database/sql"
	"fmt"

	"github.com/sekolahub/backend/internal/database"
	"github.com/sekolahub/backend/internal/models"
)

// ParticipantRepository resolves opaque numeric participant ids to
// identities. Ids are shared across staff users, students and teachers;
// the probe order (user, then student, then teacher) is part of the
// contract and must be preserved.
type ParticipantRepository struct {
	db *database.DB
}

func NewParticipantRepository(db *database.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Resolve returns the first identity matching the id within the tenant,
// or nil if no table has it.
func (r *ParticipantRepository) Resolve(tenantID, participantID int64) (*models.Participant, error) {
	probes := []struct {
		kind  models.ParticipantKind
		query string
	}{
		{models.ParticipantUser, `SELECT name FROM users WHERE id = $1 AND tenant_id = $2`},
		{models.ParticipantStudent, `SELECT name FROM students WHERE id = $1 AND tenant_id = $2`},
		{models.ParticipantTeacher, `SELECT name FROM teachers WHERE id = $1 AND tenant_id = $2`},
	}

	for _, probe := range probes {
		var name string
		err := r.db.QueryRow(probe.query, participantID, tenantID).Scan(&name)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve participant: %w", err)
		}
		return &models.Participant{ID: participantID, Kind: probe.kind, Name: name}, nil
	}

	return nil, nil
}

// Resolver memoizes lookups for a single request, so listing paths do not
// re-probe three tables per member.
type Resolver struct {
	repo     ParticipantSource
	tenantID int64
	cache    map[int64]*models.Participant
}

// ParticipantSource is what a Resolver needs from the repository.
type ParticipantSource interface {
	Resolve(tenantID, participantID int64) (*models.Participant, error)
}

func NewResolver(repo ParticipantSource, tenantID int64) *Resolver {
	return &Resolver{
		repo:     repo,
		tenantID: tenantID,
		cache:    make(map[int64]*models.Participant),
	}
}

// Resolve returns the cached identity or probes the repository once.
func (rs *Resolver) Resolve(participantID int64) (*models.Participant, error) {
	if p, ok := rs.cache[participantID]; ok {
		return p, nil
	}

	p, err := rs.repo.Resolve(rs.tenantID, participantID)
	if err != nil {
		return nil, err
	}

	rs.cache[participantID] = p
	return p, nil
}
