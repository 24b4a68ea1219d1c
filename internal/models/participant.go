package models

// ParticipantKind tags which directory table a participant id resolved to.
type ParticipantKind string

const (
	ParticipantUser    ParticipantKind = "user"
	ParticipantStudent ParticipantKind = "student"
	ParticipantTeacher ParticipantKind = "teacher"
)

// Participant is the resolved identity behind an opaque numeric id.
// Ids are drawn from a shared numeric space across staff users, students
// and teachers; callers must not assume which table an id belongs to.
type Participant struct {
	ID   int64           `json:"id"`
	Kind ParticipantKind `json:"kind"`
	Name string          `json:"name"`
}
