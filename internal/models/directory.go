package models

import "time"

// Student is a directory row synchronized from Dapodik/Simpatika.
// NISN is the natural key for upserts within a tenant.
type Student struct {
	ID        int64      `json:"id" db:"id"`
	TenantID  int64      `json:"tenant_id" db:"tenant_id"`
	NISN      string     `json:"nisn" db:"nisn"`
	Name      string     `json:"name" db:"name"`
	Gender    *string    `json:"gender,omitempty" db:"gender"`
	BirthDate *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Address   *string    `json:"address,omitempty" db:"address"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Teacher is keyed by NIK or NUPTK, whichever the provider supplies.
type Teacher struct {
	ID        int64      `json:"id" db:"id"`
	TenantID  int64      `json:"tenant_id" db:"tenant_id"`
	NIK       *string    `json:"nik,omitempty" db:"nik"`
	NUPTK     *string    `json:"nuptk,omitempty" db:"nuptk"`
	Name      string     `json:"name" db:"name"`
	Gender    *string    `json:"gender,omitempty" db:"gender"`
	BirthDate *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Subject   *string    `json:"subject,omitempty" db:"subject"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Institution is the single school record per tenant; the tenant id alone
// is its natural key.
type Institution struct {
	ID        int64     `json:"id" db:"id"`
	TenantID  int64     `json:"tenant_id" db:"tenant_id"`
	NPSN      *string   `json:"npsn,omitempty" db:"npsn"`
	Name      string    `json:"name" db:"name"`
	Address   *string   `json:"address,omitempty" db:"address"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Email     *string   `json:"email,omitempty" db:"email"`
	Principal *string   `json:"principal,omitempty" db:"principal"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
