package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/medivuno/medivuno-backend/internal/models"
)

// ErrContactNotFound is returned when a contact id resolves to nothing.
var ErrContactNotFound = errors.New("contact not found")

// ContactDirectory is the chat layer's narrow read interface to the
// platform's user/profile system: resolve a contact id to its role union for
// conversation-list enrichment. No writes, no auth concerns.
type ContactDirectory struct {
	db *sql.DB
}

func NewContactDirectory(db *sql.DB) *ContactDirectory {
	return &ContactDirectory{db: db}
}

// Contact looks up one contact by id.
func (d *ContactDirectory) Contact(ctx context.Context, id string) (models.Contact, error) {
	var (
		kind, name           string
		specialty, condition sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT kind, name, specialty, condition FROM contacts WHERE id = $1
	`, id).Scan(&kind, &name, &specialty, &condition)
	if err == sql.ErrNoRows {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}

	switch models.ContactKind(kind) {
	case models.ContactKindDoctor:
		return models.Doctor{ID: id, Name: name, Specialty: specialty.String}, nil
	case models.ContactKindPatient:
		return models.Patient{ID: id, Name: name, Condition: condition.String}, nil
	}
	return nil, ErrContactNotFound
}
