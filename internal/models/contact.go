package models

// ContactKind discriminates the two user roles in the platform.
type ContactKind string

const (
	ContactKindDoctor  ContactKind = "doctor"
	ContactKindPatient ContactKind = "patient"
)

// Contact is the role union for chat counterparties. Role-specific fields
// live on the concrete types; narrow with a type switch where they are read.
type Contact interface {
	ContactID() string
	Kind() ContactKind
	DisplayName() string
}

// Doctor is a medical professional contact.
type Doctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
}

func (d Doctor) ContactID() string   { return d.ID }
func (d Doctor) Kind() ContactKind   { return ContactKindDoctor }
func (d Doctor) DisplayName() string { return d.Name }

// Patient is a patient contact.
type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Condition string `json:"condition,omitempty"`
}

func (p Patient) ContactID() string   { return p.ID }
func (p Patient) Kind() ContactKind   { return ContactKindPatient }
func (p Patient) DisplayName() string { return p.Name }
