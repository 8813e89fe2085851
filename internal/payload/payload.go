// Package payload defines the clinical records that can be synchronized
// between practitioners. Every record type is a variant of the sealed
// Payload interface and carries its own SyncType tag.
package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/cryptox"
)

// SyncType tags the kind of record carried by a sync package.
type SyncType string

const (
	SyncTypePatient      SyncType = "patient"
	SyncTypeAppointment  SyncType = "appointment"
	SyncTypeInvoice      SyncType = "invoice"
	SyncTypeConsultation SyncType = "consultation"
)

// Valid reports whether t is one of the known sync types.
func (t SyncType) Valid() bool {
	switch t {
	case SyncTypePatient, SyncTypeAppointment, SyncTypeInvoice, SyncTypeConsultation:
		return true
	}
	return false
}

// Payload is implemented only by the record types of this package.
type Payload interface {
	SyncType() SyncType
	sealed()
}

type Patient struct {
	LocalID   string    `json:"local_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	BirthDate string    `json:"birth_date"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	SSN       string    `json:"ssn,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Allergies []string  `json:"allergies,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Appointment struct {
	LocalID        string    `json:"local_id"`
	PatientLocalID string    `json:"patient_local_id"`
	StartsAt       time.Time `json:"starts_at"`
	Duration       int       `json:"duration_minutes"`
	Reason         string    `json:"reason,omitempty"`
	Status         string    `json:"status"`
}

type InvoiceLine struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amount_cents"`
}

type Invoice struct {
	LocalID        string        `json:"local_id"`
	PatientLocalID string        `json:"patient_local_id"`
	Number         string        `json:"number"`
	IssuedAt       time.Time     `json:"issued_at"`
	Currency       string        `json:"currency"`
	Lines          []InvoiceLine `json:"lines"`
	Paid           bool          `json:"paid"`
}

type Consultation struct {
	LocalID        string    `json:"local_id"`
	PatientLocalID string    `json:"patient_local_id"`
	HeldAt         time.Time `json:"held_at"`
	Motive         string    `json:"motive"`
	Observations   string    `json:"observations,omitempty"`
	Treatment      string    `json:"treatment,omitempty"`
}

func (*Patient) SyncType() SyncType      { return SyncTypePatient }
func (*Appointment) SyncType() SyncType  { return SyncTypeAppointment }
func (*Invoice) SyncType() SyncType      { return SyncTypeInvoice }
func (*Consultation) SyncType() SyncType { return SyncTypeConsultation }

func (*Patient) sealed()      {}
func (*Appointment) sealed()  {}
func (*Invoice) sealed()      {}
func (*Consultation) sealed() {}

// Identity returns the fields used for duplicate detection.
func (p *Patient) Identity() cryptox.IdentityRecord {
	return cryptox.IdentityRecord{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BirthDate: p.BirthDate,
		Email:     p.Email,
	}
}

// Total returns the sum of all invoice lines.
func (i *Invoice) Total() int64 {
	var total int64
	for _, l := range i.Lines {
		total += l.AmountCents
	}
	return total
}

type wire struct {
	Type SyncType        `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Marshal encodes p into its canonical byte form: {"type": ..., "data": ...}.
func Marshal(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", common.ErrValidation)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.SyncType(), err)
	}
	return json.Marshal(wire{Type: p.SyncType(), Data: data})
}

// Unmarshal decodes bytes produced by Marshal back into the matching variant.
func Unmarshal(b []byte) (Payload, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var p Payload
	switch w.Type {
	case SyncTypePatient:
		p = &Patient{}
	case SyncTypeAppointment:
		p = &Appointment{}
	case SyncTypeInvoice:
		p = &Invoice{}
	case SyncTypeConsultation:
		p = &Consultation{}
	default:
		return nil, fmt.Errorf("%w: unknown sync type %q", common.ErrValidation, w.Type)
	}

	if err := json.Unmarshal(w.Data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", w.Type, err)
	}
	return p, nil
}
