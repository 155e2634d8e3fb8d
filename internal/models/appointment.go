package models

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Appointment is a booking request. UserID is nil for guest bookings. The
// patient fields are copied at booking time and are not kept in sync with the
// owning user's profile.
type Appointment struct {
	ID                string  `bson:"_id" json:"id"`
	ConfirmationToken string  `bson:"confirmationToken" json:"confirmationToken,omitempty"`
	UserID            *string `bson:"userId" json:"userId"`

	PatientName  string `bson:"patientName" json:"patientName"`
	PatientEmail string `bson:"patientEmail" json:"patientEmail"`
	PatientPhone string `bson:"patientPhone" json:"patientPhone"`

	AppointmentDate string `bson:"appointmentDate" json:"appointmentDate"`
	AppointmentTime string `bson:"appointmentTime" json:"appointmentTime"`
	HealthConcern   string `bson:"healthConcern" json:"healthConcern"`
	Symptoms        string `bson:"symptoms" json:"symptoms"`
	AdditionalNotes string `bson:"additionalNotes" json:"additionalNotes"`
	PreferredDoctor string `bson:"preferredDoctor" json:"preferredDoctor"`

	Status    Status    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`

	ConfirmedAt    *time.Time `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	RejectedAt     *time.Time `bson:"rejectedAt,omitempty" json:"rejectedAt,omitempty"`
	CancelledAt    *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	RescheduledAt  *time.Time `bson:"rescheduledAt,omitempty" json:"rescheduledAt,omitempty"`
	ReminderSentAt *time.Time `bson:"reminderSentAt,omitempty" json:"reminderSentAt,omitempty"`
}

// Clone returns a copy that shares no pointers with a.
func (a Appointment) Clone() Appointment {
	a.UserID = clonePtr(a.UserID)
	a.ConfirmedAt = clonePtr(a.ConfirmedAt)
	a.RejectedAt = clonePtr(a.RejectedAt)
	a.CancelledAt = clonePtr(a.CancelledAt)
	a.RescheduledAt = clonePtr(a.RescheduledAt)
	a.ReminderSentAt = clonePtr(a.ReminderSentAt)
	return a
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (a Appointment) IsGuest() bool {
	return a.UserID == nil
}

// OwnedBy reports whether userID owns the appointment. Guest bookings are
// owned by nobody.
func (a Appointment) OwnedBy(userID string) bool {
	return a.UserID != nil && *a.UserID == userID
}

// Contact returns the patient contact captured at booking time.
func (a Appointment) Contact() Contact {
	return Contact{Name: a.PatientName, Email: a.PatientEmail, Phone: a.PatientPhone}
}

// Public strips the confirmation token, which only belongs in the clinic's inbox.
func (a Appointment) Public() Appointment {
	a.ConfirmationToken = ""
	return a
}
