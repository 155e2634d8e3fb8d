package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/harentsoaR/clinic-api/internal/models"
	"github.com/harentsoaR/clinic-api/internal/store"
	"github.com/harentsoaR/clinic-api/internal/utils"
	"go.uber.org/zap"
)

// BookingInput carries the booking form. Patient name and email are only read
// for guest bookings; authenticated bookings take them from the account.
type BookingInput struct {
	PatientName     string `json:"patientName"`
	PatientEmail    string `json:"patientEmail"`
	PatientPhone    string `json:"patientPhone"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
	HealthConcern   string `json:"healthConcern"`
	Symptoms        string `json:"symptoms"`
	AdditionalNotes string `json:"additionalNotes"`
	PreferredDoctor string `json:"preferredDoctor"`
}

type Notifications struct {
	ClinicNotified  bool `json:"clinicNotified"`
	PatientNotified bool `json:"patientNotified"`
}

// BookingResult is the stored appointment plus whether the emails went out.
// Notification failure never fails a booking.
type BookingResult struct {
	Appointment   models.Appointment
	Notifications Notifications
}

type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeInfo     OutcomeKind = "info"
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeError    OutcomeKind = "error"
)

// ActionOutcome is the result of an emailed confirm/reject link. It is always
// returned, never an error, so the link can be rendered as a plain page.
type ActionOutcome struct {
	Kind        OutcomeKind
	Message     string
	Appointment *models.Appointment
}

type AppointmentService struct {
	users         store.UserRepository
	appointments  store.AppointmentRepository
	notifier      Notifier
	defaultDoctor string
	log           *zap.SugaredLogger
	now           func() time.Time
}

func NewAppointmentService(users store.UserRepository, appointments store.AppointmentRepository, notifier Notifier, defaultDoctor string, log *zap.SugaredLogger) *AppointmentService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AppointmentService{
		users:         users,
		appointments:  appointments,
		notifier:      notifier,
		defaultDoctor: defaultDoctor,
		log:           log,
		now:           time.Now,
	}
}

func (s *AppointmentService) BookAuthenticated(ctx context.Context, userID string, in BookingInput) (*BookingResult, error) {
	if strings.TrimSpace(in.AppointmentDate) == "" || strings.TrimSpace(in.AppointmentTime) == "" {
		return nil, Validation("Date and time are required")
	}

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	phone := in.PatientPhone
	if phone == "" {
		phone = user.Phone
	}
	appt := s.newAppointment(in, &user.ID, user.Contact().WithPhone(phone))
	return s.book(ctx, appt)
}

func (s *AppointmentService) BookGuest(ctx context.Context, in BookingInput) (*BookingResult, error) {
	if strings.TrimSpace(in.PatientName) == "" || strings.TrimSpace(in.PatientEmail) == "" ||
		strings.TrimSpace(in.AppointmentDate) == "" || strings.TrimSpace(in.AppointmentTime) == "" {
		return nil, Validation("Name, email, date and time are required")
	}

	patient := models.Contact{
		Name:  strings.TrimSpace(in.PatientName),
		Email: strings.TrimSpace(in.PatientEmail),
		Phone: strings.TrimSpace(in.PatientPhone),
	}
	appt := s.newAppointment(in, nil, patient)
	return s.book(ctx, appt)
}

func (s *AppointmentService) newAppointment(in BookingInput, userID *string, patient models.Contact) models.Appointment {
	symptoms := in.Symptoms
	if symptoms == "" {
		symptoms = in.AdditionalNotes
	}
	doctor := strings.TrimSpace(in.PreferredDoctor)
	if doctor == "" {
		doctor = s.defaultDoctor
	}
	return models.Appointment{
		ID:                utils.NewID(),
		ConfirmationToken: utils.NewActionToken(),
		UserID:            userID,
		PatientName:       patient.Name,
		PatientEmail:      patient.Email,
		PatientPhone:      patient.Phone,
		AppointmentDate:   strings.TrimSpace(in.AppointmentDate),
		AppointmentTime:   strings.TrimSpace(in.AppointmentTime),
		HealthConcern:     in.HealthConcern,
		Symptoms:          symptoms,
		AdditionalNotes:   in.AdditionalNotes,
		PreferredDoctor:   doctor,
		Status:            models.StatusPending,
		CreatedAt:         s.now().UTC(),
	}
}

func (s *AppointmentService) book(ctx context.Context, appt models.Appointment) (*BookingResult, error) {
	if err := s.appointments.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	s.log.Infow("appointment booked", "appointmentId", appt.ID, "guest", appt.IsGuest())

	patient := appt.Contact()
	clinic := s.notifier.NotifyClinic(ctx, appt, patient)
	received := s.notifier.NotifyBookingReceived(ctx, appt, patient)

	return &BookingResult{
		Appointment: appt,
		Notifications: Notifications{
			ClinicNotified:  clinic.Success,
			PatientNotified: received.Success,
		},
	}, nil
}

// ListForUser returns the user's appointments, newest booking first.
func (s *AppointmentService) ListForUser(ctx context.Context, userID string) ([]models.Appointment, error) {
	appts, err := s.appointments.AppointmentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	slices.SortStableFunc(appts, func(a, b models.Appointment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return appts, nil
}

// Get returns the appointment when userID owns it. Guest bookings are owned
// by nobody and always answer ErrForbidden.
func (s *AppointmentService) Get(ctx context.Context, id, userID string) (*models.Appointment, error) {
	appt, err := s.appointments.AppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("lookup appointment: %w", err)
	}
	if !appt.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// Cancel marks the appointment cancelled and emails the patient. Cancelling
// twice succeeds and moves cancelledAt forward.
func (s *AppointmentService) Cancel(ctx context.Context, id, userID string) (*BookingResult, error) {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updated, err := s.appointments.UpdateAppointment(ctx, id, func(a *models.Appointment) {
		a.Status = models.StatusCancelled
		a.CancelledAt = &now
	})
	if err != nil {
		return nil, s.updateErr(err)
	}
	s.log.Infow("appointment cancelled", "appointmentId", id)

	res := s.notifier.NotifyStatusChanged(ctx, *updated, s.patientContact(ctx, *updated))
	return &BookingResult{Appointment: *updated, Notifications: Notifications{PatientNotified: res.Success}}, nil
}

// Reschedule moves the appointment and puts it back to pending, whatever its
// prior status. The clinic is emailed again so it can act on the new slot.
func (s *AppointmentService) Reschedule(ctx context.Context, id, userID, date, slot string) (*BookingResult, error) {
	date, slot = strings.TrimSpace(date), strings.TrimSpace(slot)
	if date == "" || slot == "" {
		return nil, Validation("New date and time are required")
	}
	if _, err := s.Get(ctx, id, userID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updated, err := s.appointments.UpdateAppointment(ctx, id, func(a *models.Appointment) {
		a.AppointmentDate = date
		a.AppointmentTime = slot
		a.Status = models.StatusPending
		a.RescheduledAt = &now
		a.ReminderSentAt = nil
	})
	if err != nil {
		return nil, s.updateErr(err)
	}
	s.log.Infow("appointment rescheduled", "appointmentId", id, "date", date, "time", slot)

	res := s.notifier.NotifyClinic(ctx, *updated, s.patientContact(ctx, *updated))
	return &BookingResult{Appointment: *updated, Notifications: Notifications{ClinicNotified: res.Success}}, nil
}

func (s *AppointmentService) ConfirmByToken(ctx context.Context, token string) ActionOutcome {
	return s.actOnToken(ctx, token, confirmAction)
}

func (s *AppointmentService) RejectByToken(ctx context.Context, token string) ActionOutcome {
	return s.actOnToken(ctx, token, rejectAction)
}

// tokenAction describes one emailed link. refuse returns a non-nil outcome
// when an appointment in status st must not move to target.
type tokenAction struct {
	verb    string
	target  models.Status
	refuse  func(st models.Status) *ActionOutcome
	success func(a models.Appointment, notified bool) ActionOutcome
}

var confirmAction = tokenAction{
	verb:   "confirm",
	target: models.StatusConfirmed,
	refuse: func(st models.Status) *ActionOutcome {
		switch st {
		case models.StatusConfirmed:
			return &ActionOutcome{Kind: OutcomeInfo, Message: "This appointment has already been confirmed."}
		case models.StatusCancelled, models.StatusRejected:
			return &ActionOutcome{Kind: OutcomeError, Message: "This appointment has been cancelled and cannot be confirmed."}
		case models.StatusCompleted:
			return &ActionOutcome{Kind: OutcomeInfo, Message: "This appointment has already been completed."}
		}
		return nil
	},
	success: func(a models.Appointment, notified bool) ActionOutcome {
		return ActionOutcome{
			Kind:    OutcomeSuccess,
			Message: fmt.Sprintf("Appointment for %s on %s at %s has been confirmed! %s", a.PatientName, a.AppointmentDate, a.AppointmentTime, notifiedText(notified)),
		}
	},
}

var rejectAction = tokenAction{
	verb:   "reject",
	target: models.StatusRejected,
	refuse: func(st models.Status) *ActionOutcome {
		switch st {
		case models.StatusRejected:
			return &ActionOutcome{Kind: OutcomeInfo, Message: "This appointment has already been rejected."}
		case models.StatusConfirmed:
			return &ActionOutcome{Kind: OutcomeError, Message: "This appointment has already been confirmed. Please cancel it from the dashboard if needed."}
		case models.StatusCompleted:
			return &ActionOutcome{Kind: OutcomeInfo, Message: "This appointment has already been completed."}
		}
		return nil
	},
	success: func(a models.Appointment, notified bool) ActionOutcome {
		return ActionOutcome{
			Kind:    OutcomeRejected,
			Message: fmt.Sprintf("Appointment for %s on %s has been rejected. %s", a.PatientName, a.AppointmentDate, notifiedText(notified)),
		}
	},
}

func notifiedText(ok bool) string {
	if ok {
		return "The patient has been notified via email."
	}
	return "The patient could not be notified by email."
}

// actOnToken decides and applies the transition inside the store update, so
// two clicks on the same link cannot both win.
func (s *AppointmentService) actOnToken(ctx context.Context, token string, act tokenAction) ActionOutcome {
	invalid := ActionOutcome{Kind: OutcomeError, Message: "Invalid or expired confirmation link."}
	failed := ActionOutcome{Kind: OutcomeError, Message: fmt.Sprintf("Failed to %s appointment. Please try again.", act.verb)}

	token = strings.TrimSpace(token)
	if token == "" {
		return invalid
	}
	appt, err := s.appointments.AppointmentByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid
		}
		s.log.Errorw("lookup appointment by token", "action", act.verb, "error", err)
		return failed
	}

	now := s.now().UTC()
	var refused *ActionOutcome
	updated, err := s.appointments.UpdateAppointment(ctx, appt.ID, func(a *models.Appointment) {
		if refused = act.refuse(a.Status); refused != nil {
			return
		}
		a.Status = act.target
		switch act.target {
		case models.StatusConfirmed:
			a.ConfirmedAt = &now
		case models.StatusRejected:
			a.RejectedAt = &now
		}
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid
		}
		s.log.Errorw("update appointment by token", "action", act.verb, "appointmentId", appt.ID, "error", err)
		return failed
	}
	if refused != nil {
		refused.Appointment = updated
		return *refused
	}
	s.log.Infow("appointment actioned from email link", "action", act.verb, "appointmentId", updated.ID)

	res := s.notifier.NotifyStatusChanged(ctx, *updated, s.patientContact(ctx, *updated))
	out := act.success(*updated, res.Success)
	out.Appointment = updated
	return out
}

// patientContact prefers the owning account's current profile and falls
// back to the contact captured at booking time.
func (s *AppointmentService) patientContact(ctx context.Context, a models.Appointment) models.Contact {
	if a.IsGuest() {
		return a.Contact()
	}
	user, err := s.users.UserByID(ctx, *a.UserID)
	if err != nil {
		s.log.Warnw("owner lookup failed, using booking contact", "appointmentId", a.ID, "error", err)
		return a.Contact()
	}
	return user.Contact().WithPhone(a.PatientPhone)
}

func (s *AppointmentService) updateErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrAppointmentNotFound
	}
	return fmt.Errorf("update appointment: %w", err)
}
