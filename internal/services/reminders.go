package services

import (
	"context"
	"fmt"
	"time"

	"github.com/harentsoaR/clinic-api/internal/models"
	"github.com/harentsoaR/clinic-api/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DateLayout is the appointmentDate format the booking form submits.
const DateLayout = "2006-01-02"

// ReminderService emails patients on the morning of a confirmed appointment.
type ReminderService struct {
	appointments store.AppointmentRepository
	users        store.UserRepository
	notifier     Notifier
	log          *zap.SugaredLogger
}

type ReminderReport struct {
	Due    int
	Sent   int
	Failed int
}

func NewReminderService(appointments store.AppointmentRepository, users store.UserRepository, notifier Notifier, log *zap.SugaredLogger) *ReminderService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ReminderService{appointments: appointments, users: users, notifier: notifier, log: log}
}

func reminderDue(a models.Appointment, today string) bool {
	return a.Status == models.StatusConfirmed && a.AppointmentDate == today && a.ReminderSentAt == nil
}

// SendDue reminds every confirmed appointment dated today (in now's location)
// that has not been reminded yet. Failed sends stay due for the next run.
func (s *ReminderService) SendDue(ctx context.Context, now time.Time) (ReminderReport, error) {
	all, err := s.appointments.ListAppointments(ctx)
	if err != nil {
		return ReminderReport{}, fmt.Errorf("list appointments: %w", err)
	}

	today := now.Format(DateLayout)
	var report ReminderReport
	for _, a := range all {
		if !reminderDue(a, today) {
			continue
		}
		report.Due++

		res := s.notifier.NotifyReminder(ctx, a, s.contact(ctx, a))
		if !res.Success {
			report.Failed++
			continue
		}

		stamp := now.UTC()
		moved := false
		if _, err := s.appointments.UpdateAppointment(ctx, a.ID, func(x *models.Appointment) {
			// a reschedule or cancel while sending must keep the new slot remindable
			if x.Status != models.StatusConfirmed || x.AppointmentDate != today {
				moved = true
				return
			}
			x.ReminderSentAt = &stamp
		}); err != nil {
			s.log.Errorw("stamp reminder", "appointmentId", a.ID, "error", err)
			report.Failed++
			continue
		}
		if moved {
			s.log.Infow("appointment changed during reminder, not stamped", "appointmentId", a.ID)
		}
		report.Sent++
	}

	s.log.Infow("reminder pass finished", "date", today, "due", report.Due, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

func (s *ReminderService) contact(ctx context.Context, a models.Appointment) models.Contact {
	if a.IsGuest() || s.users == nil {
		return a.Contact()
	}
	user, err := s.users.UserByID(ctx, *a.UserID)
	if err != nil {
		return a.Contact()
	}
	return user.Contact().WithPhone(a.PatientPhone)
}

// Schedule registers SendDue on a cron spec and returns the started scheduler.
// The caller stops it on shutdown.
func (s *ReminderService) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.SendDue(ctx, time.Now()); err != nil {
			s.log.Errorw("reminder pass failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("add reminder job %q: %w", spec, err)
	}
	c.Start()
	s.log.Infow("reminder scheduler started", "schedule", spec)
	return c, nil
}
