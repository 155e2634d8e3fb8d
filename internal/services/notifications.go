package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/harentsoaR/clinic-api/internal/models"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var emailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var ErrMailNotConfigured = errors.New("mail transport not configured")

// MailSender delivers one HTML email.
type MailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// GomailSender sends over SMTP. A zero GomailSender refuses every send with
// ErrMailNotConfigured.
type GomailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewGomailSender(host string, port int, user, password, from string) *GomailSender {
	if host == "" || user == "" || password == "" {
		return &GomailSender{}
	}
	if from == "" {
		from = user
	}
	return &GomailSender{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

func (g *GomailSender) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if g == nil || g.dialer == nil {
		return ErrMailNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", g.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	return g.dialer.DialAndSend(m)
}

// SendResult is what the lifecycle reports back about one email. Sends never
// fail the operation that triggered them.
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Notifier is the set of emails the appointment lifecycle triggers.
type Notifier interface {
	NotifyClinic(ctx context.Context, appt models.Appointment, patient models.Contactable) SendResult
	NotifyBookingReceived(ctx context.Context, appt models.Appointment, patient models.Contactable) SendResult
	NotifyStatusChanged(ctx context.Context, appt models.Appointment, patient models.Contactable) SendResult
	NotifyReminder(ctx context.Context, appt models.Appointment, patient models.Contactable) SendResult
}

type NotificationConfig struct {
	ClinicEmail   string
	ClinicName    string
	DefaultDoctor string
	// BaseURL prefixes the confirm/reject links, e.g. https://api.clinic.example
	BaseURL string
}

type statusStyle struct {
	Icon       string
	Title      string
	Color      template.CSS
	Background template.CSS
}

var statusStyles = map[models.Status]statusStyle{
	models.StatusPending:   {Icon: "⏳", Title: "Pending Review", Color: "#fbbf24", Background: "#fef3c7"},
	models.StatusConfirmed: {Icon: "✅", Title: "Appointment Confirmed!", Color: "#10b981", Background: "#d1fae5"},
	models.StatusRejected:  {Icon: "❌", Title: "Appointment Not Available", Color: "#ef4444", Background: "#fee2e2"},
	models.StatusCancelled: {Icon: "🚫", Title: "Appointment Cancelled", Color: "#ef4444", Background: "#fee2e2"},
	models.StatusCompleted: {Icon: "🎉", Title: "Appointment Completed", Color: "#6366f1", Background: "#e0e7ff"},
}

type emailData struct {
	ClinicName  string
	Doctor      string
	Patient     models.Contact
	Appointment models.Appointment
	ConfirmURL  string
	RejectURL   string
	StatusKey   models.Status
	Style       statusStyle
}

type NotificationService struct {
	sender MailSender
	cfg    NotificationConfig
	log    *zap.SugaredLogger
}

func NewNotificationService(sender MailSender, cfg NotificationConfig, log *zap.SugaredLogger) *NotificationService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "DocClinic"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &NotificationService{sender: sender, cfg: cfg, log: log}
}

// ActionURL builds the confirm or reject link for a confirmation token.
func (s *NotificationService) ActionURL(action, token string) string {
	return fmt.Sprintf("%s/api/appointments/%s/%s", s.cfg.BaseURL, action, token)
}

func (s *NotificationService) NotifyClinic(ctx context.Context, appt models.Appointment, patient models.Contactable) SendResult {
	data := s.data(appt, patient)
	data.ConfirmURL = s.ActionURL("confirm", appt.ConfirmationToken)
	data.RejectURL = s.ActionURL("reject", appt.ConfirmationToken)
	subject := fmt.Sprintf("🗓️ New Appointment Request - %s - %s", data.Patient.Name, s.cfg.ClinicName)
	return s.send(ctx, s.cfg.ClinicEmail, subject, "clinic_new_booking.html", data, appt.ID)
}

func (s *NotificationService) NotifyBookingReceived(ctx context.Context, appt models.Appointment, patient models.Contactable) SendResult {
	data := s.data(appt, patient)
	subject := fmt.Sprintf("✅ Appointment Request Received - %s", s.cfg.ClinicName)
	return s.send(ctx, data.Patient.Email, subject, "patient_booking_received.html", data, appt.ID)
}

// NotifyStatusChanged tells the patient about appt's current status. Unknown
// statuses are worded as pending.
func (s *NotificationService) NotifyStatusChanged(ctx context.Context, appt models.Appointment, patient models.Contactable) SendResult {
	data := s.data(appt, patient)
	subject := fmt.Sprintf("%s %s - %s", data.Style.Icon, data.Style.Title, s.cfg.ClinicName)
	return s.send(ctx, data.Patient.Email, subject, "patient_status_changed.html", data, appt.ID)
}

func (s *NotificationService) NotifyReminder(ctx context.Context, appt models.Appointment, patient models.Contactable) SendResult {
	data := s.data(appt, patient)
	subject := fmt.Sprintf("⏰ Appointment Reminder: today at %s - %s", appt.AppointmentTime, s.cfg.ClinicName)
	return s.send(ctx, data.Patient.Email, subject, "patient_reminder.html", data, appt.ID)
}

func (s *NotificationService) data(appt models.Appointment, patient models.Contactable) emailData {
	key := appt.Status
	style, ok := statusStyles[key]
	if !ok {
		key = models.StatusPending
		style = statusStyles[key]
	}
	if appt.PreferredDoctor == "" {
		appt.PreferredDoctor = s.cfg.DefaultDoctor
	}
	contact := appt.Contact()
	if patient != nil {
		contact = patient.Contact()
	}
	return emailData{
		ClinicName:  s.cfg.ClinicName,
		Doctor:      s.cfg.DefaultDoctor,
		Patient:     contact,
		Appointment: appt,
		StatusKey:   key,
		Style:       style,
	}
}

func (s *NotificationService) send(ctx context.Context, to, subject, tmpl string, data emailData, appointmentID string) SendResult {
	if to == "" {
		s.log.Warnw("email skipped, no recipient", "template", tmpl, "appointmentId", appointmentID)
		return SendResult{Error: "no recipient address"}
	}

	var body bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&body, tmpl, data); err != nil {
		s.log.Errorw("render email", "template", tmpl, "error", err)
		return SendResult{Error: err.Error()}
	}

	if err := s.sender.SendEmail(ctx, to, subject, body.String()); err != nil {
		s.log.Warnw("email not sent", "template", tmpl, "appointmentId", appointmentID, "error", err)
		return SendResult{Error: err.Error()}
	}
	s.log.Infow("email sent", "template", tmpl, "appointmentId", appointmentID)
	return SendResult{Success: true}
}
