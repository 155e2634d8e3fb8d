package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harentsoaR/clinic-api/internal/models"
	"github.com/harentsoaR/clinic-api/internal/services"
)

func publicAppointments(in []models.Appointment) []models.Appointment {
	out := make([]models.Appointment, len(in))
	for i, a := range in {
		out[i] = a.Public()
	}
	return out
}

func (h *Handler) BookAppointment(c *gin.Context) {
	var req services.BookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.Appointments.BookAuthenticated(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		h.respondError(c, err, "Failed to book appointment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":            "Appointment booked successfully!",
		"appointment":        res.Appointment.Public(),
		"emailNotifications": res.Notifications,
	})
}

func (h *Handler) BookGuestAppointment(c *gin.Context) {
	var req services.BookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.Appointments.BookGuest(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "Failed to book appointment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":            "Appointment booked successfully!",
		"appointment":        res.Appointment.Public(),
		"emailNotifications": res.Notifications,
	})
}

// GetMyAppointments lists the caller's appointments, newest booking first.
func (h *Handler) GetMyAppointments(c *gin.Context) {
	appts, err := h.Appointments.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "Failed to fetch appointments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": publicAppointments(appts)})
}

func (h *Handler) GetAppointment(c *gin.Context) {
	appt, err := h.Appointments.Get(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "Failed to fetch appointment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointment": appt.Public()})
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	res, err := h.Appointments.Cancel(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "Failed to cancel appointment")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":            "Appointment cancelled",
		"appointment":        res.Appointment.Public(),
		"emailNotifications": res.Notifications,
	})
}

func (h *Handler) RescheduleAppointment(c *gin.Context) {
	var req struct {
		AppointmentDate string `json:"appointmentDate"`
		AppointmentTime string `json:"appointmentTime"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.Appointments.Reschedule(c.Request.Context(), c.Param("id"), currentUserID(c), req.AppointmentDate, req.AppointmentTime)
	if err != nil {
		h.respondError(c, err, "Failed to reschedule appointment")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":            "Appointment rescheduled",
		"appointment":        res.Appointment.Public(),
		"emailNotifications": res.Notifications,
	})
}

type actionPage struct {
	Icon       string
	Title      string
	Color      template.CSS
	Background template.CSS
}

var actionPages = map[services.OutcomeKind]actionPage{
	services.OutcomeSuccess:  {Icon: "✅", Title: "Appointment Confirmed!", Color: "#10b981", Background: "#d1fae5"},
	services.OutcomeRejected: {Icon: "❌", Title: "Appointment Rejected", Color: "#ef4444", Background: "#fee2e2"},
	services.OutcomeError:    {Icon: "⚠️", Title: "Error", Color: "#f59e0b", Background: "#fef3c7"},
	services.OutcomeInfo:     {Icon: "ℹ️", Title: "Information", Color: "#3b82f6", Background: "#dbeafe"},
}

// renderOutcome always answers 200; the page text carries the outcome so the
// link works from any mail client.
func (h *Handler) renderOutcome(c *gin.Context, out services.ActionOutcome) {
	page, ok := actionPages[out.Kind]
	if !ok {
		page = actionPages[services.OutcomeError]
	}
	c.HTML(http.StatusOK, "action.html", gin.H{
		"Page":       page,
		"Message":    out.Message,
		"ClinicName": h.ClinicName,
	})
}

func (h *Handler) ConfirmAppointment(c *gin.Context) {
	h.renderOutcome(c, h.Appointments.ConfirmByToken(c.Request.Context(), c.Param("token")))
}

func (h *Handler) RejectAppointment(c *gin.Context) {
	h.renderOutcome(c, h.Appointments.RejectByToken(c.Request.Context(), c.Param("token")))
}
