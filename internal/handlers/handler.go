package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harentsoaR/clinic-api/internal/middleware"
	"github.com/harentsoaR/clinic-api/internal/services"
	"go.uber.org/zap"
)

// Handler holds the services every route needs. Handler functions are
// methods on it, split by area across this package.
type Handler struct {
	Identity     *services.IdentityService
	Appointments *services.AppointmentService
	ClinicName   string
	Log          *zap.SugaredLogger
}

func NewHandler(identity *services.IdentityService, appointments *services.AppointmentService, clinicName string, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		Identity:     identity,
		Appointments: appointments,
		ClinicName:   clinicName,
		Log:          log,
	}
}

var statusByKind = map[services.Kind]int{
	services.KindValidation: http.StatusBadRequest,
	services.KindAuth:       http.StatusUnauthorized,
	services.KindForbidden:  http.StatusForbidden,
	services.KindNotFound:   http.StatusNotFound,
}

// respondError renders a service error. Anything without a known kind is
// logged and answered with fallback as a 500.
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	var se *services.Error
	if errors.As(err, &se) {
		if status, ok := statusByKind[se.Kind]; ok {
			c.JSON(status, gin.H{"error": se.Msg})
			return
		}
	}
	h.Log.Errorw(fallback, "path", c.FullPath(), "error", err)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
}

func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": h.ClinicName + " Backend is running!"})
}
