package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/harentsoaR/clinic-api/internal/middleware"
	"github.com/harentsoaR/clinic-api/internal/models"
	"github.com/harentsoaR/clinic-api/internal/services"
	"github.com/harentsoaR/clinic-api/internal/store"
	"github.com/harentsoaR/clinic-api/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string // "to|subject|body"
}

func (s *recordingSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+"|"+subject+"|"+body)
	return nil
}

func (s *recordingSender) to(addr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.sent {
		if strings.HasPrefix(m, addr+"|") {
			out = append(out, m)
		}
	}
	return out
}

type googleStub struct{}

func (googleStub) Verify(_ context.Context, credential string) (*utils.ExternalIdentity, error) {
	if credential != "good-google-token" {
		return nil, errors.New("bad signature")
	}
	return &utils.ExternalIdentity{Subject: "g-42", Email: "ravi@example.com", Name: "Ravi"}, nil
}

type testEnv struct {
	router   *gin.Engine
	store    *store.FileStore
	sender   *recordingSender
	identity *services.IdentityService
}

func newTestEnv(t *testing.T, limiter *middleware.RateLimiter) *testEnv {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sender := &recordingSender{}
	notifier := services.NewNotificationService(sender, services.NotificationConfig{
		ClinicEmail:   "clinic@example.com",
		ClinicName:    "DocClinic",
		DefaultDoctor: "Dr. Rajesh Sharma",
		BaseURL:       "http://localhost:5000",
	}, nil)
	identity := services.NewIdentityService(st, googleStub{}, "handler-secret", nil)
	appts := services.NewAppointmentService(st, st, notifier, "Dr. Rajesh Sharma", nil)

	h := NewHandler(identity, appts, "DocClinic", nil)
	r, err := NewRouter(h, RouterConfig{CORSOrigins: []string{"http://localhost:3000"}, Limiter: limiter})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{router: r, store: st, sender: sender, identity: identity}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatal(err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func (e *testEnv) register(t *testing.T, name, email string) (id, token string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{"name": name, "email": email, "password": "pw123456", "phone": "98100"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, w.Code, w.Body.String())
	}
	body := decode(t, w)
	return body["user"].(map[string]any)["id"].(string), body["token"].(string)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/auth/register", gin.H{"name": "Asha", "email": "Asha@Example.com", "password": "pw123456"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password") || strings.Contains(w.Body.String(), "$2a$") {
		t.Error("password hash leaked into response")
	}
	body := decode(t, w)
	if body["token"] == "" || body["user"].(map[string]any)["email"] != "asha@example.com" {
		t.Errorf("unexpected body %v", body)
	}

	tests := []struct {
		name string
		body any
		want string
	}{
		{"duplicate", gin.H{"name": "B", "email": "ASHA@example.com", "password": "x"}, "User with this email already exists"},
		{"missing fields", gin.H{"email": "c@example.com"}, "Name, email, and password are required"},
		{"malformed", "{not json", "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/auth/register", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
			if got := decode(t, w)["error"]; got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLoginEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	e.register(t, "Asha", "asha@example.com")

	tests := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"ok", gin.H{"email": "asha@example.com", "password": "pw123456"}, http.StatusOK},
		{"wrong password", gin.H{"email": "asha@example.com", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", gin.H{"email": "who@example.com", "password": "pw123456"}, http.StatusUnauthorized},
		{"missing", gin.H{"email": "asha@example.com"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/auth/login", tt.body, "")
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status == http.StatusUnauthorized && decode(t, w)["error"] != "Invalid email or password" {
				t.Errorf("unexpected error body %s", w.Body.String())
			}
		})
	}
}

func TestGoogleEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/auth/google", gin.H{"credential": "good-google-token"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if decode(t, w)["user"].(map[string]any)["googleId"] != "g-42" {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	if w := e.do(t, http.MethodPost, "/api/auth/google", gin.H{"credential": "forged"}, ""); w.Code != http.StatusUnauthorized || decode(t, w)["error"] != "Invalid Google token" {
		t.Errorf("expected 401 Invalid Google token, got %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPost, "/api/auth/google", gin.H{}, ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestMeAndProfile(t *testing.T) {
	e := newTestEnv(t, nil)
	_, token := e.register(t, "Asha", "asha@example.com")

	if w := e.do(t, http.MethodGet, "/api/auth/me", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	w := e.do(t, http.MethodGet, "/api/auth/me", nil, token)
	if w.Code != http.StatusOK || decode(t, w)["user"].(map[string]any)["name"] != "Asha" {
		t.Fatalf("unexpected me response %d %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPut, "/api/auth/profile", gin.H{"phone": "12345"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("profile update: %d %s", w.Code, w.Body.String())
	}
	user := decode(t, w)["user"].(map[string]any)
	if user["name"] != "Asha" || user["phone"] != "12345" {
		t.Errorf("unexpected user after update %v", user)
	}

	ghost, err := e.identity.IssueCredential("ghost", "ghost@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if w := e.do(t, http.MethodGet, "/api/auth/me", nil, ghost); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/api/auth/profile", gin.H{"name": "x"}, ghost); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", w.Code)
	}
}

func TestBookingFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	_, token := e.register(t, "Asha", "asha@example.com")

	if w := e.do(t, http.MethodPost, "/api/appointments/book", gin.H{"appointmentDate": "2025-06-01", "appointmentTime": "10:00 AM"}, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/appointments/book", gin.H{"appointmentDate": "2025-06-01"}, token); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without time, got %d", w.Code)
	}

	w := e.do(t, http.MethodPost, "/api/appointments/book", gin.H{"appointmentDate": "2025-06-01", "appointmentTime": "10:00 AM", "healthConcern": "Migraine"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	appt := body["appointment"].(map[string]any)
	if appt["status"] != "pending" || appt["preferredDoctor"] != "Dr. Rajesh Sharma" {
		t.Errorf("unexpected appointment %v", appt)
	}
	if _, ok := appt["confirmationToken"]; ok {
		t.Error("confirmation token must not be returned to the patient")
	}
	notes := body["emailNotifications"].(map[string]any)
	if notes["clinicNotified"] != true || notes["patientNotified"] != true {
		t.Errorf("unexpected notifications %v", notes)
	}
	if len(e.sender.to("clinic@example.com")) != 1 || len(e.sender.to("asha@example.com")) != 1 {
		t.Errorf("expected one clinic and one patient email, got %d", len(e.sender.sent))
	}

	w = e.do(t, http.MethodGet, "/api/appointments/my-appointments", nil, token)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	if list := decode(t, w)["appointments"].([]any); len(list) != 1 {
		t.Errorf("expected 1 appointment, got %d", len(list))
	}
	if strings.Contains(w.Body.String(), "confirmationToken") {
		t.Error("token leaked in list")
	}
}

func TestGuestBooking(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodPost, "/api/appointments/book-guest", gin.H{
		"patientName":     "Guest",
		"patientEmail":    "guest@example.com",
		"appointmentDate": "2025-06-01",
		"appointmentTime": "10:00 AM",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("guest booking: %d %s", w.Code, w.Body.String())
	}
	if appt := decode(t, w)["appointment"].(map[string]any); appt["userId"] != nil {
		t.Errorf("guest booking should have null userId, got %v", appt["userId"])
	}

	w = e.do(t, http.MethodPost, "/api/appointments/book-guest", gin.H{"patientName": "Guest"}, "")
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "Name, email, date and time are required" {
		t.Errorf("unexpected validation response %d %s", w.Code, w.Body.String())
	}
}

func bookFor(t *testing.T, e *testEnv, token string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/appointments/book", gin.H{"appointmentDate": "2025-06-01", "appointmentTime": "10:00 AM"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", w.Code, w.Body.String())
	}
	return decode(t, w)["appointment"].(map[string]any)["id"].(string)
}

func TestOwnerActions(t *testing.T) {
	e := newTestEnv(t, nil)
	_, owner := e.register(t, "Asha", "asha@example.com")
	_, other := e.register(t, "Ravi", "ravi@example.com")
	id := bookFor(t, e, owner)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/appointments/" + id, nil},
		{http.MethodPut, "/api/appointments/" + id + "/cancel", nil},
		{http.MethodPut, "/api/appointments/" + id + "/reschedule", gin.H{"appointmentDate": "2025-07-01", "appointmentTime": "9:00 AM"}},
	} {
		w := e.do(t, tc.method, tc.path, tc.body, other)
		if w.Code != http.StatusForbidden || decode(t, w)["error"] != "Access denied" {
			t.Errorf("%s %s by non-owner: %d %s", tc.method, tc.path, w.Code, w.Body.String())
		}
	}

	if w := e.do(t, http.MethodGet, "/api/appointments/missing", nil, owner); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w := e.do(t, http.MethodPut, "/api/appointments/"+id+"/reschedule", gin.H{"appointmentDate": "2025-07-01"}, owner)
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "New date and time are required" {
		t.Errorf("unexpected reschedule validation %d %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPut, "/api/appointments/"+id+"/reschedule", gin.H{"appointmentDate": "2025-07-01", "appointmentTime": "9:00 AM"}, owner)
	if w.Code != http.StatusOK {
		t.Fatalf("reschedule: %d %s", w.Code, w.Body.String())
	}
	appt := decode(t, w)["appointment"].(map[string]any)
	if appt["appointmentDate"] != "2025-07-01" || appt["status"] != "pending" || appt["rescheduledAt"] == nil {
		t.Errorf("unexpected rescheduled appointment %v", appt)
	}

	w = e.do(t, http.MethodPut, "/api/appointments/"+id+"/cancel", nil, owner)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	appt = decode(t, w)["appointment"].(map[string]any)
	if appt["status"] != "cancelled" || appt["cancelledAt"] == nil {
		t.Errorf("unexpected cancelled appointment %v", appt)
	}
	if w := e.do(t, http.MethodPut, "/api/appointments/"+id+"/cancel", nil, owner); w.Code != http.StatusOK {
		t.Errorf("second cancel should succeed, got %d", w.Code)
	}
}

var confirmLink = regexp.MustCompile(`http://localhost:5000(/api/appointments/(confirm|reject)/[A-Za-z0-9]+)`)

func clinicLinks(t *testing.T, e *testEnv) (confirm, reject string) {
	t.Helper()
	mails := e.sender.to("clinic@example.com")
	if len(mails) == 0 {
		t.Fatal("no clinic email sent")
	}
	for _, m := range confirmLink.FindAllStringSubmatch(mails[len(mails)-1], -1) {
		switch m[2] {
		case "confirm":
			confirm = m[1]
		case "reject":
			reject = m[1]
		}
	}
	if confirm == "" || reject == "" {
		t.Fatal("clinic email is missing action links")
	}
	return confirm, reject
}

func getPage(t *testing.T, e *testEnv, path string) string {
	t.Helper()
	w := e.do(t, http.MethodGet, path, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", path, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html, got %s", ct)
	}
	return w.Body.String()
}

func TestEmailActionLinks(t *testing.T) {
	e := newTestEnv(t, nil)
	_, token := e.register(t, "Asha", "asha@example.com")
	id := bookFor(t, e, token)
	confirm, reject := clinicLinks(t, e)

	page := getPage(t, e, confirm)
	if !strings.Contains(page, "has been confirmed!") || !strings.Contains(page, "Appointment Confirmed!") {
		t.Errorf("unexpected confirm page %s", page)
	}
	stored, err := e.store.AppointmentByID(context.Background(), id)
	if err != nil || stored.Status != models.StatusConfirmed {
		t.Fatalf("expected confirmed record, got %+v %v", stored, err)
	}
	if got := e.sender.to("asha@example.com"); len(got) != 2 || !strings.Contains(got[1], "Appointment Confirmed!") {
		t.Errorf("patient should get a confirmation email, got %d emails", len(got))
	}

	if page := getPage(t, e, confirm); !strings.Contains(page, "already been confirmed") {
		t.Errorf("expected idempotent page, got %s", page)
	}
	if page := getPage(t, e, reject); !strings.Contains(page, "cancel it from the dashboard") {
		t.Errorf("expected refusal page, got %s", page)
	}
	if page := getPage(t, e, "/api/appointments/confirm/not-a-real-token"); !strings.Contains(page, "Invalid or expired confirmation link.") {
		t.Errorf("unexpected page for unknown token %s", page)
	}
}

func TestRejectLinkForGuest(t *testing.T) {
	e := newTestEnv(t, nil)
	w := e.do(t, http.MethodPost, "/api/appointments/book-guest", gin.H{
		"patientName":     "<b>Guest</b>",
		"patientEmail":    "guest@example.com",
		"appointmentDate": "2025-06-01",
		"appointmentTime": "10:00 AM",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	_, reject := clinicLinks(t, e)

	page := getPage(t, e, reject)
	if !strings.Contains(page, "Appointment Rejected") {
		t.Errorf("unexpected reject page %s", page)
	}
	if strings.Contains(page, "<b>Guest</b>") {
		t.Error("patient name must be escaped on the action page")
	}
	if page := getPage(t, e, reject); !strings.Contains(page, "already been rejected") {
		t.Errorf("expected idempotent page, got %s", page)
	}
}

func TestRateLimitedEndpoints(t *testing.T) {
	e := newTestEnv(t, middleware.NewRateLimiter(0.001, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, e.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "a@example.com", "password": "x"}, "").Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected third login to be throttled, got %v", codes)
	}
	if w := e.do(t, http.MethodGet, "/api/health", nil, ""); w.Code != http.StatusOK {
		t.Errorf("health must not be throttled, got %d", w.Code)
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	e := newTestEnv(t, middleware.NewRateLimiter(0.001, 2))

	codes := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(gin.H{"email": "a@example.com", "password": "x"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		req.RemoteAddr = "198.51.100.7:4000"
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	for i, code := range codes[2:] {
		if code != http.StatusTooManyRequests {
			t.Fatalf("request %d from one peer was not throttled: %v", i+3, codes)
		}
	}
}

func TestNewRouterRejectsBadProxy(t *testing.T) {
	h := NewHandler(nil, nil, "DocClinic", nil)
	if _, err := NewRouter(h, RouterConfig{TrustedProxies: []string{"not-an-ip"}}); err == nil {
		t.Fatal("expected an invalid proxy entry to be rejected")
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/appointments/book", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials should be allowed")
	}
}
