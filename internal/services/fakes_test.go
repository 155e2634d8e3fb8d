package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/harentsoaR/clinic-api/internal/models"
	"github.com/harentsoaR/clinic-api/internal/store"
	"github.com/harentsoaR/clinic-api/internal/utils"
)

func newTestStore(t *testing.T) *store.FileStore {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

type sentEmail struct {
	kind    string
	apptID  string
	status  models.Status
	contact models.Contact
}

type fakeNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []sentEmail
	// onReminder runs before a reminder is recorded.
	onReminder func(models.Appointment)
}

func (f *fakeNotifier) record(kind string, a models.Appointment, p models.Contactable) SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{kind: kind, apptID: a.ID, status: a.Status, contact: p.Contact()})
	if f.fail {
		return SendResult{Error: "smtp down"}
	}
	return SendResult{Success: true}
}

func (f *fakeNotifier) NotifyClinic(_ context.Context, a models.Appointment, p models.Contactable) SendResult {
	return f.record("clinic", a, p)
}

func (f *fakeNotifier) NotifyBookingReceived(_ context.Context, a models.Appointment, p models.Contactable) SendResult {
	return f.record("received", a, p)
}

func (f *fakeNotifier) NotifyStatusChanged(_ context.Context, a models.Appointment, p models.Contactable) SendResult {
	return f.record("status", a, p)
}

func (f *fakeNotifier) NotifyReminder(_ context.Context, a models.Appointment, p models.Contactable) SendResult {
	if f.onReminder != nil {
		f.onReminder(a)
	}
	return f.record("reminder", a, p)
}

func (f *fakeNotifier) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.kind
	}
	return out
}

func (f *fakeNotifier) last() sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeVerifier struct {
	ident *utils.ExternalIdentity
	err   error
}

func (f fakeVerifier) Verify(context.Context, string) (*utils.ExternalIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ident, nil
}

type mail struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []mail
}

func (f *fakeSender) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, mail{to, subject, body})
	return nil
}

var errBoom = errors.New("boom")
