package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/harentsoaR/clinic-api/internal/models"
)

const (
	usersFile        = "users.json"
	appointmentsFile = "appointments.json"
)

// FileStore keeps users.json and appointments.json under one directory.
type FileStore struct {
	users        *Collection[models.User]
	appointments *Collection[models.Appointment]
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	users, err := OpenCollection(filepath.Join(dir, usersFile), func(u models.User) string { return u.ID })
	if err != nil {
		return nil, fmt.Errorf("open users: %w", err)
	}
	appointments, err := OpenCollection(filepath.Join(dir, appointmentsFile), func(a models.Appointment) string { return a.ID })
	if err != nil {
		return nil, fmt.Errorf("open appointments: %w", err)
	}
	return &FileStore{users: users, appointments: appointments}, nil
}

func (s *FileStore) Close(context.Context) error { return nil }

// --- users ---

func (s *FileStore) ListUsers(context.Context) ([]models.User, error) {
	return s.users.List(), nil
}

func (s *FileStore) CreateUser(_ context.Context, u models.User) error {
	return s.users.Insert(u, func(existing models.User) bool {
		return sameEmail(existing.Email, u.Email)
	})
}

func (s *FileStore) UserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := s.users.Find(func(u models.User) bool { return u.ID == id })
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *FileStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := s.users.Find(func(u models.User) bool { return sameEmail(u.Email, email) })
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *FileStore) UpdateUser(_ context.Context, id string, mutate func(*models.User)) (*models.User, error) {
	u, err := s.users.Update(id, mutate)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- appointments ---

func (s *FileStore) ListAppointments(context.Context) ([]models.Appointment, error) {
	return s.appointments.List(), nil
}

func (s *FileStore) CreateAppointment(_ context.Context, a models.Appointment) error {
	return s.appointments.Insert(a, func(existing models.Appointment) bool {
		return existing.ConfirmationToken == a.ConfirmationToken
	})
}

func (s *FileStore) AppointmentByID(_ context.Context, id string) (*models.Appointment, error) {
	a, ok := s.appointments.Find(func(a models.Appointment) bool { return a.ID == id })
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *FileStore) AppointmentByToken(_ context.Context, token string) (*models.Appointment, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	a, ok := s.appointments.Find(func(a models.Appointment) bool { return a.ConfirmationToken == token })
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *FileStore) AppointmentsByUser(_ context.Context, userID string) ([]models.Appointment, error) {
	return s.appointments.Filter(func(a models.Appointment) bool { return a.OwnedBy(userID) }), nil
}

func (s *FileStore) UpdateAppointment(_ context.Context, id string, mutate func(*models.Appointment)) (*models.Appointment, error) {
	a, err := s.appointments.Update(id, mutate)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *FileStore) DeleteAppointment(_ context.Context, id string) (*models.Appointment, error) {
	a, err := s.appointments.Delete(id)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
