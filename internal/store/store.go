// Package store persists users and appointments. The default backend keeps
// each collection as a pretty-printed JSON array on disk; MongoStore offers
// the same contract on a MongoDB database.
package store

import (
	"context"
	"errors"

	"github.com/harentsoaR/clinic-api/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type UserRepository interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, u models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	// UserByEmail matches case-insensitively.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, mutate func(*models.User)) (*models.User, error)
}

type AppointmentRepository interface {
	ListAppointments(ctx context.Context) ([]models.Appointment, error)
	CreateAppointment(ctx context.Context, a models.Appointment) error
	AppointmentByID(ctx context.Context, id string) (*models.Appointment, error)
	AppointmentByToken(ctx context.Context, token string) (*models.Appointment, error)
	AppointmentsByUser(ctx context.Context, userID string) ([]models.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, mutate func(*models.Appointment)) (*models.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) (*models.Appointment, error)
}

type Store interface {
	UserRepository
	AppointmentRepository
	Close(ctx context.Context) error
}
