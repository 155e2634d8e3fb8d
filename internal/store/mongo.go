package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/clinic-api/internal/models"
)

// MongoStore implements Store on top of a MongoDB database. Emails are
// expected to be stored lower-cased; the unique index on email enforces one
// account per address.
type MongoStore struct {
	client       *mongo.Client
	users        *mongo.Collection
	appointments *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

const maxReplaceAttempts = 5

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:       client,
		users:        db.Collection("users"),
		appointments: db.Collection("appointments"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users index: %w", err)
	}

	_, err = s.appointments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "confirmationToken", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("appointments index: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// --- users ---

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](ctx, s.users, bson.M{}, nil)
}

func (s *MongoStore) CreateUser(ctx context.Context, u models.User) error {
	return insert(ctx, s.users, u)
}

func (s *MongoStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	return findOne[models.User](ctx, s.users, bson.M{"_id": id})
}

func (s *MongoStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return findOne[models.User](ctx, s.users, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *MongoStore) UpdateUser(ctx context.Context, id string, mutate func(*models.User)) (*models.User, error) {
	return replace(ctx, s.users, id, mutate)
}

// --- appointments ---

func (s *MongoStore) ListAppointments(ctx context.Context) ([]models.Appointment, error) {
	return findAll[models.Appointment](ctx, s.appointments, bson.M{}, nil)
}

func (s *MongoStore) CreateAppointment(ctx context.Context, a models.Appointment) error {
	return insert(ctx, s.appointments, a)
}

func (s *MongoStore) AppointmentByID(ctx context.Context, id string) (*models.Appointment, error) {
	return findOne[models.Appointment](ctx, s.appointments, bson.M{"_id": id})
}

func (s *MongoStore) AppointmentByToken(ctx context.Context, token string) (*models.Appointment, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return findOne[models.Appointment](ctx, s.appointments, bson.M{"confirmationToken": token})
}

func (s *MongoStore) AppointmentsByUser(ctx context.Context, userID string) ([]models.Appointment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return findAll[models.Appointment](ctx, s.appointments, bson.M{"userId": userID}, opts)
}

func (s *MongoStore) UpdateAppointment(ctx context.Context, id string, mutate func(*models.Appointment)) (*models.Appointment, error) {
	return replace(ctx, s.appointments, id, mutate)
}

func (s *MongoStore) DeleteAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	var a models.Appointment
	err := s.appointments.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete appointment: %w", err)
	}
	return &a, nil
}

// --- helpers ---

func insert(ctx context.Context, coll *mongo.Collection, doc any) error {
	_, err := coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert into %s: %w", coll.Name(), err)
	}
	return nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (*T, error) {
	var out T
	err := coll.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]T, error) {
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cursor, err := coll.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return out, nil
}

// replace is a compare-and-swap: the write only matches while the stored
// document is unchanged since it was read, otherwise it re-reads and retries.
func replace[T any](ctx context.Context, coll *mongo.Collection, id string, mutate func(*T)) (*T, error) {
	for attempt := 0; attempt < maxReplaceAttempts; attempt++ {
		raw, err := coll.FindOne(ctx, bson.M{"_id": id}).Raw()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("find in %s: %w", coll.Name(), err)
		}

		var prev bson.M
		if err := bson.Unmarshal(raw, &prev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
		}
		doc := new(T)
		if err := bson.Unmarshal(raw, doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
		}
		mutate(doc)

		res, err := coll.ReplaceOne(ctx, prev, doc)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", coll.Name(), err)
		}
		if res.MatchedCount == 1 {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("update %s %s: concurrent modification", coll.Name(), id)
}
