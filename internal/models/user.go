package models

import "time"

// User is the stored account record. Password holds the bcrypt hash and is
// empty for accounts created through Google sign-in.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Password  string    `bson:"password,omitempty" json:"password,omitempty"`
	Phone     string    `bson:"phone" json:"phone"`
	GoogleID  string    `bson:"googleId,omitempty" json:"googleId,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// PublicUser is the only user shape that leaves the API.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	GoogleID  string    `json:"googleId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		GoogleID:  u.GoogleID,
		CreatedAt: u.CreatedAt,
	}
}

// Clone returns u; User has no pointer fields.
func (u User) Clone() User { return u }

func (u User) Contact() Contact {
	return Contact{Name: u.Name, Email: u.Email, Phone: u.Phone}
}
