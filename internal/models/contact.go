package models

// Contact is the name/email/phone triple used to address a patient, whether
// they hold an account or booked as a guest.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (c Contact) Contact() Contact { return c }

// Contactable is satisfied by anything that can be emailed about an appointment.
type Contactable interface {
	Contact() Contact
}

// WithPhone returns a copy of the contact with the phone replaced when p is set.
func (c Contact) WithPhone(p string) Contact {
	if p != "" {
		c.Phone = p
	}
	return c
}
