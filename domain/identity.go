package domain

import "time"

// Identity is the authentication-provider record for a user. It is owned by
// the authentication subsystem; this service only reads it and, on cleanup,
// deletes it through the provider's administrative delete.
type Identity struct {
	ID            string    `bson:"_id,omitempty"`
	Email         string    `bson:"email"`
	EmailVerified bool      `bson:"email_verified"`
	CreatedAt     time.Time `bson:"created_at"`
}
