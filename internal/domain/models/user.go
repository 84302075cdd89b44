// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContactPreferences controls which notification channels a user accepts.
type ContactPreferences struct {
	EmailNotifications bool `bson:"email_notifications" json:"email_notifications"`
	SMSNotifications   bool `bson:"sms_notifications" json:"sms_notifications"`
}

// User represents an account that can sign in and work on projects.
//
// NOTE:
//   - Project membership is not embedded on User.
//     Membership lives in the members array on each project document.
//   - A user authenticates with a password, a Google account, or both.
//     PasswordHash is empty for Google-only accounts.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	NameCI       string             `bson:"name_ci" json:"name_ci"` // lowercase, diacritics-stripped
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash,omitempty" json:"-"`
	GoogleID     *string            `bson:"google_id,omitempty" json:"-"`
	Role         string             `bson:"role" json:"role"` // admin | developer | tester

	Avatar             string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Bio                string             `bson:"bio,omitempty" json:"bio,omitempty"`
	ContactPreferences ContactPreferences `bson:"contact_preferences" json:"contact_preferences"`

	ResetPasswordToken   string     `bson:"reset_password_token,omitempty" json:"-"`
	ResetPasswordExpires *time.Time `bson:"reset_password_expires,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
