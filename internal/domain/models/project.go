// internal/domain/models/project.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership roles within a project.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleTester    = "tester"
)

// ValidProjectRole reports whether role is one of the project membership roles.
func ValidProjectRole(role string) bool {
	switch role {
	case RoleAdmin, RoleDeveloper, RoleTester:
		return true
	}
	return false
}

// Membership is one entry in a project's members array.
// Exactly one entry per user per project; role is a scalar.
type Membership struct {
	ID      primitive.ObjectID `bson:"_id" json:"id"`
	UserID  primitive.ObjectID `bson:"user_id" json:"user_id"`
	Role    string             `bson:"role" json:"role"` // admin | developer | tester
	AddedAt time.Time          `bson:"added_at" json:"added_at"`
}

// Project represents a bug-tracking project with its embedded member list.
//
// NOTE:
//   - The creator is seeded as an admin member at creation time.
//   - The members array must always contain at least one admin;
//     removal of the last admin is refused at the store layer.
type Project struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	NameCI      string             `bson:"name_ci" json:"name_ci"`
	Description string             `bson:"description" json:"description"`
	CreatedBy   primitive.ObjectID `bson:"created_by" json:"created_by"`
	Members     []Membership       `bson:"members" json:"members"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// MemberByUserID returns the membership entry for the given user, if present.
func (p *Project) MemberByUserID(userID primitive.ObjectID) (Membership, bool) {
	for _, m := range p.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Membership{}, false
}

// AdminCount returns how many members hold the admin role.
func (p *Project) AdminCount() int {
	n := 0
	for _, m := range p.Members {
		if m.Role == RoleAdmin {
			n++
		}
	}
	return n
}
