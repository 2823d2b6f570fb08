package models

import (
	"errors"
	"strings"
)

// Role represents an account role.
type Role string

const (
	// RolePerson is the fallback role; it is never persisted on its own.
	RolePerson Role = "person"
	RoleUser   Role = "user"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

// Partition names in the node store, one per persisted role.
const (
	PartitionUsers  = "users"
	PartitionOwners = "owners"
	PartitionAdmins = "admins"
)

// RoleInfo is the static data attached to a role.
type RoleInfo struct {
	Partition string
	Label     string
}

var roleTable = map[Role]RoleInfo{
	RoleUser:  {Partition: PartitionUsers, Label: "Traveller"},
	RoleOwner: {Partition: PartitionOwners, Label: "Property owner"},
	RoleAdmin: {Partition: PartitionAdmins, Label: "Administrator"},
}

// Info returns the partition and label for r. Unknown roles, including
// RolePerson, get the users partition.
func (r Role) Info() RoleInfo {
	if info, ok := roleTable[r]; ok {
		return info
	}
	return RoleInfo{Partition: PartitionUsers, Label: "Traveller"}
}

// ParseRole returns the role named s, or RolePerson when s is not a known role.
func ParseRole(s string) Role {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := roleTable[r]; ok {
		return r
	}
	return RolePerson
}

// SignupRoles are the roles a visitor may pick when registering.
var SignupRoles = []Role{RoleUser, RoleOwner}

// ErrIncompletePerson is returned by NewPerson when a required field is empty.
var ErrIncompletePerson = errors.New("user id, display name and email are required")

// Person is any account, whatever its role.
type Person struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// PersonRecord is the stored shape of a Person under <partition>/<user_id>.
type PersonRecord struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// NewPerson validates and builds a Person.
func NewPerson(userID, displayName, email string, role Role) (*Person, error) {
	userID, displayName, email = strings.TrimSpace(userID), strings.TrimSpace(displayName), strings.TrimSpace(email)
	if userID == "" || displayName == "" || email == "" {
		return nil, ErrIncompletePerson
	}
	return &Person{UserID: userID, DisplayName: displayName, Email: email, Role: role}, nil
}

// Partition is the node store partition holding this person's record.
func (p *Person) Partition() string {
	return p.Role.Info().Partition
}

// ToRecord converts the person to its stored shape.
func (p *Person) ToRecord() PersonRecord {
	return PersonRecord{DisplayName: p.DisplayName, Email: p.Email, Role: p.Role}
}

// PersonFromRecord rebuilds a Person from a stored record. A record without a
// role takes the role of the partition it was read from.
func PersonFromRecord(userID string, rec PersonRecord, fallback Role) Person {
	role := rec.Role
	if role == "" {
		role = fallback
	}
	return Person{UserID: userID, DisplayName: rec.DisplayName, Email: rec.Email, Role: role}
}
