package domain

import "time"

// ActorType differentiates partner and operator credentials.
type ActorType string

const (
	ActorTypePartner  ActorType = "PARTNER"
	ActorTypeOperator ActorType = "OPERATOR"
	ActorTypeSystem   ActorType = "SYSTEM"
)

// UserStatus represents lifecycle states for a partner account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is a partner (host) account that submits documents for itself and its properties.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OperatorRole enumerates platform console roles.
type OperatorRole string

const (
	OperatorRoleReviewer OperatorRole = "REVIEWER"
	OperatorRoleAdmin    OperatorRole = "ADMIN"
)

// Operator is a platform-admin console account that reviews submissions.
type Operator struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         OperatorRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
