// Package domain contains core concepts of the messaging system.
// This file defines the User identity consumed from the platform.
// Messaging treats it as read-only; no runtime, network, or UI logic here.
package domain

type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

// User is the identity supplied by the authentication collaborator.
type User struct {
	ID          string
	DisplayName string
	Role        Role
}
