package models

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the platform roles carried in access tokens.
type UserRole string

const (
	RoleResident       UserRole = "resident"
	RoleMunicipalAdmin UserRole = "municipal_admin"
	RoleAdmin          UserRole = "admin"
	RoleSuperAdmin     UserRole = "superadmin"
)

// IsStaff reports whether the role may operate the claim desk.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleMunicipalAdmin, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// JWTClaims is the access token payload minted by the MunLink auth service.
// The subject is the numeric user id.
type JWTClaims struct {
	Role           UserRole `json:"role"`
	MunicipalityID *int64   `json:"municipality_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *JWTClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return id, nil
}

// Actor is the authenticated caller of a service operation together with the
// request metadata recorded in audit rows.
type Actor struct {
	UserID         int64
	Role           UserRole
	MunicipalityID *int64
	IPAddress      string
	UserAgent      string
}

// CanAccessMunicipality reports whether a staff actor may act on requests of
// municipalityID. Municipal admins are scoped to their own municipality.
func (a Actor) CanAccessMunicipality(municipalityID int64) bool {
	switch a.Role {
	case RoleAdmin, RoleSuperAdmin:
		return true
	case RoleMunicipalAdmin:
		return a.MunicipalityID != nil && *a.MunicipalityID == municipalityID
	}
	return false
}
