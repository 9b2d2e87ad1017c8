package models

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims are the access token claims issued by the identity provider.
// The subject claim carries the caller id and Role the raw role claim.
type IdentityClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
