package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
)

// IdentityConfig describes how provider tokens are verified.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// IdentityService turns a bearer token into the authenticated actor.
type IdentityService struct {
	config IdentityConfig
	now    func() time.Time
}

// NewIdentityService constructs IdentityService.
func NewIdentityService(config IdentityConfig) (*IdentityService, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("jwt secret missing")
	}
	return &IdentityService{config: config, now: time.Now}, nil
}

// Verify validates an HS256 access token and normalises its role claim.
func (s *IdentityService) Verify(tokenString string) (authz.Actor, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.config.Leeway),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		options = append(options, jwt.WithAudience(s.config.Audience))
	}

	claims := &models.IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, options...)
	if err != nil {
		return authz.Actor{}, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if !token.Valid {
		return authz.Actor{}, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return authz.Actor{}, appErrors.Clone(appErrors.ErrUnauthorized, "token has no subject")
	}
	role, err := authz.ParseRole(claims.Role)
	if err != nil {
		return authz.Actor{}, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "token carries an unknown role")
	}
	return authz.Actor{SubjectID: subject, Role: role}, nil
}
