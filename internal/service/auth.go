package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nexusholdings/nexus/jwt"
)

var tracer = otel.Tracer("service")

type AuthService struct {
	secret string
	issuer string
	ttl    time.Duration
}

func NewAuthService(secret, issuer string, ttl time.Duration) *AuthService {
	return &AuthService{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
	}
}

type AuthResult struct {
	UserID string
}

func (s *AuthService) AuthJwt(ctx context.Context, token string) (*AuthResult, error) {
	_, span := tracer.Start(ctx, "Auth.Service.AuthJwt")
	defer span.End()

	claims, err := jwt.Validate(token, s.secret)
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt validation failed"))
		return nil, err
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		err := fmt.Errorf("jwt issuer mismatch: expected %s, got %s", s.issuer, claims.Issuer)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("UserId", claims.Subject))
	return &AuthResult{UserID: claims.Subject}, nil
}

// IssueToken signs a session token for userID.
func (s *AuthService) IssueToken(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	return jwt.Create(jwt.NewClaims(userID, s.issuer, s.ttl), s.secret)
}
