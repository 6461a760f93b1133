package jwt

import (
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v4"
)

// Claims identifies the session holder by Subject.
type Claims struct {
	gojwt.RegisteredClaims
}

// NewClaims builds claims for subject valid for ttl from now.
func NewClaims(subject, issuer string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// Create signs claims with HS256.
func Create(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("empty signing secret")
	}
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Validate checks the signature, the algorithm and the time based claims.
func Validate(token, secret string) (*Claims, error) {
	var claims Claims
	parsed, err := gojwt.ParseWithClaims(token, &claims, func(t *gojwt.Token) (any, error) {
		if t.Method != gojwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unsupported signing method %s", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &claims, nil
}
