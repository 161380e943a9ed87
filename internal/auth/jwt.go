package auth

import (
	"errors"
	"fmt"
	"strconv"

	"clinic-service/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by bearer tokens issued by the identity service
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for tokens signed with secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses a token and returns the principal it names.
func (v *Verifier) Verify(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token: %w", apperr.ErrUnauthenticated)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return Principal{}, fmt.Errorf("invalid token claims: %w", apperr.ErrUnauthenticated)
	}

	id := claims.UserID
	if id == 0 && claims.Subject != "" {
		id, err = strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return Principal{}, fmt.Errorf("invalid subject %q: %w", claims.Subject, apperr.ErrUnauthenticated)
		}
	}
	if id <= 0 {
		return Principal{}, fmt.Errorf("token has no principal id: %w", apperr.ErrUnauthenticated)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Principal{}, err
	}

	return Principal{ID: id, Role: role}, nil
}
