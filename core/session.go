package core

import (
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

var ErrNoSession = errors.New("no session token")

// Claims represents the authorization claims the school API puts in its JWTs.
type Claims struct {
	jwt.StandardClaims
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	SchoolID string   `json:"school_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Session is the operator's authenticated context: who is acting, on behalf of which school.
// It is passed explicitly to every component that needs it.
type Session struct {
	UserID   string   `json:"user_id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	SchoolID string   `json:"school_id"`
	Roles    []string `json:"roles"`
	Token    string   `json:"-"`
}

// ParseSession reads the session out of a bearer token.
// The signature is not verified here: the school API verifies it on every call.
func ParseSession(token string) (Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Session{}, ErrNoSession
	}

	claims := new(Claims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return Session{}, errors.Wrap(err, "parsing session token")
	}
	return Session{
		UserID:   claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		SchoolID: claims.SchoolID,
		Roles:    claims.Roles,
		Token:    token,
	}, nil
}

// HasRole reports whether the session carries the given role.
func (s Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
