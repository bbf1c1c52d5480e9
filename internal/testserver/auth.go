package testserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid token")

type claims struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	// Generation ties access tokens to the server's current generation so
	// tests can expire every issued token at once.
	Generation int `json:"gen"`
	jwt.RegisteredClaims
}

func (s *Server) issue(u *user, tokenType string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	now := time.Now()
	c := claims{
		UserID:     u.ID,
		Username:   u.Name,
		TokenType:  tokenType,
		Generation: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Server) parse(raw, tokenType string) (*claims, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || c.TokenType != tokenType {
		return nil, errInvalidToken
	}
	if tokenType == "access" {
		s.mu.Lock()
		current := s.generation
		s.mu.Unlock()
		if c.Generation != current {
			return nil, errInvalidToken
		}
	}
	return &c, nil
}

// authenticate resolves the caller from the access_token cookie.
func (s *Server) authenticate(r *http.Request) (*user, error) {
	ck, err := r.Cookie("access_token")
	if err != nil {
		return nil, errInvalidToken
	}
	c, err := s.parse(ck.Value, "access")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.UserID]
	if !ok {
		return nil, errInvalidToken
	}
	return u, nil
}

func (s *Server) setSession(w http.ResponseWriter, u *user) error {
	access, err := s.issue(u, "access", time.Hour)
	if err != nil {
		return err
	}
	refresh, err := s.issue(u, "refresh", 7*24*time.Hour)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{Name: "access_token", Value: access, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: refresh, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "user_id", Value: u.ID, Path: "/"})
	return nil
}
