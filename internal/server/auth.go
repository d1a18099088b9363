package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pthm/lattice"
)

const sessionKey = "lattice.session"

// Claims are the JWT claims a session is built from. Subject is the user id.
// Role and Roles are merged.
type Claims struct {
	Role       string         `json:"role,omitempty"`
	Roles      []string       `json:"roles,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	jwt.RegisteredClaims
}

// Session converts the claims to a lattice session.
func (c Claims) Session() lattice.Session {
	s := lattice.Session{UserID: c.Subject, Properties: c.Properties}
	if c.Role != "" {
		s.Roles = append(s.Roles, c.Role)
	}
	for _, r := range c.Roles {
		if !s.HasRole(r) {
			s.Roles = append(s.Roles, r)
		}
	}
	return s
}

// IssueToken signs an HS256 token for s that expires after ttl.
func IssueToken(secret []byte, s lattice.Session, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Roles:      s.Roles,
		Properties: s.Properties,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates an HS256 token and returns the session it carries.
func ParseToken(secret []byte, tokenString string) (lattice.Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return lattice.Session{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return lattice.Session{}, errors.New("invalid token")
	}
	s := claims.Session()
	if err := s.Validate(); err != nil {
		return lattice.Session{}, err
	}
	return s, nil
}

// sessionMiddleware resolves the request session. Requests without an
// Authorization header are anonymous; a malformed or invalid token is
// rejected with 401.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(sessionKey, lattice.Anonymous())
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortError(c, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		session, err := ParseToken(s.secret, parts[1])
		if err != nil {
			abortError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) lattice.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(lattice.Session); ok {
			return s
		}
	}
	return lattice.Anonymous()
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
