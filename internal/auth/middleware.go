package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"audit-portal/portal-backend/pkg/apperr"
)

const userContextKey = "auth.user"

// User is the authenticated caller
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Claims are the JWT claims issued by the identity provider
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", apperr.ErrUnauthorized)

// Verifier checks HS256 access tokens signed with a shared secret
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses a token and returns its user
func (v *Verifier) Verify(raw string) (User, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return User{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	return User{ID: id, Email: claims.Email}, nil
}

// Issue signs a token for user, used by the CLI and tests
func (v *Verifier) Issue(user User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid bearer token. Browsers cannot
// set headers on WebSocket upgrades, so access_token in the query is also
// accepted.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("access_token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		user, err := v.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		SetUser(c, user)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SetUser stores the caller on the request context
func SetUser(c *gin.Context, user User) {
	c.Set(userContextKey, user)
}

// CurrentUser returns the caller set by Middleware
func CurrentUser(c *gin.Context) (User, error) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return User{}, errors.New("no authenticated user on request")
	}
	user, ok := v.(User)
	if !ok {
		return User{}, errors.New("no authenticated user on request")
	}
	return user, nil
}

// MustUser returns the caller or aborts with 401
func MustUser(c *gin.Context) (User, bool) {
	user, err := CurrentUser(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return User{}, false
	}
	return user, true
}
