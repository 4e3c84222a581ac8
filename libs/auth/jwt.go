package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const RoleAdmin = "admin"

// Claims identifies the caller of a schedule-editor request. OwnerID is the
// professional or company whose schedules the token may edit.
type Claims struct {
	OwnerID string `json:"owner_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// CanEdit reports whether the claims allow editing ownerID's schedules.
func (c *Claims) CanEdit(ownerID string) bool {
	if c == nil {
		return false
	}
	if c.Role == RoleAdmin {
		return true
	}
	return ownerID != "" && c.OwnerID == ownerID
}

// NewClaims builds claims for subject/owner valid for ttl from now.
func NewClaims(subject, ownerID, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		OwnerID: ownerID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func SignRS256(claims Claims, key *rsa.PrivateKey, keyID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if keyID != "" {
		token.Header["kid"] = keyID
	}
	return token.SignedString(key)
}

// Verifier validates bearer tokens. HS256 tokens are checked against Secret,
// RS256 tokens against the key named by their kid in JWKS.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
}

func (v Verifier) Enabled() bool {
	return v.Secret != "" || v.JWKS != nil
}

func (v Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	var methods []string
	if v.Secret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if v.JWKS != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no verification key configured", ErrInvalidToken)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.Alg() {
	case jwt.SigningMethodHS256.Alg():
		return []byte(v.Secret), nil
	case jwt.SigningMethodRS256.Alg():
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.JWKS.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
