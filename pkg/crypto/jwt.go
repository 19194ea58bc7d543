package crypto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAccessTokenInvalid = errors.New("invalid access token")
)

const DefaultIssuer = "raices-vivas"

// AccessClaims ties a short-lived access token to a server session.
type AccessClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// AccessTokenIssuer signs HS256 access tokens with the app secret.
type AccessTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewAccessTokenIssuer(secret string, ttl time.Duration, issuer string) *AccessTokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &AccessTokenIssuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// Issue never outlives the session it belongs to.
func (i *AccessTokenIssuer) Issue(userID, sessionID string, sessionExpiry time.Time) (string, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	if !sessionExpiry.IsZero() && sessionExpiry.Before(exp) {
		exp = sessionExpiry
	}

	claims := AccessClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Parse validates signature, issuer and expiry.
func (i *AccessTokenIssuer) Parse(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccessTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrAccessTokenInvalid
	}
	return claims, nil
}

// LooksLikeJWT reports whether a credential has the three-part JWT shape.
// Opaque session tokens are base64url without dots.
func LooksLikeJWT(credential string) bool {
	return strings.Count(credential, ".") == 2
}
