// Package securelink issues and verifies signed deep-link tokens. A link
// token lets an external recipient open one project detail view without a
// session, for as long as the token lives.
package securelink

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LinkType is the only resource type current links grant access to.
const LinkType = "project_detail"

// Token lifetimes.
const (
	ShortLivedExpiry = 1 * time.Hour
	LongLivedExpiry  = 24 * time.Hour
)

// Verification errors.
var (
	ErrTokenExpired = errors.New("securelink: token expired")
	ErrTokenInvalid = errors.New("securelink: token invalid")
	ErrWrongType    = errors.New("securelink: token is not a project detail link")
)

// Claims are the payload carried in a link token.
type Claims struct {
	UserID       int64  `json:"user_id"`
	ProjectID    int64  `json:"project_id"`
	WechatUserID string `json:"wechat_user_id,omitempty"`
	Type         string `json:"type"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies link tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer creates an Issuer. The secret must be non-empty.
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("securelink: empty signing secret")
	}
	return &Issuer{secret: []byte(secret), now: time.Now}, nil
}

// Generate issues a link token for the given user and project. longLived
// selects the 24 hour expiry instead of the 1 hour default.
func (i *Issuer) Generate(userID, projectID int64, wechatUserID string, longLived bool) (string, error) {
	expiry := ShortLivedExpiry
	if longLived {
		expiry = LongLivedExpiry
	}
	now := i.now()
	claims := Claims{
		UserID:       userID,
		ProjectID:    projectID,
		WechatUserID: wechatUserID,
		Type:         LinkType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("securelink: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a link token, returning its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != LinkType {
		return nil, ErrWrongType
	}
	return claims, nil
}
