package utils // package utils provides helpers for token creation

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role claim required by the admin routes.
const RoleAdmin = "ADMIN"

// SignedToken is a signed JWT along with its expiry.
type SignedToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for subject with the given
// role.  Admin login lives outside this service; operators mint tokens with
// `bookingctl admin-token`.  The JWT carries sub, role, exp and iat.
func NewAccessToken(secret, subject, role string, ttlMin int) (SignedToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}
