package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is stamped into issued tokens and required on parse.
const tokenIssuer = "memberships"

// ContractorClaims scopes a request to one contractor.
type ContractorClaims struct {
	ContractorID string `json:"contractor_id"`
	jwt.RegisteredClaims
}

// IssueContractorToken signs an HS256 token for a contractor. The account
// service normally issues these; this exists for tooling and tests.
func IssueContractorToken(secret, contractorID string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt: empty secret")
	}
	contractorID = strings.TrimSpace(contractorID)
	if contractorID == "" {
		return "", errors.New("jwt: empty contractor id")
	}
	claims := ContractorClaims{
		ContractorID: contractorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   contractorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("jwt: sign: %w", errSign)
	}
	return signed, nil
}

// ParseContractorToken verifies an HS256 token and returns its claims.
func ParseContractorToken(secret, token string) (*ContractorClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt: empty secret")
	}
	claims := &ContractorClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if errParse != nil {
		return nil, fmt.Errorf("jwt: parse: %w", errParse)
	}
	if !parsed.Valid {
		return nil, errors.New("jwt: invalid token")
	}
	if strings.TrimSpace(claims.ContractorID) == "" {
		return nil, errors.New("jwt: missing contractor_id claim")
	}
	return claims, nil
}
