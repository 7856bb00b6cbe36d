package jwttoken

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "guildgate/pkg/domain-errors"
)

// Service mints and validates the locally-signed bearer credential. Claims are
// deliberately minimal: subject (account ID) and expiry. The credential is
// stateless; there is no revocation list and logout only clears client copies.
type Service struct {
	signingKey []byte
	logger     *slog.Logger
}

func NewService(signingKey string, logger *slog.Logger) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		logger:     logger,
	}
}

// Mint builds an HS256-signed credential for the account, expiring at
// now+lifetime. Time is a parameter so tests control the clock.
func (s *Service) Mint(accountID string, now time.Time, lifetime time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountID,
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		IssuedAt:  jwt.NewNumericDate(now),
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInternal, "failed to sign credential")
	}
	return signed, nil
}

// Validate verifies signature, algorithm, and expiry, returning the subject.
// Tokens declaring any algorithm other than HS256 are rejected outright;
// algorithm negotiation is how key-confusion attacks start. Every failure maps
// to the same unauthorized error so callers cannot distinguish an expired
// token from a mis-signed one.
func (s *Service) Validate(tokenString string, now time.Time) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, jwt.ErrTokenUnverifiable
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Debug("credential rejected: expired")
		} else {
			s.logger.Debug("credential rejected", "error", err)
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
	}
	return claims.Subject, nil
}
