package jwttoken

import (
	"time"

	"guildgate/internal/platform/middleware"
)

// ServiceAdapter exposes the codec through the middleware-facing validator
// interface, pinning the clock to time.Now for live traffic.
type ServiceAdapter struct {
	service *Service
}

func NewServiceAdapter(service *Service) *ServiceAdapter {
	return &ServiceAdapter{service: service}
}

func (a *ServiceAdapter) ValidateToken(tokenString string) (*middleware.Identity, error) {
	accountID, err := a.service.Validate(tokenString, time.Now())
	if err != nil {
		return nil, err
	}
	return &middleware.Identity{AccountID: accountID}, nil
}
