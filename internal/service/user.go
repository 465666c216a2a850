package service

import (
	"context"
	"errors"
	"net/netip"

	"go.uber.org/zap"

	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/model"
	"github.com/w78flezeex/Billing-for-pterodactly-sub002/internal/repository"
)

type UserService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewUserService(store repository.Store, logger *zap.Logger) *UserService {
	return &UserService{store: store, logger: logger.Named("user")}
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// GetUserByTelegramID resolves a panel account linked to a Telegram chat.
func (s *UserService) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// TrackIP records that userID was seen behind ip. Unparsable addresses
// are ignored.
func (s *UserService) TrackIP(ctx context.Context, userID int64, ip string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil
	}
	return s.store.TouchUserIP(ctx, userID, addr.Unmap().String())
}
