package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	kitchendomain "github.com/matbakhapp/matbakh/internal/kitchen/domain"
	"github.com/matbakhapp/matbakh/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrKitchenNotFound = errors.New("kitchen_not_found")

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo repository.Repository[kitchendomain.Kitchen]
}

func NewService(p ServiceParam) kitchendomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("kitchen.service"),
		repo: repository.ProvideStore[kitchendomain.Kitchen](p.DB),
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (kitchendomain.Kitchen, error) {
	kitchen, err := s.repo.FindOne(ctx, &kitchendomain.Kitchen{ID: id})
	if err != nil {
		return kitchendomain.Kitchen{}, err
	}
	if kitchen == nil {
		return kitchendomain.Kitchen{}, ErrKitchenNotFound
	}
	return *kitchen, nil
}

func (s *Service) Suspend(ctx context.Context, id snowflake.ID, reason string) error {
	result := s.db.WithContext(ctx).
		Model(&kitchendomain.Kitchen{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            kitchendomain.KitchenStatusSuspended,
			"suspension_reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrKitchenNotFound
	}
	s.log.Info("kitchen suspended",
		zap.String("kitchen_id", id.String()),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) UnsuspendIf(ctx context.Context, id snowflake.ID, reason string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&kitchendomain.Kitchen{}).
		Where("id = ? AND status = ? AND suspension_reason = ?",
			id, kitchendomain.KitchenStatusSuspended, reason).
		Updates(map[string]any{
			"status":            kitchendomain.KitchenStatusActive,
			"suspension_reason": "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	s.log.Info("kitchen unsuspended",
		zap.String("kitchen_id", id.String()),
		zap.String("reason", reason),
	)
	return true, nil
}
