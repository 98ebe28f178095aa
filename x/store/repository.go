// Package store persists the client configuration: servers, their linked
// accounts, the nested timeline column structure, and settings.
package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/petrelapp/petrel/core"
)

// Repository is the storage access layer. Timeline rows are always read
// and rewritten as a whole set; the service layer owns the nested
// structure and the renumbering invariant.
type Repository interface {
	ListServers(ctx context.Context) ([]core.Server, error)
	GetServer(ctx context.Context, id uint) (core.Server, error)
	CreateServer(ctx context.Context, server core.Server) (core.Server, error)
	UpdateServer(ctx context.Context, server core.Server) error
	DeleteServer(ctx context.Context, id uint) error

	GetAccount(ctx context.Context, id uint) (core.Account, error)
	CreateAccount(ctx context.Context, account core.Account) (core.Account, error)
	DeleteAccount(ctx context.Context, id uint) error

	ListTimelines(ctx context.Context) ([]core.Timeline, error)
	ReplaceTimelines(ctx context.Context, timelines []core.Timeline) error

	GetSetting(ctx context.Context, key string) (string, error)
	UpsertSetting(ctx context.Context, setting core.Setting) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new store repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListServers(ctx context.Context) ([]core.Server, error) {
	var servers []core.Server
	err := r.db.WithContext(ctx).Order("id").Find(&servers).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list servers")
	}
	return servers, nil
}

func (r *repository) GetServer(ctx context.Context, id uint) (core.Server, error) {
	var server core.Server
	err := r.db.WithContext(ctx).First(&server, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Server{}, core.NewErrorNotFound()
		}
		return core.Server{}, errors.Wrap(err, "failed to get server")
	}
	return server, nil
}

func (r *repository) CreateServer(ctx context.Context, server core.Server) (core.Server, error) {
	err := r.db.WithContext(ctx).Create(&server).Error
	if err != nil {
		return core.Server{}, errors.Wrap(err, "failed to create server")
	}
	return server, nil
}

func (r *repository) UpdateServer(ctx context.Context, server core.Server) error {
	err := r.db.WithContext(ctx).Save(&server).Error
	if err != nil {
		return errors.Wrap(err, "failed to update server")
	}
	return nil
}

func (r *repository) DeleteServer(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Delete(&core.Server{}, "id = ?", id).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete server")
	}
	return nil
}

func (r *repository) GetAccount(ctx context.Context, id uint) (core.Account, error) {
	var account core.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Account{}, core.NewErrorNotFound()
		}
		return core.Account{}, errors.Wrap(err, "failed to get account")
	}
	return account, nil
}

func (r *repository) CreateAccount(ctx context.Context, account core.Account) (core.Account, error) {
	err := r.db.WithContext(ctx).Create(&account).Error
	if err != nil {
		return core.Account{}, errors.Wrap(err, "failed to create account")
	}
	return account, nil
}

func (r *repository) DeleteAccount(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Delete(&core.Account{}, "id = ?", id).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete account")
	}
	return nil
}

func (r *repository) ListTimelines(ctx context.Context) ([]core.Timeline, error) {
	var timelines []core.Timeline
	err := r.db.WithContext(ctx).Order("wrapper, position").Find(&timelines).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list timelines")
	}
	return timelines, nil
}

// ReplaceTimelines rewrites the whole timeline table in one transaction.
// Ids are caller-assigned because they are renumbered densely on every
// structural edit.
func (r *repository) ReplaceTimelines(ctx context.Context, timelines []core.Timeline) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("1 = 1").Delete(&core.Timeline{}).Error
		if err != nil {
			return err
		}
		if len(timelines) == 0 {
			return nil
		}
		return tx.Create(&timelines).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to replace timelines")
	}
	return nil
}

func (r *repository) GetSetting(ctx context.Context, key string) (string, error) {
	var setting core.Setting
	err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", core.NewErrorNotFound()
		}
		return "", errors.Wrap(err, "failed to get setting")
	}
	return setting.Value, nil
}

func (r *repository) UpsertSetting(ctx context.Context, setting core.Setting) error {
	err := r.db.WithContext(ctx).Save(&setting).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert setting")
	}
	return nil
}
