package store

import (
	"context"

	"github.com/DomeLiquid/payin/core"
)

func (s *Store) CreateSub(ctx context.Context, sub *core.Sub) error {
	return s.db.WithContext(ctx).Create(sub).Error
}

func (s *Store) GetSubByName(ctx context.Context, name string) (*core.Sub, error) {
	var sub core.Sub
	if err := s.db.WithContext(ctx).Where("name = ?", name).Take(&sub).Error; err != nil {
		return nil, notFound(err, core.ErrSubNotFound)
	}
	return &sub, nil
}

func (s *Store) ListSubsByNames(ctx context.Context, names []string) ([]*core.Sub, error) {
	var subs []*core.Sub
	if len(names) == 0 {
		return subs, nil
	}
	err := s.db.WithContext(ctx).Where("name IN ?", names).Find(&subs).Error
	return subs, err
}
