package store

import (
	"context"
	"time"

	"github.com/DomeLiquid/payin/core"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements core.Store on gorm. A Store returned to a Transaction callback
// is bound to that transaction.
type Store struct {
	db *gorm.DB
}

var _ core.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Transaction(ctx context.Context, fn func(tx core.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func Models() []any {
	return []any{
		&core.User{},
		&core.Sub{},
		&core.Item{},
		&core.ItemForward{},
		&core.PollOption{},
		&core.PollVote{},
		&core.Upload{},
		&core.Wallet{},
		&core.PayIn{},
		&core.PayInCustodialToken{},
		&core.PayOutCustodialToken{},
		&core.PayOutBolt11{},
		&core.PayInBolt11{},
		&core.PessimisticEnv{},
		&core.ItemPayIn{},
		&core.SubPayIn{},
		&core.Notification{},
	}
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	return errors.Wrap(db.WithContext(ctx).AutoMigrate(Models()...), "auto migrate")
}

// Seed creates the sentinel users PayIns may reference.
func Seed(ctx context.Context, db *gorm.DB) error {
	sentinels := map[string]uuid.UUID{
		"anon":    core.AnonUserId,
		"rewards": core.RewardsUserId,
	}
	for name, id := range sentinels {
		user := core.User{
			Id:        id,
			Name:      name,
			Msats:     decimal.Zero,
			Mcredits:  decimal.Zero,
			CreatedAt: time.Now().Unix(),
			UpdatedAt: time.Now().Unix(),
		}
		err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error
		if err != nil {
			return errors.Wrapf(err, "seed %s user", name)
		}
	}
	return nil
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
