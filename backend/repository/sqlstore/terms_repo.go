package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
)

// TermsRepo оферта 接受记录仓储
type TermsRepo struct {
	store *Store
}

func NewTermsRepo(store *Store) *TermsRepo {
	return &TermsRepo{store: store}
}

// Accept 记录（或刷新）接受时间
func (r *TermsRepo) Accept(ctx context.Context, telegramID int64) error {
	row := termsRow{TelegramID: telegramID, AcceptedAt: time.Now().UTC()}
	return r.store.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (r *TermsRepo) IsAccepted(ctx context.Context, telegramID int64) (bool, error) {
	var n int64
	err := r.store.db.WithContext(ctx).Model(&termsRow{}).Where("telegram_id = ?", telegramID).Count(&n).Error
	return n > 0, err
}
