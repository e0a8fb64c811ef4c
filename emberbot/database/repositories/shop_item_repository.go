package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/uptrace/bun"
)

type ShopItemRepository interface {
	GetByID(ctx context.Context, id string) (*models.ShopItem, error)
	List(ctx context.Context) ([]*models.ShopItem, error)

	// TakeStock atomically reserves quantity units of stock. Returns false
	// when the remaining stock does not cover the quantity. Unlimited items
	// always succeed.
	TakeStock(ctx context.Context, id string, quantity int) (bool, error)
	RecordPurchase(ctx context.Context, id string, quantity int) error
}

type shopItemRepository struct {
	db *bun.DB
}

func NewShopItemRepository(db *bun.DB) ShopItemRepository {
	return &shopItemRepository{db: db}
}

func (r *shopItemRepository) GetByID(ctx context.Context, id string) (*models.ShopItem, error) {
	item := new(models.ShopItem)
	err := r.db.NewSelect().
		Model(item).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *shopItemRepository) List(ctx context.Context) ([]*models.ShopItem, error) {
	var items []*models.ShopItem
	err := r.db.NewSelect().
		Model(&items).
		Order("price ASC").
		Scan(ctx)
	return items, err
}

func (r *shopItemRepository) TakeStock(ctx context.Context, id string, quantity int) (bool, error) {
	var remaining int
	err := r.db.NewUpdate().
		Model((*models.ShopItem)(nil)).
		Set("stock = stock - ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("stock >= ?", quantity).
		Returning("stock").
		Scan(ctx, &remaining)
	if errors.Is(err, sql.ErrNoRows) {
		// Either out of stock or unlimited; unlimited rows carry stock < 0.
		item, gerr := r.GetByID(ctx, id)
		if gerr != nil {
			return false, gerr
		}
		return item.Unlimited(), nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *shopItemRepository) RecordPurchase(ctx context.Context, id string, quantity int) error {
	_, err := r.db.NewUpdate().
		Model((*models.ShopItem)(nil)).
		Set("purchases = purchases + ?", quantity).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
