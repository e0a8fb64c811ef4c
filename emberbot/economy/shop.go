package economy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

// Purchase failure reasons.
const (
	ReasonUnknownItem  = "unknown_item"
	ReasonOutOfStock   = "out_of_stock"
	ReasonLevelTooLow  = "level_too_low"
	ReasonLevelTooHigh = "level_too_high"
	ReasonMissingRole  = "missing_role"
)

// PurchaseResult reports a shop purchase outcome.
type PurchaseResult struct {
	Success    bool
	Reason     string
	ItemName   string
	Quantity   int
	BasePrice  int64
	FinalPrice int64
	Discount   int64
	Required   int64
	NewBalance int64
}

// Shop sells catalog items against the ledger. Eligibility and stock are
// checked before any mutation; stock and purchase stats move only after a
// successful debit.
type Shop struct {
	items     repositories.ShopItemRepository
	users     repositories.UserProgressRepository
	ledger    *Ledger
	directory interfaces.GuildDirectory
	clock     clock.Clock
}

func NewShop(items repositories.ShopItemRepository, users repositories.UserProgressRepository, ledger *Ledger, directory interfaces.GuildDirectory, clk clock.Clock) *Shop {
	return &Shop{
		items:     items,
		users:     users,
		ledger:    ledger,
		directory: directory,
		clock:     clk,
	}
}

// PurchaseItem buys quantity units of an item for the user.
func (s *Shop) PurchaseItem(ctx context.Context, guildID, userID, itemID string, quantity int) PurchaseResult {
	if quantity <= 0 {
		return PurchaseResult{Reason: ReasonInvalidAmount}
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return PurchaseResult{Reason: ReasonUnknownItem}
	}

	if !item.Unlimited() && item.Stock < quantity {
		return PurchaseResult{Reason: ReasonOutOfStock, ItemName: item.Name}
	}

	user, err := s.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		return PurchaseResult{Reason: ReasonInternal}
	}

	if item.MinLevel > 0 && user.Level < item.MinLevel {
		return PurchaseResult{Reason: ReasonLevelTooLow, ItemName: item.Name, Required: int64(item.MinLevel)}
	}
	if item.MaxLevel > 0 && user.Level > item.MaxLevel {
		return PurchaseResult{Reason: ReasonLevelTooHigh, ItemName: item.Name, Required: int64(item.MaxLevel)}
	}
	if item.RequiredRoleID != "" {
		has, err := s.directory.HasRole(ctx, guildID, userID, item.RequiredRoleID)
		if err != nil || !has {
			return PurchaseResult{Reason: ReasonMissingRole, ItemName: item.Name}
		}
	}

	basePrice := item.Price * int64(quantity)
	var discount int64
	if d := s.ledger.registry.ActiveSaleDiscount(guildID); d > 0 {
		discount = int64(math.Floor(float64(basePrice) * d))
	}
	finalPrice := basePrice - discount

	take := s.ledger.TakeCurrency(ctx, guildID, userID, item.Currency, finalPrice, "purchase:"+itemID)
	if !take.Success {
		return PurchaseResult{
			Reason:     take.Reason,
			ItemName:   item.Name,
			BasePrice:  basePrice,
			FinalPrice: finalPrice,
			Discount:   discount,
			Required:   take.Required,
		}
	}

	if !item.Unlimited() {
		ok, err := s.items.TakeStock(ctx, itemID, quantity)
		if err != nil || !ok {
			// Lost the race on the last units; refund the debit.
			if _, rerr := s.users.AddBalance(ctx, guildID, userID, item.Currency, finalPrice); rerr != nil {
				slog.Error("Purchase refund failed",
					slog.String("type", "error"),
					slog.String("user_id", userID),
					slog.String("item_id", itemID),
					slog.Any("error", rerr))
			}
			return PurchaseResult{Reason: ReasonOutOfStock, ItemName: item.Name}
		}
	}

	if err := s.items.RecordPurchase(ctx, itemID, quantity); err != nil {
		slog.Error("Failed to record purchase stats",
			slog.String("type", "db"),
			slog.String("item_id", itemID),
			slog.Any("error", err))
	}

	if item.BoostMultiplier > 1 && item.BoostHours > 0 {
		until := s.clock.Now().Add(time.Duration(item.BoostHours) * time.Hour)
		if err := s.users.SetBoost(ctx, guildID, userID, item.BoostMultiplier, until); err != nil {
			slog.Error("Failed to apply purchased boost",
				slog.String("user_id", userID),
				slog.String("item_id", itemID),
				slog.Any("error", err))
		}
	} else {
		for i := 0; i < quantity; i++ {
			if err := s.users.AddInventory(ctx, guildID, userID, itemID); err != nil {
				slog.Error("Failed to add item to inventory",
					slog.String("user_id", userID),
					slog.String("item_id", itemID),
					slog.Any("error", err))
				break
			}
		}
	}

	return PurchaseResult{
		Success:    true,
		ItemName:   item.Name,
		Quantity:   quantity,
		BasePrice:  basePrice,
		FinalPrice: finalPrice,
		Discount:   discount,
		NewBalance: take.NewBalance,
	}
}
