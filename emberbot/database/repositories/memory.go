package repositories

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/mirabeldev/ember/emberbot/database/models"
)

// In-memory implementations of the repository interfaces. The engines are
// tested against these so no test needs a running Postgres; semantics mirror
// the SQL implementations, including conditional debits and upserts.

// MemoryUserStore is an in-memory UserProgressRepository.
type MemoryUserStore struct {
	mu     sync.Mutex
	users  map[string]*models.UserProgress
	nextID int64

	// AddBalanceFail injects an error for AddBalance calls on a user id.
	AddBalanceFail map[string]error
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*models.UserProgress)}
}

func userKey(guildID, userID string) string {
	return guildID + ":" + userID
}

// Seed inserts a prepared row, assigning an id when missing.
func (s *MemoryUserStore) Seed(user *models.UserProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == 0 {
		s.nextID++
		user.ID = s.nextID
	}
	s.users[userKey(user.GuildID, user.UserID)] = user
}

func (s *MemoryUserStore) get(guildID, userID string) (*models.UserProgress, bool) {
	u, ok := s.users[userKey(guildID, userID)]
	return u, ok
}

func (s *MemoryUserStore) Get(ctx context.Context, guildID, userID string) (*models.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) GetOrCreate(ctx context.Context, guildID, userID string) (*models.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		s.nextID++
		now := time.Now()
		u = &models.UserProgress{
			ID:              s.nextID,
			GuildID:         guildID,
			UserID:          userID,
			BoostMultiplier: 1,
			Perks:           []string{},
			Inventory:       []string{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		s.users[userKey(guildID, userID)] = u
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) Update(ctx context.Context, user *models.UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[userKey(user.GuildID, user.UserID)] = &cp
	return nil
}

func (s *MemoryUserStore) AddBalance(ctx context.Context, guildID, userID, currency string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.AddBalanceFail[userID]; ok && err != nil {
		return 0, err
	}
	u, ok := s.get(guildID, userID)
	if !ok {
		return 0, sql.ErrNoRows
	}
	switch currency {
	case "coins":
		u.Coins += delta
		return u.Coins, nil
	case "tokens":
		u.Tokens += delta
		return u.Tokens, nil
	}
	return 0, ErrUnknownCurrency
}

func (s *MemoryUserStore) TakeBalance(ctx context.Context, guildID, userID, currency string, amount int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return 0, false, sql.ErrNoRows
	}
	switch currency {
	case "coins":
		if u.Coins < amount {
			return 0, false, nil
		}
		u.Coins -= amount
		return u.Coins, true, nil
	case "tokens":
		if u.Tokens < amount {
			return 0, false, nil
		}
		u.Tokens -= amount
		return u.Tokens, true, nil
	}
	return 0, false, ErrUnknownCurrency
}

func (s *MemoryUserStore) AddXP(ctx context.Context, guildID, userID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return 0, sql.ErrNoRows
	}
	u.XP += delta
	u.TotalXP += delta
	return u.TotalXP, nil
}

func (s *MemoryUserStore) SetLevel(ctx context.Context, guildID, userID string, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.Level = level
	return nil
}

func (s *MemoryUserStore) SetXP(ctx context.Context, guildID, userID string, totalXP int64, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.XP = totalXP
	u.TotalXP = totalXP
	u.Level = level
	return nil
}

func (s *MemoryUserStore) IncrementMessageStats(ctx context.Context, guildID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.MessagesToday++
	u.LastMessageAt = at
	return nil
}

func (s *MemoryUserStore) AddDailyEarned(ctx context.Context, guildID, userID string, xp, coins int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.XPToday += xp
	u.CoinsToday += coins
	return nil
}

func (s *MemoryUserStore) ResetDailyCounters(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		u.MessagesToday = 0
		u.XPToday = 0
		u.CoinsToday = 0
	}
	return nil
}

func (s *MemoryUserStore) AddVoiceMinutes(ctx context.Context, guildID, userID string, minutes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.VoiceMinutes += minutes
	return nil
}

func (s *MemoryUserStore) SetDailyClaim(ctx context.Context, guildID, userID string, streak int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.StreakDays = streak
	u.LastDailyAt = at
	return nil
}

func (s *MemoryUserStore) UpdateRiskProfile(ctx context.Context, user *models.UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(user.GuildID, user.UserID)
	if !ok {
		return sql.ErrNoRows
	}
	u.Heat = user.Heat
	u.Jailed = user.Jailed
	u.JailUntil = user.JailUntil
	u.BannedUntil = user.BannedUntil
	u.LastBlackMarket = user.LastBlackMarket
	u.RiskBets = user.RiskBets
	u.RiskTimesCaught = user.RiskTimesCaught
	u.RiskTimesRobbed = user.RiskTimesRobbed
	return nil
}

func (s *MemoryUserStore) SetBoost(ctx context.Context, guildID, userID string, multiplier float64, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.BoostMultiplier = multiplier
	u.BoostExpiresAt = until
	return nil
}

func (s *MemoryUserStore) AddInventory(ctx context.Context, guildID, userID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.Inventory = append(u.Inventory, itemID)
	return nil
}

func (s *MemoryUserStore) AddPerk(ctx context.Context, guildID, userID, perkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	if !u.HasPerk(perkID) {
		u.Perks = append(u.Perks, perkID)
	}
	return nil
}

func (s *MemoryUserStore) IncrementBoxesOpened(ctx context.Context, guildID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.BoxesOpened++
	return nil
}

func (s *MemoryUserStore) TopByXP(ctx context.Context, guildID string, limit int) ([]*models.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.UserProgress
	for _, u := range s.users {
		if u.GuildID == guildID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalXP > out[j].TotalXP })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryUserStore) Reset(ctx context.Context, guildID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.get(guildID, userID)
	if !ok {
		return sql.ErrNoRows
	}
	u.XP = 0
	u.TotalXP = 0
	u.Level = 0
	u.Coins = 0
	u.Tokens = 0
	u.BoostMultiplier = 1
	u.BoostExpiresAt = time.Time{}
	u.StreakDays = 0
	u.Heat = 0
	u.Jailed = false
	u.JailUntil = time.Time{}
	u.Perks = []string{}
	u.Inventory = []string{}
	return nil
}

// MemoryGuildConfigs is an in-memory GuildConfigRepository. Get returns the
// stored pointer, matching the LRU-backed implementation.
type MemoryGuildConfigs struct {
	mu   sync.Mutex
	cfgs map[string]*models.GuildConfig
}

func NewMemoryGuildConfigs() *MemoryGuildConfigs {
	return &MemoryGuildConfigs{cfgs: make(map[string]*models.GuildConfig)}
}

func (s *MemoryGuildConfigs) Get(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.cfgs[guildID]; ok {
		return cfg, nil
	}
	cfg := models.NewGuildConfig(guildID)
	s.cfgs[guildID] = cfg
	return cfg, nil
}

func (s *MemoryGuildConfigs) Save(ctx context.Context, cfg *models.GuildConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfgs[cfg.GuildID] = cfg
	return nil
}

func (s *MemoryGuildConfigs) Invalidate(guildID string) {}

// MemoryEventStore is an in-memory EventRepository.
type MemoryEventStore struct {
	mu     sync.Mutex
	events []*models.Event
	nextID int64
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

func (s *MemoryEventStore) Create(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.GuildID == event.GuildID && ev.EventID == event.EventID {
			ev.Name = event.Name
			ev.Kind = event.Kind
			ev.Multiplier = event.Multiplier
			ev.Bonus = event.Bonus
			ev.Schedule = event.Schedule
			event.ID = ev.ID
			return nil
		}
	}
	s.nextID++
	event.ID = s.nextID
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryEventStore) GetByEventID(ctx context.Context, guildID, eventID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.GuildID == guildID && ev.EventID == eventID {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *MemoryEventStore) ListByGuild(ctx context.Context, guildID string) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Event
	for _, ev := range s.events {
		if ev.GuildID == guildID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, nil
}

func (s *MemoryEventStore) ListScheduled(ctx context.Context) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Event
	for _, ev := range s.events {
		if !ev.Active && ev.IsScheduled() {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryEventStore) ListActive(ctx context.Context) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Event
	for _, ev := range s.events {
		if ev.Active {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryEventStore) Activate(ctx context.Context, id int64, startsAt, endsAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			ev.Active = true
			ev.StartsAt = startsAt
			ev.EndsAt = endsAt
			ev.TimesTriggered++
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *MemoryEventStore) Deactivate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			ev.Active = false
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *MemoryEventStore) DeactivateExpired(ctx context.Context, now time.Time) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*models.Event
	for _, ev := range s.events {
		if ev.Active && !ev.EndsAt.IsZero() && !ev.EndsAt.After(now) {
			ev.Active = false
			cp := *ev
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

// MemoryShopItems is an in-memory ShopItemRepository.
type MemoryShopItems struct {
	mu    sync.Mutex
	items map[string]*models.ShopItem
}

func NewMemoryShopItems(items ...*models.ShopItem) *MemoryShopItems {
	s := &MemoryShopItems{items: make(map[string]*models.ShopItem)}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *MemoryShopItems) GetByID(ctx context.Context, id string) (*models.ShopItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *item
	return &cp, nil
}

func (s *MemoryShopItems) List(ctx context.Context) ([]*models.ShopItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ShopItem
	for _, item := range s.items {
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (s *MemoryShopItems) TakeStock(ctx context.Context, id string, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if item.Unlimited() {
		return true, nil
	}
	if item.Stock < quantity {
		return false, nil
	}
	item.Stock -= quantity
	return true, nil
}

func (s *MemoryShopItems) RecordPurchase(ctx context.Context, id string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Purchases += quantity
	return nil
}
