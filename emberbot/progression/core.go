package progression

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/interfaces"
)

// perkMilestones maps level milestones to the perk unlocked there.
var perkMilestones = map[int]string{
	5:   "streak_shield",
	10:  "lucky_charm",
	25:  "market_insider",
	50:  "high_roller",
	100: "guild_legend",
}

// PerkName returns the display name for a perk id.
func PerkName(perkID string) string {
	switch perkID {
	case "streak_shield":
		return "Streak Shield"
	case "lucky_charm":
		return "Lucky Charm"
	case "market_insider":
		return "Market Insider"
	case "high_roller":
		return "High Roller"
	case "guild_legend":
		return "Guild Legend"
	}
	return perkID
}

// RequiredXP returns the XP needed to advance from level to level+1 under the
// guild's curve.
func RequiredXP(baseXP int64, growthRate float64, level int) int64 {
	return int64(math.Floor(float64(baseXP) * math.Pow(float64(level+1), growthRate)))
}

// TotalXPForLevel returns the cumulative XP required to reach a level from
// zero.
func TotalXPForLevel(baseXP int64, growthRate float64, level int) int64 {
	var total int64
	for l := 0; l < level; l++ {
		total += RequiredXP(baseXP, growthRate, l)
	}
	return total
}

// LevelForTotalXP returns the level a cumulative XP total corresponds to.
func LevelForTotalXP(baseXP int64, growthRate float64, totalXP int64) int {
	level := 0
	var spent int64
	for {
		need := RequiredXP(baseXP, growthRate, level)
		if spent+need > totalXP {
			return level
		}
		spent += need
		level++
	}
}

// XPResult reports an XP grant and any level change it caused.
type XPResult struct {
	Awarded     bool
	OnCooldown  bool
	DailyCapped bool
	XP          int64
	TotalXP     int64
	OldLevel    int
	NewLevel    int
	LeveledUp   bool
}

// Core owns the XP curve and the level-up pipeline. Grants for the same
// (guild,user) are serialized with an advisory lock so concurrent messages
// cannot double-fire level rewards.
type Core struct {
	users     repositories.UserProgressRepository
	guildCfg  repositories.GuildConfigRepository
	directory interfaces.GuildDirectory
	sink      interfaces.NotificationSink
	ledger    *economy.Ledger
	clock     clock.Clock

	locks sync.Map // guildID:userID -> *sync.Mutex

	// rng returns a uniform int in [0, n); replaced in tests.
	rng func(n int64) int64
}

func NewCore(users repositories.UserProgressRepository, guildCfg repositories.GuildConfigRepository, directory interfaces.GuildDirectory, sink interfaces.NotificationSink, ledger *economy.Ledger, clk clock.Clock) *Core {
	c := &Core{
		users:     users,
		guildCfg:  guildCfg,
		directory: directory,
		sink:      sink,
		ledger:    ledger,
		clock:     clk,
		rng:       rand.Int63n,
	}
	ledger.SetXPApplier(c.ApplyXP)
	return c
}

func (c *Core) userLock(guildID, userID string) *sync.Mutex {
	actual, _ := c.locks.LoadOrStore(guildID+":"+userID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// ApplyXP persists an XP grant and runs the level-up pipeline. It is the
// ledger's xp applier, so every xp-currency grant lands here after event
// modifiers.
func (c *Core) ApplyXP(ctx context.Context, guildID, userID string, amount int64, source string) (int64, error) {
	mu := c.userLock(guildID, userID)
	mu.Lock()
	defer mu.Unlock()

	user, err := c.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}

	total, err := c.users.AddXP(ctx, guildID, userID, amount)
	if err != nil {
		return 0, err
	}

	cfg, err := c.guildCfg.Get(ctx, guildID)
	if err != nil {
		return total, err
	}

	newLevel := LevelForTotalXP(cfg.BaseXP, cfg.GrowthRate, total)
	if newLevel > user.Level {
		c.levelUp(ctx, cfg, user, newLevel, source)
	}
	return total, nil
}

// levelUp persists the new level, grants every reward crossed on the way up,
// and emits a single aggregated notice. Callers hold the user lock.
func (c *Core) levelUp(ctx context.Context, cfg *models.GuildConfig, user *models.UserProgress, newLevel int, source string) {
	guildID, userID := user.GuildID, user.UserID

	if err := c.users.SetLevel(ctx, guildID, userID, newLevel); err != nil {
		slog.Error("Failed to persist level",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}

	// The level itself persists, but role grants and notices are pointless
	// for someone who already left the guild.
	if exists, err := c.directory.MemberExists(ctx, guildID, userID); err != nil || !exists {
		slog.Warn("Skipping level-up side effects for absent member",
			slog.String("type", "sys"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		user.Level = newLevel
		return
	}

	notice := interfaces.LevelUpNotice{
		GuildID:  guildID,
		UserID:   userID,
		OldLevel: user.Level,
		NewLevel: newLevel,
	}

	for level := user.Level + 1; level <= newLevel; level++ {
		for _, lr := range cfg.RolesForLevel(level) {
			if name, ok := c.grantRole(ctx, cfg, guildID, userID, lr); ok {
				notice.Roles = append(notice.Roles, name)
			}
		}
		if perkID, ok := perkMilestones[level]; ok {
			if err := c.users.AddPerk(ctx, guildID, userID, perkID); err != nil {
				slog.Error("Failed to grant perk",
					slog.String("type", "db"),
					slog.String("user_id", userID),
					slog.String("perk", perkID),
					slog.Any("error", err))
				continue
			}
			notice.Perks = append(notice.Perks, PerkName(perkID))
		}
	}

	user.Level = newLevel

	slog.Info("Level up",
		slog.String("type", "sys"),
		slog.String("guild_id", guildID),
		slog.String("user_id", userID),
		slog.Int("level", newLevel),
		slog.String("source", source))

	c.sink.NotifyLevelUp(ctx, notice)
}

// grantRole assigns a level role, removing superseded lower roles when the new
// role is exclusive. Returns the role's display name on success.
func (c *Core) grantRole(ctx context.Context, cfg *models.GuildConfig, guildID, userID string, lr models.LevelRole) (string, bool) {
	manageable, err := c.directory.CanManageRole(ctx, guildID, lr.RoleID)
	if err != nil || !manageable {
		slog.Warn("Skipping unmanageable level role",
			slog.String("type", "sys"),
			slog.String("guild_id", guildID),
			slog.String("role_id", lr.RoleID),
			slog.Any("error", err))
		return "", false
	}

	if err := c.directory.AddRole(ctx, guildID, userID, lr.RoleID); err != nil {
		slog.Error("Failed to assign level role",
			slog.String("type", "error"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.String("role_id", lr.RoleID),
			slog.Any("error", err))
		return "", false
	}

	if !lr.Stackable {
		for _, prev := range cfg.LevelRoles {
			if prev.Level >= lr.Level || !prev.AutoRemove {
				continue
			}
			if err := c.directory.RemoveRole(ctx, guildID, userID, prev.RoleID); err != nil {
				slog.Warn("Failed to remove superseded level role",
					slog.String("guild_id", guildID),
					slog.String("user_id", userID),
					slog.String("role_id", prev.RoleID),
					slog.Any("error", err))
			}
		}
	}

	name, err := c.directory.RoleName(ctx, guildID, lr.RoleID)
	if err != nil || name == "" {
		name = lr.RoleID
	}
	return name, true
}

// HandleMessage runs the message XP path: per-user cooldown, a random roll in
// the configured range, channel and role multipliers, the personal boost, then
// the ledger for event modifiers and level processing.
func (c *Core) HandleMessage(ctx context.Context, guildID, userID, channelID string) XPResult {
	now := c.clock.Now()

	cfg, err := c.guildCfg.Get(ctx, guildID)
	if err != nil {
		return XPResult{}
	}

	user, err := c.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		return XPResult{}
	}

	cooldown := time.Duration(cfg.MessageCooldownMS) * time.Millisecond
	if !user.LastMessageAt.IsZero() && now.Sub(user.LastMessageAt) < cooldown {
		return XPResult{OnCooldown: true, OldLevel: user.Level, NewLevel: user.Level}
	}

	if cfg.DailyXPCap > 0 && user.XPToday >= cfg.DailyXPCap {
		return XPResult{DailyCapped: true, OldLevel: user.Level, NewLevel: user.Level}
	}

	if err := c.users.IncrementMessageStats(ctx, guildID, userID, now); err != nil {
		slog.Error("Failed to record message stats",
			slog.String("type", "db"),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	span := cfg.MessageXPMax - cfg.MessageXPMin
	amount := cfg.MessageXPMin
	if span > 0 {
		amount += c.rng(span + 1)
	}

	mult := cfg.ChannelMultiplier(channelID)
	for roleID, m := range cfg.RoleMultipliers {
		if m <= 1 {
			continue
		}
		if has, err := c.directory.HasRole(ctx, guildID, userID, roleID); err == nil && has {
			mult *= m
		}
	}
	amount = int64(math.Floor(float64(amount) * mult * user.ActiveBoost(now)))
	if amount < 1 {
		amount = 1
	}
	if cfg.DailyXPCap > 0 && amount > cfg.DailyXPCap-user.XPToday {
		amount = cfg.DailyXPCap - user.XPToday
	}

	oldLevel := user.Level
	give := c.ledger.GiveCurrency(ctx, guildID, userID, economy.CurrencyXP, amount, "message")
	if !give.Success {
		return XPResult{OldLevel: oldLevel, NewLevel: oldLevel}
	}

	if cfg.DailyXPCap > 0 {
		if err := c.users.AddDailyEarned(ctx, guildID, userID, give.FinalAmount, 0); err != nil {
			slog.Error("Failed to record daily xp earnings",
				slog.String("type", "db"),
				slog.String("user_id", userID),
				slog.Any("error", err))
		}
	}

	newLevel := LevelForTotalXP(cfg.BaseXP, cfg.GrowthRate, give.NewBalance)
	return XPResult{
		Awarded:   true,
		XP:        give.FinalAmount,
		TotalXP:   give.NewBalance,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		LeveledUp: newLevel > oldLevel,
	}
}

// GrantXP credits XP from an administrative action. Event modifiers do not
// apply; the level pipeline still runs.
func (c *Core) GrantXP(ctx context.Context, guildID, userID string, amount int64) (XPResult, error) {
	user, err := c.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		return XPResult{}, err
	}
	oldLevel := user.Level

	total, err := c.ApplyXP(ctx, guildID, userID, amount, "admin")
	if err != nil {
		return XPResult{}, err
	}

	cfg, err := c.guildCfg.Get(ctx, guildID)
	if err != nil {
		return XPResult{}, err
	}
	newLevel := LevelForTotalXP(cfg.BaseXP, cfg.GrowthRate, total)
	return XPResult{
		Awarded:   true,
		XP:        amount,
		TotalXP:   total,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		LeveledUp: newLevel > oldLevel,
	}, nil
}

// RemoveXP deducts XP and recomputes the level downward. No notice is emitted
// and no roles are revoked; demotion is silent.
func (c *Core) RemoveXP(ctx context.Context, guildID, userID string, amount int64) (XPResult, error) {
	mu := c.userLock(guildID, userID)
	mu.Lock()
	defer mu.Unlock()

	user, err := c.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		return XPResult{}, err
	}

	total := user.TotalXP - amount
	if total < 0 {
		total = 0
	}

	cfg, err := c.guildCfg.Get(ctx, guildID)
	if err != nil {
		return XPResult{}, err
	}
	newLevel := LevelForTotalXP(cfg.BaseXP, cfg.GrowthRate, total)

	if err := c.users.SetXP(ctx, guildID, userID, total, newLevel); err != nil {
		return XPResult{}, err
	}
	return XPResult{
		Awarded:  true,
		TotalXP:  total,
		OldLevel: user.Level,
		NewLevel: newLevel,
	}, nil
}

// SetLevel pins a user to an exact level, rewriting total XP to the level's
// floor. Administrative path, no notifications.
func (c *Core) SetLevel(ctx context.Context, guildID, userID string, level int) error {
	if level < 0 {
		level = 0
	}

	mu := c.userLock(guildID, userID)
	mu.Lock()
	defer mu.Unlock()

	cfg, err := c.guildCfg.Get(ctx, guildID)
	if err != nil {
		return err
	}
	total := TotalXPForLevel(cfg.BaseXP, cfg.GrowthRate, level)
	return c.users.SetXP(ctx, guildID, userID, total, level)
}

// Progress describes how far into the current level a user is.
type Progress struct {
	Level        int
	TotalXP      int64
	IntoLevel    int64
	NeededForNext int64
}

// ProgressFor computes the rank-card numbers for a user.
func (c *Core) ProgressFor(ctx context.Context, guildID, userID string) (Progress, error) {
	cfg, err := c.guildCfg.Get(ctx, guildID)
	if err != nil {
		return Progress{}, err
	}
	user, err := c.users.GetOrCreate(ctx, guildID, userID)
	if err != nil {
		return Progress{}, err
	}

	level := LevelForTotalXP(cfg.BaseXP, cfg.GrowthRate, user.TotalXP)
	floor := TotalXPForLevel(cfg.BaseXP, cfg.GrowthRate, level)
	return Progress{
		Level:         level,
		TotalXP:       user.TotalXP,
		IntoLevel:     user.TotalXP - floor,
		NeededForNext: RequiredXP(cfg.BaseXP, cfg.GrowthRate, level),
	}, nil
}
