package config

import "time"

// UI and display constants
const (
	DefaultPageSize = 10
	MaxPageSize     = 25

	ErrorColor   = 0xFF0000
	SuccessColor = 0x00FF00
	InfoColor    = 0x0099FF
	WarningColor = 0xFFAA00

	EmbedDefaultColor = 0x2B2D31
	LevelUpColor      = 0xF1C40F
	EventColor        = 0x9B59B6
	LootBoxColor      = 0xE67E22
	MarketColor       = 0x992D22
)

// RarityColors maps loot box rarity tiers to embed colors.
var RarityColors = map[string]int{
	"divine":    0xFFFFFF,
	"mythic":    0xFF2D78,
	"celestial": 0x7FDBFF,
	"ancient":   0x3D9970,
	"legendary": 0xFFD700,
	"epic":      0x800080,
	"superior":  0x39CCCC,
	"rare":      0x0000FF,
	"uncommon":  0x00FF00,
	"fine":      0xB5BD68,
	"common":    0x808080,
}

// Database and performance constants
const (
	DefaultQueryTimeout     = 30 * time.Second
	CommandExecutionTimeout = 10 * time.Second
	WorkHandlerTimeout      = 10 * time.Second
	NetworkDialTimeout      = 5 * time.Second
	NetworkKeepAlive        = 30 * time.Second

	GuildConfigCacheSize = 512
)

// Scheduler intervals
const (
	VoiceFlushInterval     = 1 * time.Minute
	VoiceBackupInterval    = 2 * time.Minute
	EventScanInterval      = 1 * time.Hour
	EventExpiryInterval    = 5 * time.Minute
	EventPruneInterval     = 30 * time.Minute
	RateLimitSweepInterval = 1 * time.Minute
	CooldownPruneInterval  = 5 * time.Minute
	DailyResetInterval     = 24 * time.Hour
)

// Rate limiting defaults per command family
const (
	CommandRateLimit  = 5
	CommandRateWindow = 1 * time.Minute
	GambleRateLimit   = 3
	GambleRateWindow  = 1 * time.Minute
)
