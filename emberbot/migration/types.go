package migration

import "time"

// MongoUser mirrors one document of the legacy bot's users collection.
// The legacy bot stored every number as a Mongo double, so the numeric
// fields decode as float64 and are clamped during conversion.
type MongoUser struct {
	DiscordID   string    `bson:"discord_id"`
	GuildID     string    `bson:"guild"`
	Exp         float64   `bson:"exp"`
	Balance     float64   `bson:"balance"`
	Gems        float64   `bson:"gems"`
	DailyStreak float64   `bson:"dailystreak"`
	LastDaily   time.Time `bson:"lastdaily"`
	VoiceTime   float64   `bson:"voicetime"` // seconds
	Inventory   []string  `bson:"inventory"`
	Joined      time.Time `bson:"joined"`
}

// ImportStats summarizes one import run.
type ImportStats struct {
	Read       int
	Duplicates int
	Skipped    int
	Imported   int
	StartTime  time.Time
	EndTime    time.Time
}
