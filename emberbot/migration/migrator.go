// Package migration imports user data dumped from the legacy Mongo-based
// bot into the user_progress table. The dump is a raw .bson file as written
// by mongodump: a stream of length-prefixed BSON documents with no framing
// around them.
package migration

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/progression"
)

type Migrator struct {
	db        *bun.DB
	usersPath string
	batchSize int

	// Curve parameters used to split legacy total exp into level + remainder.
	baseXP     int64
	growthRate float64

	stats ImportStats
}

func NewMigrator(db *bun.DB, usersPath string) *Migrator {
	defaults := models.NewGuildConfig("")
	return &Migrator{
		db:         db,
		usersPath:  usersPath,
		batchSize:  1000,
		baseXP:     defaults.BaseXP,
		growthRate: defaults.GrowthRate,
	}
}

// SetBatchSize overrides the default insert batch size (useful behind
// connection poolers with statement timeouts).
func (m *Migrator) SetBatchSize(n int) {
	if n > 0 {
		m.batchSize = n
	}
}

// SetCurve overrides the level curve used to convert legacy total exp.
// Guilds that customized base_xp or growth_rate should import with the
// same values or levels will shift.
func (m *Migrator) SetCurve(baseXP int64, growthRate float64) {
	if baseXP > 0 {
		m.baseXP = baseXP
	}
	if growthRate > 0 {
		m.growthRate = growthRate
	}
}

// Stats returns the counters from the last Run.
func (m *Migrator) Stats() ImportStats { return m.stats }

// Run reads the legacy dump, converts every record and inserts them in
// batches. Rows that already exist for a (guild, user) pair are left
// untouched so a re-run never clobbers live progress.
func (m *Migrator) Run(ctx context.Context) error {
	m.stats = ImportStats{StartTime: time.Now()}

	slog.Info("Starting legacy user import",
		slog.String("type", "db"),
		slog.String("path", m.usersPath),
		slog.Int("batch_size", m.batchSize))

	mongoUsers, err := m.readUsers()
	if err != nil {
		return err
	}
	m.stats.Read = len(mongoUsers)

	rows := m.convertAll(mongoUsers)

	for start := 0; start < len(rows); start += m.batchSize {
		end := start + m.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		res, err := m.db.NewInsert().
			Model(&batch).
			On("CONFLICT (guild_id, user_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert user batch at offset %d: %w", start, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			m.stats.Imported += int(n)
		}

		slog.Info("Imported user batch",
			slog.String("type", "db"),
			slog.Int("batch", len(batch)),
			slog.String("progress", fmt.Sprintf("%d/%d", end, len(rows))))
	}

	m.stats.EndTime = time.Now()
	slog.Info("Legacy user import finished",
		slog.String("type", "db"),
		slog.Int("read", m.stats.Read),
		slog.Int("duplicates", m.stats.Duplicates),
		slog.Int("skipped", m.stats.Skipped),
		slog.Int("imported", m.stats.Imported),
		slog.Duration("took", m.stats.EndTime.Sub(m.stats.StartTime)))
	return nil
}

// readUsers streams the dump file document by document. Each BSON document
// starts with a little-endian int32 holding its own total length.
func (m *Migrator) readUsers() ([]MongoUser, error) {
	file, err := os.Open(m.usersPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy dump: %w", err)
	}
	defer file.Close()

	var users []MongoUser
	reader := bufio.NewReader(file)
	for {
		lengthBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, lengthBytes); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read document length: %w", err)
		}

		length := int32(binary.LittleEndian.Uint32(lengthBytes))
		if length < 5 {
			return nil, fmt.Errorf("invalid document length: %d", length)
		}

		docBytes := make([]byte, length-4)
		if _, err := io.ReadFull(reader, docBytes); err != nil {
			return nil, fmt.Errorf("failed to read document bytes: %w", err)
		}

		var mu MongoUser
		if err := bson.Unmarshal(append(lengthBytes, docBytes...), &mu); err != nil {
			return nil, fmt.Errorf("failed to decode user document: %w", err)
		}
		users = append(users, mu)
	}
	return users, nil
}

// convertAll converts the raw documents, dropping records without ids.
// Legacy dumps occasionally hold several documents for the same member;
// the last one written is the freshest, so later entries win.
func (m *Migrator) convertAll(mongoUsers []MongoUser) []*models.UserProgress {
	byKey := make(map[string]*models.UserProgress, len(mongoUsers))
	order := make([]string, 0, len(mongoUsers))
	for _, mu := range mongoUsers {
		if mu.DiscordID == "" || mu.GuildID == "" {
			m.stats.Skipped++
			continue
		}
		key := mu.GuildID + ":" + mu.DiscordID
		if _, exists := byKey[key]; exists {
			m.stats.Duplicates++
		} else {
			order = append(order, key)
		}
		byKey[key] = m.convertUser(mu)
	}

	rows := make([]*models.UserProgress, 0, len(byKey))
	for _, key := range order {
		rows = append(rows, byKey[key])
	}
	return rows
}

func (m *Migrator) convertUser(mu MongoUser) *models.UserProgress {
	totalXP := clampNonNegative(mu.Exp)
	level := progression.LevelForTotalXP(m.baseXP, m.growthRate, totalXP)
	now := time.Now()

	row := &models.UserProgress{
		GuildID:         mu.GuildID,
		UserID:          mu.DiscordID,
		XP:              totalXP - progression.TotalXPForLevel(m.baseXP, m.growthRate, level),
		TotalXP:         totalXP,
		Level:           level,
		Coins:           clampNonNegative(mu.Balance),
		Tokens:          clampNonNegative(mu.Gems),
		BoostMultiplier: 1,
		StreakDays:      int(clampNonNegative(mu.DailyStreak)),
		VoiceMinutes:    clampNonNegative(mu.VoiceTime) / 60,
		Inventory:       mu.Inventory,
		UpdatedAt:       now,
	}
	if !mu.LastDaily.IsZero() {
		row.LastDailyAt = mu.LastDaily
	}
	if !mu.Joined.IsZero() {
		row.CreatedAt = mu.Joined
	} else {
		row.CreatedAt = now
	}
	return row
}

func clampNonNegative(v float64) int64 {
	if v < 0 {
		return 0
	}
	return int64(v)
}
