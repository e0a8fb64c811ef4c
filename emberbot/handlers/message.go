package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	disgoevents "github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/database/repositories"
	"github.com/mirabeldev/ember/emberbot/lootbox"
	"github.com/mirabeldev/ember/emberbot/progression"
)

// MessageHandler feeds qualifying guild messages into the XP path and the
// loot box spawner.
func MessageHandler(core *progression.Core, spawner *lootbox.Spawner, users repositories.UserProgressRepository) bot.EventListener {
	return bot.NewListenerFunc(func(e *disgoevents.MessageCreate) {
		if e.Message.Author.Bot || e.Message.Author.System || e.GuildID == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.WorkHandlerTimeout)
		defer cancel()

		guildID := e.GuildID.String()
		userID := e.Message.Author.ID.String()
		channelID := e.ChannelID.String()

		result := core.HandleMessage(ctx, guildID, userID, channelID)
		if result.OnCooldown {
			return
		}

		user, err := users.GetOrCreate(ctx, guildID, userID)
		if err != nil {
			slog.Error("Failed to load user for spawn roll",
				slog.String("type", "db"),
				slog.String("user_id", userID),
				slog.Any("error", err))
			return
		}

		spawn := spawner.MaybeSpawn(guildID, channelID, user)
		if !spawn.Spawned {
			return
		}

		color, ok := config.RarityColors[spawn.Box.Rarity]
		if !ok {
			color = config.LootBoxColor
		}
		_, err = e.Client().Rest().CreateMessage(e.ChannelID,
			discord.NewMessageCreateBuilder().
				SetEmbeds(discord.NewEmbedBuilder().
					SetTitle("📦 A loot box appeared!").
					SetDescription(fmt.Sprintf("A **%s** loot box dropped in this channel. Use `/lootbox open` to claim it!", spawn.Box.Rarity)).
					SetColor(color).
					Build()).
				Build(),
			rest.WithCtx(ctx))
		if err != nil {
			slog.Warn("Failed to announce loot box",
				slog.String("type", "sys"),
				slog.String("channel_id", channelID),
				slog.Any("error", err))
		}
	})
}
