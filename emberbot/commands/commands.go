package commands

import (
	"errors"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

// Commands is the full slash command surface synced to Discord.
var Commands = []discord.ApplicationCommandCreate{
	Daily,
	Balance,
	Rank,
	Leaderboard,
	Pay,
	Gamble,
	BlackMarket,
	Shop,
	LootBox,
	Event,
	XPAdmin,
	GuildSettings,
}

var errGuildOnly = errors.New("command only works in a guild")

// guildID extracts the guild id from a command event, rejecting DM usage.
func guildID(e *handler.CommandEvent) (string, error) {
	id := e.GuildID()
	if id == nil {
		return "", errGuildOnly
	}
	return id.String(), nil
}
