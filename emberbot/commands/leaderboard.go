package commands

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/database/models"
	"github.com/mirabeldev/ember/emberbot/utils"
)

const leaderboardFetchLimit = 100

var Leaderboard = discord.SlashCommandCreate{
	Name:        "leaderboard",
	Description: "🏆 See who has earned the most XP in this server",
}

func LeaderboardHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "The leaderboard only exists inside a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		top, err := b.UserRepository.TopByXP(ctx, gid, leaderboardFetchLimit)
		if err != nil {
			return utils.EH.CreateErrorEmbed(e, "Failed to fetch the leaderboard. Please try again later.")
		}
		if len(top) == 0 {
			return utils.EH.CreateInfoEmbed(e, "Nobody has earned XP here yet. Start chatting!")
		}

		totalPages := int(math.Ceil(float64(len(top)) / float64(config.DefaultPageSize)))

		return b.Paginator.Create(e.Respond, paginator.Pages{
			ID:      e.ID().String(),
			Creator: e.User().ID,
			Pages:   totalPages,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				start := page * config.DefaultPageSize
				end := start + config.DefaultPageSize
				if end > len(top) {
					end = len(top)
				}
				embed.
					SetTitle("🏆 XP Leaderboard").
					SetDescription(formatLeaderboardPage(top[start:end], start)).
					SetColor(config.InfoColor).
					SetFooter(fmt.Sprintf("Page %d/%d", page+1, totalPages), "")
			},
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	}
}

func formatLeaderboardPage(entries []*models.UserProgress, offset int) string {
	var sb strings.Builder
	for i, user := range entries {
		rank := offset + i + 1
		medal := fmt.Sprintf("`#%d`", rank)
		switch rank {
		case 1:
			medal = "🥇"
		case 2:
			medal = "🥈"
		case 3:
			medal = "🥉"
		}
		fmt.Fprintf(&sb, "%s <@%s> — Level %d (%s XP)\n",
			medal, user.UserID, user.Level, utils.FormatAmount(user.TotalXP))
	}
	return sb.String()
}
