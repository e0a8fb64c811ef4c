package commands

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/economy"
	"github.com/mirabeldev/ember/emberbot/economy/blackmarket"
	"github.com/mirabeldev/ember/emberbot/utils"
)

var BlackMarket = discord.SlashCommandCreate{
	Name:        "blackmarket",
	Description: "🕳️ Manage your standing in the black market",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "status",
			Description: "Check your heat, jail state and record",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "bail",
			Description: "Buy your way out of jail",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "launder",
			Description: "Burn a quarter of your coins to shed heat",
		},
	},
}

func BlackMarketHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "The black market only operates inside a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		userID := e.User().ID.String()

		switch *data.SubCommandName {
		case "status":
			return blackMarketStatus(ctx, b, e, gid, userID)
		case "bail":
			return blackMarketBail(ctx, b, e, gid, userID)
		case "launder":
			return blackMarketLaunder(ctx, b, e, gid, userID)
		}
		return nil
	}
}

func blackMarketStatus(ctx context.Context, b *emberbot.Bot, e *handler.CommandEvent, gid, userID string) error {
	user, err := b.Market.Status(ctx, gid, userID)
	if err != nil {
		return utils.EH.CreateErrorEmbed(e, "Failed to fetch your record. Please try again later.")
	}

	builder := discord.NewEmbedBuilder().
		SetTitle("🕳️ Black Market Record").
		SetColor(config.MarketColor).
		AddField("Heat", fmt.Sprintf("🌡️ %d/100", user.Heat), true).
		AddField("Bets Placed", utils.FormatAmount(int64(user.RiskBets)), true).
		AddField("Times Caught", utils.FormatAmount(int64(user.RiskTimesCaught)), true).
		AddField("Times Robbed", utils.FormatAmount(int64(user.RiskTimesRobbed)), true)

	if user.Jailed {
		builder.AddField("⛓️ Jailed", fmt.Sprintf(
			"Until <t:%d:R>. Bail costs **%s** coins.",
			user.JailUntil.Unix(), utils.FormatAmount(blackmarket.BailCost(user))), false)
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{builder.Build()},
	})
}

func blackMarketBail(ctx context.Context, b *emberbot.Bot, e *handler.CommandEvent, gid, userID string) error {
	result := b.Market.PayBail(ctx, gid, userID)
	if !result.Success {
		switch result.Reason {
		case blackmarket.ReasonNotJailed:
			return utils.EH.CreateErrorEmbed(e, "You are not in jail.")
		case economy.ReasonInsufficientFunds:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
				"Bail costs **%s** coins and you cannot cover it.", utils.FormatAmount(result.Cost)))
		default:
			return utils.EH.CreateErrorEmbed(e, "Bail could not be processed.")
		}
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf(
		"You paid **%s** coins and walked free. Your heat (🌡️ %d) still follows you.",
		utils.FormatAmount(result.Cost), result.Heat))
}

func blackMarketLaunder(ctx context.Context, b *emberbot.Bot, e *handler.CommandEvent, gid, userID string) error {
	result := b.Market.Launder(ctx, gid, userID)
	if !result.Success {
		switch result.Reason {
		case blackmarket.ReasonJailed:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
				"You cannot launder from jail. Free until <t:%d:R>.", result.Until.Unix()))
		case blackmarket.ReasonLowHeat:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
				"Laundering needs at least **%d** heat; you only have **%d**.", result.Required, result.Heat))
		case blackmarket.ReasonOnCooldown:
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf(
				"The launderers need time. Try again in **%s**.", utils.FormatDuration(result.Remaining)))
		default:
			return utils.EH.CreateErrorEmbed(e, "Laundering failed.")
		}
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf(
		"You burned **%s** coins. Heat is down to 🌡️ %d.",
		utils.FormatAmount(result.Burned), result.Heat))
}
