package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/mirabeldev/ember/emberbot"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/utils"
)

var Event = discord.SlashCommandCreate{
	Name:        "event",
	Description: "🎉 Manage reward events (requires Manage Server)",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List this server's events",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "start",
			Description: "Start an event now",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "event",
					Description: "The event id to start",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "hours",
					Description: "How long to run it (default 24)",
					Required:    false,
					MinValue:    intPtr(1),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "stop",
			Description: "Stop a running event",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "event",
					Description: "The event id to stop",
					Required:    true,
				},
			},
		},
	},
}

// requireManageGuild gates admin commands on the member's computed
// permissions.
func requireManageGuild(e *handler.CommandEvent) bool {
	member := e.Member()
	return member != nil && member.Permissions.Has(discord.PermissionManageGuild)
}

func EventHandler(b *emberbot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		gid, err := guildID(e)
		if err != nil {
			return utils.EH.CreateEphemeralError(e, "Events only exist inside a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.CommandExecutionTimeout)
		defer cancel()

		data := e.SlashCommandInteractionData()
		switch *data.SubCommandName {
		case "list":
			return eventList(ctx, b, e, gid)
		case "start":
			if !requireManageGuild(e) {
				return utils.EH.CreateEphemeralError(e, "You need **Manage Server** to start events.")
			}
			hours := 24
			if h, ok := data.OptInt("hours"); ok {
				hours = h
			}
			ev, err := b.EventRegistry.StartEvent(ctx, gid, data.String("event"), time.Duration(hours)*time.Hour)
			if err != nil {
				return utils.EH.CreateErrorEmbed(e, "That event could not be started. Check the id with `/event list`.")
			}
			return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf(
				"**%s** is live for the next %d hours!", ev.Name, hours))
		case "stop":
			if !requireManageGuild(e) {
				return utils.EH.CreateEphemeralError(e, "You need **Manage Server** to stop events.")
			}
			eventID := data.String("event")
			if err := b.EventRegistry.StopEvent(ctx, gid, eventID); err != nil {
				return utils.EH.CreateErrorEmbed(e, "That event could not be stopped. Is it running?")
			}
			return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("Event `%s` stopped.", eventID))
		}
		return nil
	}
}

func eventList(ctx context.Context, b *emberbot.Bot, e *handler.CommandEvent, gid string) error {
	events, err := b.EventRepository.ListByGuild(ctx, gid)
	if err != nil {
		return utils.EH.CreateErrorEmbed(e, "Failed to load events. Please try again later.")
	}
	if len(events) == 0 {
		return utils.EH.CreateInfoEmbed(e, "This server has no events configured.")
	}

	var sb strings.Builder
	for _, ev := range events {
		status := "⚪ inactive"
		if ev.Active {
			status = fmt.Sprintf("🟢 active until <t:%d:R>", ev.EndsAt.Unix())
		} else if ev.IsScheduled() {
			status = "🔵 scheduled"
		}
		effect := fmt.Sprintf("×%.2g", ev.Multiplier)
		if ev.Bonus > 0 {
			effect = fmt.Sprintf("+%d", ev.Bonus)
		}
		fmt.Fprintf(&sb, "`%s` — **%s** (%s %s) • %s\n",
			ev.EventID, ev.Name, ev.Kind, effect, status)
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{discord.NewEmbedBuilder().
			SetTitle("🎉 Reward Events").
			SetDescription(sb.String()).
			SetColor(config.EventColor).
			Build()},
	})
}
