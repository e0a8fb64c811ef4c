package handlers

import (
	"context"

	"github.com/disgoorg/disgo/bot"
	disgoevents "github.com/disgoorg/disgo/events"
	"github.com/mirabeldev/ember/emberbot/config"
	"github.com/mirabeldev/ember/emberbot/voice"
)

// VoiceHandler forwards gateway voice state changes to the accrual tracker.
// Server mutes and deafens count the same as self mutes: no reward.
func VoiceHandler(tracker *voice.Tracker) bot.EventListener {
	return bot.NewListenerFunc(func(e *disgoevents.GuildVoiceStateUpdate) {
		if e.Member.User.Bot {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.WorkHandlerTimeout)
		defer cancel()

		vs := e.VoiceState
		channelID := ""
		if vs.ChannelID != nil {
			channelID = vs.ChannelID.String()
		}
		muted := vs.SelfMute || vs.SelfDeaf || vs.GuildMute || vs.GuildDeaf

		tracker.HandleVoiceState(ctx, vs.GuildID.String(), vs.UserID.String(), channelID, muted)
	})
}
