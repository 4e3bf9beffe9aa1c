package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

const (
	cmdThreadImages  = "threadimages"
	cmdMessageImages = "messageimages"
	cmdSetFolder     = "setfolder"
)

// historyPageSize is the Discord API maximum per history request.
const historyPageSize = 100

func commandDefinitions() []*discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	threadTypes := []discordgo.ChannelType{
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread,
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdThreadImages,
			Description: "Upload every attachment already posted in a thread",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "thread",
					Description:  "Thread to backfill",
					ChannelTypes: threadTypes,
					Required:     true,
				},
			},
		},
		{
			Name:        cmdMessageImages,
			Description: "Upload one message's attachments into a named folder",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message_id",
					Description: "Message holding the attachments",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "folder",
					Description: "Destination folder name",
					Required:    true,
				},
			},
		},
		{
			Name:                     cmdSetFolder,
			Description:              "Pin a thread to an existing storage folder",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "thread",
					Description:  "Thread to pin",
					ChannelTypes: threadTypes,
					Required:     true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "folder_id",
					Description: "Folder identifier to upload into",
					Required:    true,
				},
			},
		},
	}
}

func (w *Watcher) registerCommands(s *discordgo.Session) error {
	for _, cmd := range commandDefinitions() {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, w.cfg.GuildID, cmd); err != nil {
			return fmt.Errorf("create command %s: %w", cmd.Name, err)
		}
	}
	return nil
}

func (w *Watcher) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, opt := range data.Options {
		opts[opt.Name] = opt
	}

	switch data.Name {
	case cmdThreadImages:
		w.runThreadImages(s, i, opts["thread"].ChannelValue(s))
	case cmdMessageImages:
		w.runMessageImages(s, i, opts["message_id"].StringValue(), opts["folder"].StringValue())
	case cmdSetFolder:
		w.runSetFolder(s, i, opts["thread"].ChannelValue(s), opts["folder_id"].StringValue())
	}
}

// runThreadImages walks a thread's full history and enqueues every batch
// of media attachments found along the way.
func (w *Watcher) runThreadImages(s *discordgo.Session, i *discordgo.InteractionCreate, thread *discordgo.Channel) {
	w.deferReply(s, i)

	enqueued, before := 0, ""
	for {
		msgs, err := s.ChannelMessages(thread.ID, historyPageSize, before, "", "")
		if err != nil {
			w.logger.Error("thread history failed", slog.String("thread", thread.Name), slog.Any("error", err))
			w.followUp(s, i, "Could not read the thread history.")
			return
		}
		for _, msg := range msgs {
			if shouldSkip(msg.Content) {
				continue
			}
			batch := collectBatch(msg, thread.ID, thread.Name, "")
			if len(batch.Tasks) == 0 {
				continue
			}
			if err := w.sink.Enqueue(batch); err != nil {
				w.logger.Error("enqueue failed", slog.String("thread", thread.Name), slog.Any("error", err))
				w.followUp(s, i, fmt.Sprintf("Queued %d message(s), then the queue filled up. Try again shortly.", enqueued))
				return
			}
			enqueued++
		}
		if len(msgs) < historyPageSize {
			break
		}
		before = msgs[len(msgs)-1].ID
	}

	w.followUp(s, i, fmt.Sprintf("Queued attachments from %d message(s) in **%s**.", enqueued, thread.Name))
}

// runMessageImages locates a message anywhere in the guild and enqueues
// its attachments into an explicitly named folder.
func (w *Watcher) runMessageImages(s *discordgo.Session, i *discordgo.InteractionCreate, messageID, folder string) {
	w.deferReply(s, i)

	msg, ch := w.findMessage(s, messageID)
	if msg == nil {
		w.followUp(s, i, "Message not found in this guild.")
		return
	}

	batch := collectBatch(msg, ch.ID, ch.Name, folder)
	if len(batch.Tasks) == 0 {
		w.followUp(s, i, "That message carries no media attachments.")
		return
	}
	if err := w.sink.Enqueue(batch); err != nil {
		w.logger.Error("enqueue failed", slog.String("message_id", messageID), slog.Any("error", err))
		w.followUp(s, i, "The pipeline queue is full. Try again shortly.")
		return
	}
	w.followUp(s, i, fmt.Sprintf("Queued %d attachment(s) for **%s**.", len(batch.Tasks), folder))
}

func (w *Watcher) runSetFolder(s *discordgo.Session, i *discordgo.InteractionCreate, thread *discordgo.Channel, folderID string) {
	w.folders.SetOverride(thread.ID, folderID)
	w.respond(s, i, fmt.Sprintf("**%s** now uploads into folder `%s`.", thread.Name, folderID))
}

// findMessage scans the guild's text channels and active threads for a
// message by ID. Linear, but the command is rare and admin-driven.
func (w *Watcher) findMessage(s *discordgo.Session, messageID string) (*discordgo.Message, *discordgo.Channel) {
	channels, err := s.GuildChannels(w.cfg.GuildID)
	if err != nil {
		w.logger.Error("list channels failed", slog.Any("error", err))
		return nil, nil
	}
	if threads, err := s.GuildThreadsActive(w.cfg.GuildID); err == nil {
		channels = append(channels, threads.Threads...)
	}

	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText && !ch.IsThread() {
			continue
		}
		if msg, err := s.ChannelMessage(ch.ID, messageID); err == nil {
			return msg, ch
		}
	}
	return nil, nil
}

func (w *Watcher) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		w.logger.Warn("defer response failed", slog.Any("error", err))
	}
}

func (w *Watcher) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		w.logger.Warn("respond failed", slog.Any("error", err))
	}
}

func (w *Watcher) followUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content})
	if err != nil {
		w.logger.Warn("follow-up failed", slog.Any("error", err))
	}
}
