package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/threadvault/threadvault/internal/config"
	"github.com/threadvault/threadvault/internal/ingest"
)

const fallbackReactionEmoji = "👍"

// Sink accepts batches of attachment tasks for processing.
type Sink interface {
	Enqueue(batch ingest.Batch) error
}

// FolderAdmin pins a conversation key to an explicit destination folder.
type FolderAdmin interface {
	SetOverride(key, folderID string)
}

// Watcher connects to Discord and feeds attachment batches from watched
// threads into the pipeline. It also implements ingest.Reporter so batch
// summaries land back in the thread they came from.
type Watcher struct {
	logger  *slog.Logger
	cfg     config.DiscordConfig
	sink    Sink
	folders FolderAdmin

	mu      sync.Mutex
	session *discordgo.Session
	removes []func()
}

func NewWatcher(log *slog.Logger, cfg config.DiscordConfig, folders FolderAdmin) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		logger:  log.With(slog.String("adapter", "discord")),
		cfg:     cfg,
		folders: folders,
	}
}

// SetSink wires the pipeline the watcher feeds. The watcher also acts
// as the pipeline's reporter, so the sink arrives after construction.
func (w *Watcher) SetSink(sink Sink) {
	w.sink = sink
}

func (w *Watcher) Start(ctx context.Context) error {
	if w.sink == nil {
		return fmt.Errorf("start watcher: no sink configured")
	}
	session, err := discordgo.New("Bot " + w.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	w.mu.Lock()
	w.session = session
	w.removes = append(w.removes,
		session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			if ctx.Err() != nil {
				return
			}
			w.handleMessage(s, m)
		}),
		session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if ctx.Err() != nil {
				return
			}
			w.handleInteraction(s, i)
		}),
	)
	w.mu.Unlock()

	if err := session.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	if err := w.registerCommands(session); err != nil {
		w.logger.Error("register commands failed", slog.Any("error", err))
	}

	w.logger.Info("connected", slog.String("guild_id", w.cfg.GuildID), slog.String("channel", w.cfg.ChannelName))
	return nil
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	session := w.session
	removes := w.removes
	w.session = nil
	w.removes = nil
	w.mu.Unlock()

	if session == nil {
		return nil
	}
	for _, remove := range removes {
		remove()
	}
	return session.Close()
}

func (w *Watcher) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author != nil && m.Author.Bot {
		return
	}
	if len(m.Attachments) == 0 {
		return
	}
	if shouldSkip(m.Content) {
		w.logger.Debug("skip requested", slog.String("message_id", m.ID))
		return
	}

	thread, ok := w.watchedThread(s, m.ChannelID)
	if !ok {
		return
	}

	batch := collectBatch(m.Message, thread.ID, thread.Name, "")
	if len(batch.Tasks) == 0 {
		return
	}

	if err := w.sink.Enqueue(batch); err != nil {
		w.logger.Error("enqueue failed",
			slog.String("thread", thread.Name),
			slog.Int("tasks", len(batch.Tasks)),
			slog.Any("error", err))
		return
	}

	w.logger.Info("batch enqueued",
		slog.String("thread", thread.Name),
		slog.Int("tasks", len(batch.Tasks)))
	w.react(s, m.ChannelID, m.ID)
}

// watchedThread reports whether channelID is a thread under the watched
// parent channel, returning the thread on success.
func (w *Watcher) watchedThread(s *discordgo.Session, channelID string) (*discordgo.Channel, bool) {
	ch, err := w.channel(s, channelID)
	if err != nil {
		w.logger.Warn("resolve channel failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return nil, false
	}
	if !ch.IsThread() {
		return nil, false
	}
	parent, err := w.channel(s, ch.ParentID)
	if err != nil {
		w.logger.Warn("resolve parent failed", slog.String("channel_id", ch.ParentID), slog.Any("error", err))
		return nil, false
	}
	if parent.Name != w.cfg.ChannelName {
		return nil, false
	}
	return ch, true
}

func (w *Watcher) channel(s *discordgo.Session, channelID string) (*discordgo.Channel, error) {
	if ch, err := s.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return s.Channel(channelID)
}

// react confirms receipt on the triggering message, preferring the
// configured guild emoji and falling back to a plain thumbs-up.
func (w *Watcher) react(s *discordgo.Session, channelID, messageID string) {
	emoji := fallbackReactionEmoji
	if name := w.cfg.ReactionEmoji; name != "" {
		if guild, err := s.State.Guild(w.cfg.GuildID); err == nil {
			for _, e := range guild.Emojis {
				if e.Name == name {
					emoji = e.APIName()
					break
				}
			}
		}
	}
	if err := s.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		w.logger.Warn("reaction failed", slog.String("message_id", messageID), slog.Any("error", err))
	}
}

// PostSummary implements ingest.Reporter.
func (w *Watcher) PostSummary(ctx context.Context, replyTarget string, summary ingest.Summary) error {
	w.mu.Lock()
	session := w.session
	w.mu.Unlock()
	if session == nil {
		return fmt.Errorf("post summary: session closed")
	}

	_, err := session.ChannelMessageSend(replyTarget, formatSummary(summary), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	return nil
}

func formatSummary(summary ingest.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Saved %d file(s) to **%s**.", summary.Uploaded, summary.ThreadName)
	if summary.Rejected > 0 {
		fmt.Fprintf(&b, " Skipped %d.", summary.Rejected)
	}
	if summary.Failed > 0 {
		fmt.Fprintf(&b, " Failed %d.", summary.Failed)
	}
	for _, d := range summary.Details {
		fmt.Fprintf(&b, "\n- `%s`: %s", d.FileName, d.Category)
	}
	return b.String()
}
