package channel

import (
	"context"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"flowrelay/internal/domain"
)

// SlackOption configures the Slack channel.
type SlackOption func(*SlackChannel)

// WithSlackChannels limits the bot to specific channel IDs.
func WithSlackChannels(ids []string) SlackOption {
	return func(s *SlackChannel) {
		s.channelIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			s.channelIDs[id] = true
		}
	}
}

// WithSlackMentionOnly enables mention-only filtering.
func WithSlackMentionOnly(v bool) SlackOption {
	return func(s *SlackChannel) { s.mentionOnly = v }
}

// SlackChannel implements domain.Channel via Socket Mode. The Slack
// channel ID doubles as the session id, so directive bindings are
// per-channel.
type SlackChannel struct {
	botToken    string
	appToken    string
	api         *slack.Client
	socketCli   *socketmode.Client
	handler     domain.MessageHandler
	logger      *slog.Logger
	channelIDs  map[string]bool
	mentionOnly bool
	botUserID   string
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewSlackChannel creates a Slack channel.
func NewSlackChannel(botToken, appToken string, logger *slog.Logger, opts ...SlackOption) *SlackChannel {
	s := &SlackChannel{
		botToken: botToken,
		appToken: appToken,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ domain.Channel = (*SlackChannel)(nil)

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	s.handler = handler
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.api = slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.socketCli = socketmode.New(s.api)

	// Bot user ID is needed for mention detection.
	authResp, err := s.api.AuthTest()
	if err != nil {
		return err
	}
	s.botUserID = authResp.UserID
	s.logger.Info("slack channel started", "bot_user_id", s.botUserID)

	go s.eventLoop()
	go func() {
		if err := s.socketCli.Run(); err != nil {
			s.logger.Error("slack socket mode error", "error", err)
		}
	}()

	return nil
}

func (s *SlackChannel) Stop(_ context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *SlackChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	content := msg.Content
	if msg.IsError {
		content = ":warning: " + content
	}

	opts := []slack.MsgOption{slack.MsgOptionText(content, false)}
	if msg.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadID))
	}

	_, _, err := s.api.PostMessage(msg.SessionID, opts...)
	return err
}

func (s *SlackChannel) eventLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case evt := <-s.socketCli.Events:
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				s.socketCli.Ack(*evt.Request)

				switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
				case *slackevents.MessageEvent:
					s.handleMessage(ev)
				}
			}
		}
	}
}

func (s *SlackChannel) handleMessage(ev *slackevents.MessageEvent) {
	// Ignore bot messages.
	if ev.User == "" || ev.User == s.botUserID || ev.BotID != "" {
		return
	}

	// Channel filter.
	if len(s.channelIDs) > 0 && !s.channelIDs[ev.Channel] {
		return
	}

	isMention := strings.Contains(ev.Text, "<@"+s.botUserID+">")
	if s.mentionOnly && !isMention {
		return
	}

	content := ev.Text
	if isMention {
		// Strip the mention so directive parsing sees the raw text.
		content = strings.ReplaceAll(content, "<@"+s.botUserID+">", "")
		content = strings.TrimSpace(content)
	}

	msg := domain.InboundMessage{
		SessionID:   ev.Channel,
		Content:     content,
		ChannelName: "slack",
		SenderID:    ev.User,
	}
	if ev.ThreadTimeStamp != "" {
		msg.ThreadID = ev.ThreadTimeStamp
	}

	if err := s.handler(s.ctx, msg); err != nil {
		s.logger.Error("slack handler error", "error", err, "channel", ev.Channel)
	}
}
