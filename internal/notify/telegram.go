package notify

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

const (
	telegramTextLimit    = 4000
	telegramCaptionLimit = 1024
)

// Sender is the subset of *tele.Bot the sink uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// RatePerSec caps outgoing API calls; <=0 means 1/s.
	RatePerSec float64
}

// Telegram posts messages to one chat. Messages with an image go out as a
// photo with caption; when the caption would not fit, the photo carries the
// title and the body follows as text.
type Telegram struct {
	sender   Sender
	chat     *tele.Chat
	threadID int
	limiter  *rate.Limiter
	log      logx.Logger
}

// NewTelegram builds an offline bot (no getMe round trip) for sending only.
func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: strings.TrimSpace(cfg.Token), Offline: true})
	if err != nil {
		return nil, err
	}
	return NewTelegramWithSender(b, cfg, log), nil
}

func NewTelegramWithSender(s Sender, cfg TelegramConfig, log logx.Logger) *Telegram {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Telegram{
		sender:   s,
		chat:     &tele.Chat{ID: cfg.ChatID},
		threadID: cfg.ThreadID,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		log:      log.With(logx.String("sink", "telegram")),
	}
}

func (t *Telegram) Post(ctx context.Context, msg domain.Message) error {
	text := msg.Text()
	if msg.ImageURL != "" {
		caption := text
		rest := ""
		if len([]rune(caption)) > telegramCaptionLimit {
			caption, rest = msg.Title, msg.Body
		}
		err := t.send(ctx, &tele.Photo{File: tele.FromURL(msg.ImageURL), Caption: caption})
		if err == nil {
			if rest == "" {
				return nil
			}
			return t.sendText(ctx, rest)
		}
		if ctx.Err() != nil {
			return err
		}
		// Telegram rejects unreachable or oversized images; fall back to text.
		t.log.Warn("photo send failed; sending as text", logx.String("image", msg.ImageURL), logx.Err(err))
	}
	return t.sendText(ctx, text)
}

func (t *Telegram) sendText(ctx context.Context, text string) error {
	for _, chunk := range splitText(text, telegramTextLimit) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if err := t.send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, what interface{}) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	opt := &tele.SendOptions{ThreadID: t.threadID, DisableWebPagePreview: true}
	_, err := t.sender.Send(t.chat, what, opt)
	return err
}

// splitText splits long messages into chunks that fit one Telegram message,
// preferring newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
