// internal/notify/telegram.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/solpayhub/payhub/internal/insight"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram sends chat alerts for delivered insights and executed
// sells. An unconfigured client (empty token or chat id) is a no-op,
// and send failures never propagate to callers.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewTelegram(token, chatID string, logger *zap.Logger) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPIBase,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.Named("telegram"),
	}
}

func (t *Telegram) configured() bool {
	return t.token != "" && t.chatID != ""
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string          `json:"chat_id"`
	Text        string          `json:"text"`
	ParseMode   string          `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboard `json:"reply_markup,omitempty"`
}

// SignalInsight announces a freshly unlocked insight with a TRADE NOW
// button.
func (t *Telegram) SignalInsight(ctx context.Context, payload *insight.Insight) error {
	if !t.configured() {
		t.logger.Debug("Telegram not configured, skipping insight signal")
		return nil
	}

	text := fmt.Sprintf(
		"<b>NEW AI INSIGHT</b>\nMeme: <b>%s</b>\nScore: <b>%d/100</b>\nArb: %s\nRisk: <b>%s</b>",
		payload.Meme, payload.Score, payload.Arb, payload.Risk)

	keyboard := &inlineKeyboard{
		InlineKeyboard: [][]inlineKeyboardButton{{
			{
				Text:         "TRADE NOW",
				CallbackData: fmt.Sprintf("TRADE_%s_%d", payload.Meme, time.Now().UnixMilli()),
			},
		}},
	}

	return t.send(ctx, &sendMessageRequest{
		ChatID:      t.chatID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
}

// SellAlert announces an executed auto-sell with its settlement
// signature.
func (t *Telegram) SellAlert(ctx context.Context, tokenMint string, profitPct float64, signature string) error {
	if !t.configured() {
		t.logger.Debug("Telegram not configured, skipping sell alert")
		return nil
	}

	text := fmt.Sprintf("Sold %s +%.2f%% | TX: https://solscan.io/tx/%s",
		tokenMint, profitPct, signature)

	return t.send(ctx, &sendMessageRequest{
		ChatID: t.chatID,
		Text:   text,
	})
}

func (t *Telegram) send(ctx context.Context, msg *sendMessageRequest) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, string(body))
	}

	t.logger.Debug("Telegram message sent")
	return nil
}
