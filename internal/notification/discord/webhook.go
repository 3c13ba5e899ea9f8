// internal/notification/discord/webhook.go
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/assist-by/sentinel/internal/domain"
)

// Client는 Discord 웹훅 알림 클라이언트입니다
type Client struct {
	infoWebhook  string
	errorWebhook string
	tradeWebhook string
	httpClient   *http.Client
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 HTTP 클라이언트의 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient는 새로운 Discord 알림 클라이언트를 생성합니다
func NewClient(infoWebhook, errorWebhook, tradeWebhook string, opts ...ClientOption) *Client {
	c := &Client{
		infoWebhook:  infoWebhook,
		errorWebhook: errorWebhook,
		tradeWebhook: tradeWebhook,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SendInfo는 일반 정보 알림을 전송합니다
func (c *Client) SendInfo(ctx context.Context, message string) error {
	embed := NewEmbed().
		SetDescription(message).
		SetColor(ColorInfo).
		SetFooter("Position Sentinel 🛡️").
		SetTimestamp(time.Now())

	return c.sendToWebhook(ctx, c.infoWebhook, WebhookMessage{
		Embeds: []Embed{*embed},
	})
}

// SendError는 에러 알림을 전송합니다
func (c *Client) SendError(ctx context.Context, err error) error {
	embed := NewEmbed().
		SetTitle("에러 발생").
		SetDescription(fmt.Sprintf("```%v```", err)).
		SetColor(ColorError).
		SetFooter("Position Sentinel 🛡️").
		SetTimestamp(time.Now())

	return c.sendToWebhook(ctx, c.errorWebhook, WebhookMessage{
		Embeds: []Embed{*embed},
	})
}

// SendTradeInfo는 청산 거래 알림을 전송합니다
func (c *Client) SendTradeInfo(ctx context.Context, result domain.TradeResult) error {
	color := ColorSuccess
	emoji := "✅"
	if result.RealizedPnL < 0 {
		color = ColorError
		emoji = "🔻"
	}

	embed := NewEmbed().
		SetTitle(fmt.Sprintf("%s 포지션 청산: %s", emoji, result.Symbol)).
		SetDescription(fmt.Sprintf(
			"**방향**: %s\n**수량**: %.8f\n**진입가**: $%.2f\n**청산가**: $%.2f\n**실현 손익**: $%.2f\n**사유**: %s",
			result.PositionSide, result.Quantity, result.EntryPrice, result.ExitPrice,
			result.RealizedPnL, result.Reason,
		)).
		SetColor(color).
		SetFooter("Position Sentinel 🛡️").
		SetTimestamp(result.ClosedAt)

	return c.sendToWebhook(ctx, c.tradeWebhook, WebhookMessage{
		Embeds: []Embed{*embed},
	})
}

// sendToWebhook은 웹훅 URL로 메시지를 전송합니다
// URL이 비어 있으면 조용히 건너뜁니다
func (c *Client) sendToWebhook(ctx context.Context, webhookURL string, msg WebhookMessage) error {
	if webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("웹훅 메시지 직렬화 실패: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("웹훅 요청 생성 실패: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("웹훅 전송 실패: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("웹훅 응답 에러 (상태 코드: %d): %s", resp.StatusCode, string(body))
	}

	return nil
}
