package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"pwanotify/internal/metrics"
)

type WhatsAppOptions struct {
	APIURL        string
	PhoneNumberID string
	AccessToken   string
	DryRun        bool
	Timeout       time.Duration
	MaxRetries    uint64
	// CodeTTL is only quoted in the message text.
	CodeTTL time.Duration
	// BaseBackoff is the first retry delay, doubled on every attempt.
	BaseBackoff time.Duration
}

// WhatsAppClient delivers OTP codes through the WhatsApp Cloud API.
type WhatsAppClient struct {
	opts    WhatsAppOptions
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type SendMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

func NewWhatsAppClient(opts WhatsAppOptions, logger *slog.Logger, m *metrics.Metrics) *WhatsAppClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppClient{
		opts:    opts,
		http:    &http.Client{Timeout: opts.Timeout},
		logger:  logger,
		metrics: m,
	}
}

func (c *WhatsAppClient) dryRun() bool {
	return c.opts.DryRun || c.opts.AccessToken == "" || c.opts.AccessToken == "dry-run"
}

// OTPMessage is the text delivered to the user.
func OTPMessage(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your verification code is: %s. It expires in %s.", code, humanDuration(ttl))
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	}
	return plural(int(d.Round(time.Second)/time.Second), "second")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// SendOTP sends the code to phone. Transient failures (network, 429, 5xx)
// are retried with exponential backoff.
func (c *WhatsAppClient) SendOTP(ctx context.Context, phone, code string) error {
	to := strings.TrimPrefix(phone, "+")

	// DRY-RUN: не делаем HTTP-запрос
	if c.dryRun() {
		c.logger.InfoContext(ctx, "whatsapp dry-run", "to", to, "code", code)
		c.metrics.RecordWhatsAppDelivery(metrics.StatusDryRun)
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": OTPMessage(code, c.opts.CodeTTL)},
	})
	if err != nil {
		return oops.Code("WHATSAPP_ENCODE").Wrap(err)
	}

	url := strings.TrimRight(c.opts.APIURL, "/") + "/" + c.opts.PhoneNumberID + "/messages"
	backoff := retry.WithMaxRetries(c.opts.MaxRetries, retry.NewExponential(c.opts.BaseBackoff))

	var messageID string
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := c.post(ctx, url, body)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		c.metrics.RecordWhatsAppDelivery(metrics.StatusError)
		return oops.Code("WHATSAPP_SEND_FAILED").With("to", to).Wrap(err)
	}

	c.metrics.RecordWhatsAppDelivery(metrics.StatusSuccess)
	c.logger.InfoContext(ctx, "whatsapp otp sent", "to", to, "message_id", messageID)
	return nil
}

func (c *WhatsAppClient) post(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", retry.RetryableError(fmt.Errorf("whatsapp request: %w", err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var result SendMessageResponse
	_ = json.Unmarshal(raw, &result)

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if result.Error != nil {
			msg = result.Error.Message
		}
		err := fmt.Errorf("whatsapp returned %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.RetryableError(err)
		}
		return "", err
	}
	if len(result.Messages) == 0 {
		return "", fmt.Errorf("whatsapp response has no message id")
	}
	return result.Messages[0].ID, nil
}
