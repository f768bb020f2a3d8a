package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var ErrSMSRejected = errors.New("sms gateway rejected message")

// SMSClient talks to the SMS gateway's JSON API. Transport errors, 429 and
// 5xx responses are retried; a 2xx with a non-"ok" result is final.
type SMSClient struct {
	http   *retryablehttp.Client
	url    string
	apiKey string
	sender string
}

func NewSMSClient(url, apiKey, sender string, retries int, timeout time.Duration, log logrus.FieldLogger) *SMSClient {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = leveledLogrus{log: log.WithField("component", "sms")}

	return &SMSClient{
		http:   client,
		url:    url,
		apiKey: apiKey,
		sender: sender,
	}
}

type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// Send delivers one message and returns the gateway's message id.
func (c *SMSClient) Send(ctx context.Context, to, text string) (string, error) {
	payload, err := json.Marshal(smsRequest{From: c.sender, To: to, Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to encode sms: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read sms response: %w", err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: status %d: %s", ErrSMSRejected, res.StatusCode, gjson.GetBytes(body, "error.message").String())
	}

	if result := gjson.GetBytes(body, "result").String(); result != "ok" {
		return "", fmt.Errorf("%w: %s", ErrSMSRejected, gjson.GetBytes(body, "error.message").String())
	}

	return gjson.GetBytes(body, "message_id").String(), nil
}

// leveledLogrus adapts logrus to retryablehttp.LeveledLogger.
type leveledLogrus struct {
	log logrus.FieldLogger
}

func (l leveledLogrus) fields(kv []interface{}) logrus.FieldLogger {
	entry := l.log
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			entry = entry.WithField(k, kv[i+1])
		}
	}
	return entry
}

func (l leveledLogrus) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogrus) Info(msg string, kv ...interface{})  { l.fields(kv).Info(msg) }
func (l leveledLogrus) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }
func (l leveledLogrus) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
