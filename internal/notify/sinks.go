package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"slguard/internal/models"
	"slguard/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WebhookSink отправляет оповещение POST запросом с JSON телом
type WebhookSink struct {
	url    string
	client *resty.Client
}

// NewWebhookSink создаёт sink для url
func NewWebhookSink(url string) *WebhookSink {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, alert *models.Alert) error {
	resp, err := s.client.R().SetContext(ctx).SetBody(alert).Post(s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook responded %d", resp.StatusCode())
	}
	return nil
}

// Broadcaster - лента WebSocket
type Broadcaster interface {
	BroadcastAlert(alert interface{}) bool
}

// HubSink пишет оповещения в ленту операторов
type HubSink struct {
	hub Broadcaster
}

func NewHubSink(hub Broadcaster) *HubSink { return &HubSink{hub: hub} }

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Send(_ context.Context, alert *models.Alert) error {
	if !s.hub.BroadcastAlert(alert) {
		return fmt.Errorf("broadcast queue full")
	}
	return nil
}

// LogSink пишет оповещение в лог с уровнем по Severity
type LogSink struct {
	logger *utils.Logger
}

func NewLogSink(logger *utils.Logger) *LogSink {
	if logger == nil {
		logger = utils.L()
	}
	return &LogSink{logger: logger.WithComponent("alert")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, alert *models.Alert) error {
	fields := []utils.Field{
		utils.String("type", alert.Type),
		utils.Account(alert.AccountID),
		utils.Figi(alert.Figi),
	}
	switch alert.Severity {
	case models.SeverityError:
		s.logger.Error(alert.Message, fields...)
	case models.SeverityInfo:
		s.logger.Info(alert.Message, fields...)
	default:
		s.logger.Warn(alert.Message, fields...)
	}
	return nil
}
