// Package alert notifies a configured emergency responder line when trigger
// phrases are detected in a conversation.
//
// Notification is strictly best-effort: a failed or unconfigured notifier
// never blocks or surfaces into the user-visible conversation flow. The alert
// body carries the opaque user ID and the matched phrases, nothing else.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Notifier delivers emergency escalation notices to responders.
type Notifier interface {
	NotifyEmergency(ctx context.Context, userID string, triggers []string) error
}

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithToNumber sets the responder phone number that receives alerts.
func WithToNumber(to string) Option {
	return func(o *Opts) { o.To = to }
}

// messageCreator is the minimal slice of the Twilio REST API used here,
// narrowed for testability.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier sends escalation SMS via the Twilio API.
type TwilioNotifier struct {
	api  messageCreator
	from string
	to   string
}

// NewTwilioNotifier creates a notifier from options, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER, and
// ALERT_TO_NUMBER environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.To == "" {
		cfg.To = os.Getenv("ALERT_TO_NUMBER")
	}
	slog.Debug("alert.NewTwilioNotifier: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"To_set", cfg.To != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("from and to numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioNotifier{api: client.Api, from: cfg.From, to: cfg.To}, nil
}

// NotifyEmergency sends one escalation SMS for a trigger detection.
func (n *TwilioNotifier) NotifyEmergency(ctx context.Context, userID string, triggers []string) error {
	body := fmt.Sprintf("SafeSpeak emergency signal from user %s. Triggers: %s.", userID, strings.Join(triggers, ", "))

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(body)

	if _, err := n.api.CreateMessage(params); err != nil {
		slog.Error("alert.NotifyEmergency: send failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to send emergency alert for %s: %w", userID, err)
	}
	slog.Info("alert.NotifyEmergency: alert sent", "userID", userID, "triggerCount", len(triggers))
	return nil
}

// NoopNotifier is used when no responder line is configured.
type NoopNotifier struct{}

// NotifyEmergency logs the detection and does nothing else.
func (NoopNotifier) NotifyEmergency(ctx context.Context, userID string, triggers []string) error {
	slog.Debug("alert.NoopNotifier: emergency detected, no responder configured", "userID", userID, "triggers", triggers)
	return nil
}
