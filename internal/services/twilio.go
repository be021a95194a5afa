package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Ananth-NQI/whatsapp-relay/internal/config"
)

const whatsappPrefix = "whatsapp:"

// messageCreator is the slice of the Twilio REST API the messenger needs
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioService struct {
	api  messageCreator
	from string // Twilio WhatsApp sender, "whatsapp:+14155238886"
	log  logrus.FieldLogger
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg config.TwilioConfig, log logrus.FieldLogger) (*TwilioService, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.WhatsAppFrom == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return newTwilioService(client.Api, cfg.WhatsAppFrom, log), nil
}

func newTwilioService(api messageCreator, from string, log logrus.FieldLogger) *TwilioService {
	return &TwilioService{
		api:  api,
		from: whatsappAddress(from),
		log:  log,
	}
}

// Send delivers a WhatsApp text message and returns the message SID. The
// REST call itself takes no context, so cancellation only stops the wait.
func (t *TwilioService) Send(ctx context.Context, to, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(whatsappAddress(to))
	params.SetBody(text)

	type result struct {
		resp *twilioApi.ApiV2010Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := t.api.CreateMessage(params)
		done <- result{resp, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-done:
	}

	if res.err != nil {
		t.log.WithError(res.err).WithField("to", to).Error("❌ Failed to send WhatsApp message")
		return "", res.err
	}
	resp := res.resp
	if resp == nil {
		return "", fmt.Errorf("twilio returned no message")
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return "", fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	t.log.WithFields(logrus.Fields{"to": to, "delivery_id": sid}).Info("✅ WhatsApp message sent")
	return sid, nil
}

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(strings.ToLower(number), whatsappPrefix) {
		return whatsappPrefix + number[len(whatsappPrefix):]
	}
	return whatsappPrefix + number
}
