package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ErrNoAddress means the recipient has nothing configured for a channel
var ErrNoAddress = errors.New("recipient has no address for channel")

// Sender delivers a notice over one channel. It returns a provider message id
// when the provider issues one.
type Sender interface {
	Name() string
	Send(ctx context.Context, to Recipient, notice Notice) (string, error)
}

// =====================================================
// Email (SES v2)
// =====================================================

// SESAPI is the subset of the SES v2 client used here
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailChannel sends notices through Amazon SES
type EmailChannel struct {
	client SESAPI
	from   string
}

func NewEmailChannel(client SESAPI, from string) *EmailChannel {
	return &EmailChannel{client: client, from: from}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, to Recipient, notice Notice) (string, error) {
	if to.Email == "" {
		return "", ErrNoAddress
	}
	out, err := c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{to.Email}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(notice.Subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(notice.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// =====================================================
// SMS (SNS)
// =====================================================

// SNSAPI is the subset of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSChannel sends notices as transactional SMS through Amazon SNS
type SMSChannel struct {
	client   SNSAPI
	senderID string
}

func NewSMSChannel(client SNSAPI, senderID string) *SMSChannel {
	return &SMSChannel{client: client, senderID: senderID}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Send(ctx context.Context, to Recipient, notice Notice) (string, error) {
	if to.Phone == "" {
		return "", ErrNoAddress
	}
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if c.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(c.senderID)}
	}
	out, err := c.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to.Phone),
		Message:           aws.String(notice.Text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// =====================================================
// Telegram
// =====================================================

// DefaultTelegramURL is the Bot API endpoint
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramChannel posts notices through the recipient's own bot
type TelegramChannel struct {
	baseURL string
	client  *http.Client
}

func NewTelegramChannel(baseURL string, timeout time.Duration) *TelegramChannel {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *TelegramChannel) Name() string { return ChannelTelegram }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (c *TelegramChannel) Send(ctx context.Context, to Recipient, notice Notice) (string, error) {
	if to.TelegramBotToken == "" || to.TelegramChatID == "" {
		return "", ErrNoAddress
	}
	body, err := json.Marshal(map[string]string{
		"chat_id": to.TelegramChatID,
		"text":    notice.Text,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, to.TelegramBotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// the url carries the bot token
		return "", errors.New("failed to reach telegram")
	}
	defer resp.Body.Close()

	var parsed telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode telegram response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("telegram rejected message: %s", parsed.Description)
	}
	return fmt.Sprintf("%d", parsed.Result.MessageID), nil
}
