package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// SQSReceiveAPI is the part of *sqs.Client the relay consumes.
type SQSReceiveAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Gateway hands a message to the SMS provider.
type Gateway interface {
	SendSMS(ctx context.Context, msg Message) error
}

// WebhookGateway posts messages as JSON to an SMS provider webhook. The
// provider resolves the recipient's phone number from the user id.
type WebhookGateway struct {
	url    string
	client *http.Client
}

func NewWebhookGateway(url string, timeout time.Duration) *WebhookGateway {
	return &WebhookGateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *WebhookGateway) SendSMS(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{
		"id":      msg.ID,
		"user_id": msg.RecipientUserID,
		"content": msg.Text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}

type RelayOptions struct {
	QueueURL string
	Wait     time.Duration // long-poll wait, capped at 20s by SQS
	Logger   zerolog.Logger
}

// Relay moves queued messages to the SMS gateway. A message is deleted from
// the queue only once the gateway accepted it, so failures are redelivered by
// SQS after the visibility timeout.
type Relay struct {
	queue    SQSReceiveAPI
	gateway  Gateway
	queueURL string
	wait     int32
	log      zerolog.Logger
}

func NewRelay(queue SQSReceiveAPI, gateway Gateway, opts RelayOptions) *Relay {
	wait := int32(opts.Wait / time.Second)
	wait = min(max(wait, 0), 20)

	return &Relay{
		queue:    queue,
		gateway:  gateway,
		queueURL: opts.QueueURL,
		wait:     wait,
		log:      opts.Logger,
	}
}

// Run polls until ctx is cancelled. Receive errors are logged and retried
// after a short pause.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := r.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			r.log.Error().Err(err).Msg("poll notification queue")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// PollOnce receives one batch and returns how many messages reached the gateway.
func (r *Relay) PollOnce(ctx context.Context) (int, error) {
	resp, err := r.queue.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(r.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     r.wait,
	})
	if err != nil {
		return 0, fmt.Errorf("receive: %w", err)
	}

	delivered := 0
	for _, m := range resp.Messages {
		if r.handle(ctx, m) {
			delivered++
		}
	}
	return delivered, nil
}

func (r *Relay) handle(ctx context.Context, raw types.Message) bool {
	var msg Message
	if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &msg); err != nil || msg.RecipientUserID == "" {
		// Redelivering a message that cannot be decoded would never succeed.
		r.log.Error().Err(err).Str("sqs_message_id", aws.ToString(raw.MessageId)).Msg("discarding malformed notification")
		r.delete(ctx, raw)
		return false
	}

	if err := r.gateway.SendSMS(ctx, msg); err != nil {
		r.log.Warn().
			Err(fmt.Errorf("%w: %v", ErrDeliveryFailed, err)).
			Str("message_id", msg.ID).
			Str("user_id", msg.RecipientUserID).
			Msg("sms not sent, leaving for redelivery")
		return false
	}

	r.delete(ctx, raw)
	r.log.Info().Str("message_id", msg.ID).Str("user_id", msg.RecipientUserID).Msg("sms sent")
	return true
}

func (r *Relay) delete(ctx context.Context, raw types.Message) {
	_, err := r.queue.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueURL),
		ReceiptHandle: raw.ReceiptHandle,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("sqs_message_id", aws.ToString(raw.MessageId)).Msg("delete queue message")
	}
}
