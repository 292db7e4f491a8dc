package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSSendAPI is the part of *sqs.Client used to enqueue messages.
type SQSSendAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSender puts messages on the queue drained by the SMS relay.
type SQSSender struct {
	client   SQSSendAPI
	queueURL string
}

func NewSQSSender(client SQSSendAPI, queueURL string) *SQSSender {
	return &SQSSender{client: client, queueURL: queueURL}
}

func (s *SQSSender) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipient_user_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.RecipientUserID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("enqueue sms %s: %w", msg.ID, err)
	}
	return nil
}
