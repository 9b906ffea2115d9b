package sqs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/example/retail-orders/internal/apperr"
)

// API is the subset of *sqs.Client used by Sender.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Sender puts order payloads on an SQS queue. Redelivery and the poison
// message limit are handled by the queue's redrive policy.
type Sender struct {
	client   API
	queueURL string
}

func NewSender(client API, queueURL string) *Sender {
	return &Sender{client: client, queueURL: queueURL}
}

func (s *Sender) Send(ctx context.Context, payload string) error {
	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(payload),
	})
	if err != nil {
		return apperr.Transient(fmt.Errorf("sqs send: %w", err))
	}
	return nil
}
