package redisstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wrale/device-auth/internal/graphql"
)

// Publisher sends subscription results to the channels a Dialer listens on
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

// NewPublisher creates a publisher. An empty prefix uses DefaultPrefix.
func NewPublisher(client redis.UniversalClient, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{client: client, prefix: prefix}
}

// Next publishes data as the next result for field and requestID. It
// returns the number of subscribers that received it.
func (p *Publisher) Next(ctx context.Context, field, requestID string, data any) (int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshaling data: %w", err)
	}
	payload, err := json.Marshal(graphql.Response{Data: raw})
	if err != nil {
		return 0, fmt.Errorf("marshaling payload: %w", err)
	}
	return p.publish(ctx, field, requestID, graphql.Message{Type: graphql.MsgNext, Payload: payload})
}

// Errors publishes a GraphQL error frame, which ends the subscription
func (p *Publisher) Errors(ctx context.Context, field, requestID string, errs graphql.Errors) (int64, error) {
	payload, err := json.Marshal(errs)
	if err != nil {
		return 0, fmt.Errorf("marshaling errors: %w", err)
	}
	return p.publish(ctx, field, requestID, graphql.Message{Type: graphql.MsgError, Payload: payload})
}

// Complete ends the subscription without a result
func (p *Publisher) Complete(ctx context.Context, field, requestID string) (int64, error) {
	return p.publish(ctx, field, requestID, graphql.Message{Type: graphql.MsgComplete})
}

func (p *Publisher) publish(ctx context.Context, field, requestID string, msg graphql.Message) (int64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshaling message: %w", err)
	}

	channel := Channel(p.prefix, field, requestID)
	n, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return n, nil
}
