// Package events publishes domain notifications (payment lifecycle,
// display-currency changes, rate refreshes) to an AMQP exchange. The
// publisher is optional: a nil *Client skips publishing entirely, so the
// service runs unchanged without a broker.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,
		c.queueName, // routing key, same as queue for direct exchange
		c.exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// Publish sends one envelope. A nil client is a no-op so callers never
// need to branch on broker availability.
func (c *Client) Publish(ctx context.Context, env *Envelope) error {
	if c == nil {
		return nil
	}
	body, err := env.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		c.queueName,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}

	slog.InfoContext(ctx, "Published event",
		"kind", env.Kind,
		"entity_id", env.EntityID,
		"exchange", c.exchangeName)
	return nil
}

// PublishPaymentEvent publishes a payment lifecycle notification.
func (c *Client) PublishPaymentEvent(ctx context.Context, kind, paymentID string) error {
	return c.Publish(ctx, NewEnvelope(kind, paymentID, nil))
}

// PublishCurrencyChanged broadcasts a display-currency switch so other
// consumers can re-project their aggregates.
func (c *Client) PublishCurrencyChanged(ctx context.Context, code string) error {
	return c.Publish(ctx, NewEnvelope(CurrencyChanged, "", map[string]string{"currency": code}))
}

// PublishRatesRefreshed announces a fresh exchange-rate snapshot.
func (c *Client) PublishRatesRefreshed(ctx context.Context, currencies int, fetchedAt time.Time) error {
	return c.Publish(ctx, NewEnvelope(RatesRefreshed, "", map[string]string{
		"currencies": fmt.Sprintf("%d", currencies),
		"fetched_at": fetchedAt.UTC().Format(time.RFC3339),
	}))
}

// Consume delivers envelopes from the queue to handler until the context
// ends. Handler errors requeue the delivery; undecodable messages are
// dropped.
func (c *Client) Consume(ctx context.Context, handler func(*Envelope) error) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		"",    // consumer
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			env, err := EnvelopeFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal envelope", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(env); err != nil {
				slog.ErrorContext(ctx, "Failed to handle event",
					"error", err,
					"kind", env.Kind,
					"entity_id", env.EntityID)
				delivery.Nack(false, true)
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
