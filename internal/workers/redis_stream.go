package workers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/features/lives/models"
	livesrepo "barn-economy-backend/internal/features/lives/repository"

	go_redis "github.com/redis/go-redis/v9"
)

const eventPaymentConfirmed = "payment_confirmed"

// PurchaseApplier credits a confirmed payment.
type PurchaseApplier interface {
	ApplyPurchase(ctx context.Context, p *models.Purchase) error
}

type StreamConfig struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
}

// PaymentStreamWorker consumes payment events published by the payments
// service and credits extra lives, attempts or passes.
type PaymentStreamWorker struct {
	rdb       go_redis.UniversalClient
	purchases PurchaseApplier
	cfg       StreamConfig
}

func NewPaymentStreamWorker(rdb go_redis.UniversalClient, purchases PurchaseApplier, cfg StreamConfig) *PaymentStreamWorker {
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &PaymentStreamWorker{rdb: rdb, purchases: purchases, cfg: cfg}
}

// Start reads the stream until ctx is cancelled.
func (w *PaymentStreamWorker) Start(ctx context.Context) {
	// Ensure consumer group exists
	err := w.rdb.XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		logger.Error().Err(err).Str("stream", w.cfg.Stream).Msg("Failed to create consumer group")
	}

	logger.Info().Str("stream", w.cfg.Stream).Str("group", w.cfg.Group).Msg("Starting payment stream worker")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Stopping payment stream worker")
			return
		default:
		}

		if _, err := w.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Str("stream", w.cfg.Stream).Msg("Error reading from stream")
			time.Sleep(time.Second)
		}
	}
}

// poll reads one batch and returns how many messages were acknowledged.
func (w *PaymentStreamWorker) poll(ctx context.Context) (int, error) {
	entries, err := w.rdb.XReadGroup(ctx, &go_redis.XReadGroupArgs{
		Group:    w.cfg.Group,
		Consumer: w.cfg.Consumer,
		Streams:  []string{w.cfg.Stream, ">"},
		Count:    10,
		Block:    w.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, go_redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range entries {
		for _, msg := range stream.Messages {
			if !w.processMessage(ctx, msg) {
				// left pending for redelivery
				continue
			}
			if err := w.rdb.XAck(ctx, w.cfg.Stream, w.cfg.Group, msg.ID).Err(); err != nil {
				logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to ack payment event")
				continue
			}
			acked++
		}
	}
	return acked, nil
}

// processMessage reports whether the message is done with. Malformed events
// and duplicates are done; transient failures are not.
func (w *PaymentStreamWorker) processMessage(ctx context.Context, msg go_redis.XMessage) bool {
	values := msg.Values
	eventType, _ := values["type"].(string)
	if eventType != eventPaymentConfirmed {
		return true
	}

	purchase, err := parsePurchase(values)
	if err != nil {
		logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed payment event")
		return true
	}

	err = w.purchases.ApplyPurchase(ctx, purchase)
	switch {
	case err == nil:
		logger.Info().
			Str("user_id", purchase.UserID).
			Str("kind", string(purchase.Kind)).
			Int("quantity", purchase.Quantity).
			Str("reference", purchase.Reference).
			Msg("Payment credited")
		return true
	case errors.Is(err, livesrepo.ErrDuplicatePayment):
		logger.Info().Str("reference", purchase.Reference).Msg("Payment already credited")
		return true
	default:
		logger.Error().Err(err).Str("reference", purchase.Reference).Msg("Failed to credit payment")
		return false
	}
}

func parsePurchase(values map[string]interface{}) (*models.Purchase, error) {
	str := func(k string) string {
		v, _ := values[k].(string)
		return v
	}

	p := &models.Purchase{
		UserID:    str("user_id"),
		Kind:      models.PurchaseKind(str("kind")),
		Reference: str("reference"),
	}
	if p.UserID == "" || p.Reference == "" {
		return nil, errors.New("user_id and reference are required")
	}
	if !p.Kind.Valid() {
		return nil, errors.New("unknown purchase kind " + strconv.Quote(string(p.Kind)))
	}
	q, err := strconv.Atoi(str("quantity"))
	if err != nil || q <= 0 {
		return nil, errors.New("quantity must be a positive integer")
	}
	p.Quantity = q
	return p, nil
}
