package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
)

const (
	priceStream   = "SYNTH_PRICES"
	priceSubject  = "synth.prices.>"
	priceConsumer = "synth-oracle"
)

// PriceSink applies a validated oracle quote. Each configured engine is a
// sink; the same quote is applied to all of them because the price board is
// shared.
type PriceSink interface {
	SetOraclePrice(asset ledger.AssetID, price fixed.Value) error
}

// PriceFeed consumes oracle quotes from JetStream and applies them to the
// engines. Bad payloads and unknown symbols are ACKed and counted; they will
// never succeed on redelivery. Transient apply failures are NAKed.
type PriceFeed struct {
	js       jetstream.JetStream
	ledger   *ledger.Ledger
	sinks    []PriceSink
	metrics  *observability.Metrics
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewPriceFeed(
	js jetstream.JetStream,
	l *ledger.Ledger,
	sinks []PriceSink,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *PriceFeed {
	return &PriceFeed{js: js, ledger: l, sinks: sinks, metrics: metrics, log: log}
}

// EnsureStream creates the price stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      priceStream,
		Subjects:  []string{priceSubject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", priceStream, err)
	}
	return nil
}

// Subscribe creates the durable consumer and starts delivery.
func (f *PriceFeed) Subscribe(ctx context.Context) error {
	consumer, err := f.js.CreateOrUpdateConsumer(ctx, priceStream, jetstream.ConsumerConfig{
		Durable:       priceConsumer,
		FilterSubject: priceSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", priceConsumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		f.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", priceConsumer, err)
	}
	f.consumer = cc
	f.log.Info().Str("subject", priceSubject).Str("consumer", priceConsumer).Msg("price feed subscribed")
	return nil
}

func (f *PriceFeed) handle(msg jetstream.Msg) {
	update, err := ParsePriceUpdate(msg.Data())
	if err != nil {
		f.reject(msg, "parse", err)
		return
	}
	asset, ok := f.ledger.AssetBySymbol(update.Symbol)
	if !ok {
		f.reject(msg, "unknown_symbol", fmt.Errorf("unknown symbol %q", update.Symbol))
		return
	}
	for _, sink := range f.sinks {
		if err := sink.SetOraclePrice(asset, update.Price); err != nil {
			f.log.Warn().Str("symbol", update.Symbol).Err(err).Msg("price apply failed, redelivering")
			msg.Nak()
			return
		}
	}
	if f.metrics != nil {
		f.metrics.PricesIngested.WithLabelValues(update.Symbol).Inc()
	}
	msg.Ack()
}

// reject ACKs a permanently bad message so it is not redelivered.
func (f *PriceFeed) reject(msg jetstream.Msg, reason string, err error) {
	if f.metrics != nil {
		f.metrics.PricesRejected.WithLabelValues(reason).Inc()
	}
	f.log.Warn().Str("reason", reason).Err(err).Msg("price update rejected")
	msg.Ack()
}

// Stop halts delivery; in-flight messages finish first.
func (f *PriceFeed) Stop() {
	if f.consumer != nil {
		f.consumer.Stop()
	}
	f.log.Info().Msg("price feed stopped")
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
