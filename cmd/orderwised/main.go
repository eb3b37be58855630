package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/orderwise/orderwise/api/status"
	"github.com/orderwise/orderwise/config"
	"github.com/orderwise/orderwise/idempotency"
	"github.com/orderwise/orderwise/log"
	"github.com/orderwise/orderwise/outbox"
	"github.com/orderwise/orderwise/pubsub/endpoint"
	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/pubsub/subscriber"
	"github.com/orderwise/orderwise/pubsub/transport"
	amqpTransport "github.com/orderwise/orderwise/pubsub/transport/amqp"
	kafkaTransport "github.com/orderwise/orderwise/pubsub/transport/kafka"
	"github.com/orderwise/orderwise/runtime/scheme"
	sagaPkg "github.com/orderwise/orderwise/saga"
	"github.com/orderwise/orderwise/saga/contracts"
	"github.com/orderwise/orderwise/saga/handler"
	"github.com/orderwise/orderwise/timeout"
)

func main() {
	configPath := flag.String("config", "orderwised.yaml", "path to the config file")
	flag.Parse()

	logger := log.ZerologAdapter(zerolog.New(os.Stdout).With().Timestamp().Logger())

	cfg, err := config.Load(*configPath)

	if err != nil {
		logger.Log(log.FatalLevel, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Log(log.FatalLevel, err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDB(cfg.Storage)

	if err != nil {
		return err
	}

	defer db.Close()

	marshaller := message.NewJsonMarshaller(scheme.KnownTypesRegistryInstance)

	store, err := sagaPkg.NewSQLStore(db, sagaPkg.SQLDriver(cfg.Storage.Driver), marshaller)

	if err != nil {
		return err
	}

	bus, err := connectTransport(ctx, cfg.Broker, logger)

	if err != nil {
		return err
	}

	ledger := idempotency.NewDurableLedger(store)

	if cfg.Redis.Addr != "" {
		ledger = idempotency.NewRedisLedger(
			redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}),
			store,
			logger,
		)
	}

	eventsHandler := handler.NewOrderEventsHandler(
		store,
		sagaPkg.NewDecider(cfg.Saga.MaxDeliveryAttempts),
		ledger,
		cfg.SLAWindows(),
		logger,
		handler.WithCommitRetries(cfg.Saga.CommitRetries),
	)

	commandsEndpoint := endpoint.NewTransportEndpoint(
		"commands",
		bus,
		transport.DeliveryDestination{DestinationTopic: cfg.Broker.CommandsTopic},
		marshaller,
	)
	notificationsEndpoint := endpoint.NewTransportEndpoint(
		"notifications",
		bus,
		transport.DeliveryDestination{DestinationTopic: cfg.Broker.NotificationsTopic},
		marshaller,
	)
	inboundEndpoint := endpoint.NewTransportEndpoint(
		"saga_inbound",
		bus,
		transport.DeliveryDestination{DestinationTopic: cfg.Broker.InboundTopic},
		marshaller,
	)

	router := endpoint.NewRouter()
	router.RegisterEndpoint(commandsEndpoint,
		&contracts.AuthorizePayment{},
		&contracts.CapturePayment{},
		&contracts.RefundPayment{},
		&contracts.ReserveInventory{},
		&contracts.CommitReservation{},
		&contracts.ReleaseReservation{},
		&contracts.RequestFulfillment{},
		&contracts.RequestRedispatch{},
	)
	router.RegisterEndpoint(notificationsEndpoint,
		&contracts.OrderPlaced{},
		&contracts.OrderCancelled{},
		&contracts.OrderDelivered{},
	)

	relay := outbox.NewRelay(store, router, logger)
	go relay.Run(ctx)

	scheduler := timeout.NewScheduler(store, inboundEndpoint, logger)
	go scheduler.Run(ctx)

	go serveAPI(cfg.API, store, logger)

	subOpts := []subscriber.Opt{
		subscriber.WithConfig(&subscriber.Config{
			WorkersCount:             cfg.Saga.Workers,
			PackageProcessingMaxTime: subscriber.DefaultConfig.PackageProcessingMaxTime,
			GracefulShutdownTimeout:  subscriber.DefaultConfig.GracefulShutdownTimeout,
		}),
	}

	if cfg.Broker.Kind == "amqp" {
		// don't pull more off the queue than the workers can hold
		subOpts = append(subOpts, subscriber.WithConsumeOpts(amqpTransport.WithQosPrefetchCount(cfg.Saga.Workers)))
	}

	sub := subscriber.NewSubscriber(
		bus,
		subscriber.NewMessageProcessor(marshaller, eventsHandler, logger),
		logger,
		subOpts...,
	)

	return sub.Run(ctx, inboundQueue(cfg.Broker))
}

func openDB(cfg config.Storage) (*sql.DB, error) {
	driverName := "mysql"

	if cfg.Driver == string(sagaPkg.PGDriver) {
		driverName = "pgx"
	}

	return sql.Open(driverName, cfg.DSN)
}

func connectTransport(ctx context.Context, cfg config.Broker, logger log.Logger) (transport.Transport, error) {
	var bus transport.Transport

	if cfg.Kind == "kafka" {
		bus = kafkaTransport.NewTransport(cfg.Addrs, cfg.InboundQueue, logger)
	} else {
		bus = amqpTransport.NewTransport(cfg.Addrs[0], logger)
	}

	if err := bus.Connect(ctx); err != nil {
		return nil, err
	}

	for _, topic := range []string{cfg.InboundTopic, cfg.CommandsTopic, cfg.NotificationsTopic} {
		if err := bus.CreateTopic(ctx, newTopic(cfg.Kind, topic)); err != nil {
			return nil, err
		}
	}

	if cfg.Kind == "amqp" {
		queue := amqpTransport.Queue(cfg.InboundQueue, true, false, false, false)
		bind := amqpTransport.QueueBind(cfg.InboundTopic, "#", false)

		if err := bus.CreateQueue(ctx, queue, bind); err != nil {
			return nil, err
		}
	}

	return bus, nil
}

func newTopic(kind string, name string) transport.Topic {
	if kind == "kafka" {
		return kafkaTransport.Topic(name)
	}

	return amqpTransport.Topic(name, true, false)
}

func inboundQueue(cfg config.Broker) transport.Queue {
	if cfg.Kind == "kafka" {
		// consumption joins the group on the inbound topic itself
		return kafkaTransport.Queue(cfg.InboundTopic)
	}

	return amqpTransport.Queue(cfg.InboundQueue, true, false, false, false)
}

func serveAPI(cfg config.API, store sagaPkg.Store, logger log.Logger) {
	router := chi.NewRouter()

	statusHandler := status.NewStatusHandler(logger, status.NewStatusService(store))
	statusHandler.Register(router)

	router.Handle("/metrics", promhttp.Handler())

	logger.Logf(log.InfoLevel, "status api listening on %s", cfg.Addr)

	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		logger.Log(log.ErrorLevel, err)
	}
}
