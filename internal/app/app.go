// Package app assembles the order lifecycle services from configuration.
// Every entry point builds one App and drives the parts it needs.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/api"
	"github.com/example/retail-orders/internal/auth"
	"github.com/example/retail-orders/internal/config"
	"github.com/example/retail-orders/internal/domain/customer"
	"github.com/example/retail-orders/internal/domain/order"
	"github.com/example/retail-orders/internal/domain/product"
	"github.com/example/retail-orders/internal/infrastructure/blob"
	"github.com/example/retail-orders/internal/infrastructure/kafka"
	"github.com/example/retail-orders/internal/infrastructure/queue"
	"github.com/example/retail-orders/internal/infrastructure/redisx"
	"github.com/example/retail-orders/internal/infrastructure/sqs"
	"github.com/example/retail-orders/internal/infrastructure/store"
	"github.com/example/retail-orders/internal/payment"
)

const (
	devJWTSecret  = "development-only-jwt-secret-change-me"
	minJWTSecret  = 32
	dedupService  = "order-queue"
	memoryQueueSz = 1024
)

type App struct {
	Config config.Config
	Log    *zap.Logger

	Customers    *customer.Service
	Products     *product.Service
	StateMachine *order.StateMachine
	Coordinator  *order.Coordinator
	Orders       *order.Queries
	Reaper       *order.Reaper
	Proofs       *payment.ProofService
	JWT          *auth.JWTService
	Auth         *auth.Authenticator

	Blobs blob.Store
	Queue order.Queue
	// MemoryQueue is set when QUEUE_BACKEND=memory; its consumer runs in
	// the same process.
	MemoryQueue *queue.MemoryQueue

	closers []func() error
}

// New builds the services over the backends named in cfg.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log}

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	var awsCfg aws.Config
	if cfg.StoreBackend == config.BackendDynamoDB || cfg.QueueBackend == config.BackendSQS || cfg.BlobBackend == config.BackendS3 {
		var err error
		if awsCfg, err = awsconfig.LoadDefaultConfig(ctx); err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
	}

	repos, err := a.openRepositories(ctx, awsCfg)
	if err != nil {
		return err
	}

	if a.Queue, err = a.openQueue(awsCfg); err != nil {
		return err
	}
	a.Blobs = a.openBlobs(awsCfg)

	proof, err := order.ParseProofStrategy(cfg.ProofAcceptStatus)
	if err != nil {
		return err
	}
	smOpts := []order.Option{order.WithProofStrategy(proof)}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		a.closers = append(a.closers, rdb.Close)
		smOpts = append(smOpts, order.WithDeduper(redisx.NewDeduper(rdb, dedupService)))
	}

	a.Customers = customer.NewService(repos.customers)
	a.Products = product.NewService(repos.products, a.Blobs, a.Log.Named("product"))
	a.StateMachine = order.NewStateMachine(repos.orders, a.Log.Named("order.statemachine"), smOpts...)
	a.Coordinator = order.NewCoordinator(repos.orders, a.Customers, a.Products, a.Queue, a.StateMachine, a.Log.Named("order.coordinator"))
	a.Orders = order.NewQueries(repos.orders)
	a.Reaper = order.NewReaper(repos.orders, a.StateMachine, cfg.StaleOrderAge, a.Log.Named("order.reaper"))
	a.Proofs = payment.NewProofService(a.Orders, a.StateMachine, a.Blobs, a.Log.Named("payment"))

	secret := cfg.JWTSecret
	switch {
	case secret == "" && cfg.Production():
		return errors.New("JWT_SECRET is required in production")
	case secret == "":
		a.Log.Warn("JWT_SECRET not set, using development secret")
		secret = devJWTSecret
	case len(secret) < minJWTSecret:
		return fmt.Errorf("JWT_SECRET must be at least %d characters long", minJWTSecret)
	}
	a.JWT = auth.NewJWTService(secret, auth.DefaultTokenExpiry)
	a.Auth = auth.NewAuthenticator(a.JWT, cfg.AdminKeyHash)
	if cfg.AdminKeyHash == "" {
		a.Log.Warn("ADMIN_KEY_HASH not set, operator login disabled")
	}

	a.Log.Info("services ready",
		zap.String("store", cfg.StoreBackend),
		zap.String("queue", cfg.QueueBackend),
		zap.String("blob", cfg.BlobBackend),
		zap.String("proof_strategy", string(proof)),
		zap.Bool("dedup", cfg.RedisAddr != ""))
	return nil
}

type repositories struct {
	orders    store.Repository[*order.Order]
	customers store.Repository[*customer.Customer]
	products  store.Repository[*product.Product]
}

func (a *App) openRepositories(ctx context.Context, awsCfg aws.Config) (repositories, error) {
	cfg := a.Config
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return repositories{
			orders:    store.NewMemoryStore(order.New),
			customers: store.NewMemoryStore(customer.New),
			products:  store.NewMemoryStore(product.New),
		}, nil

	case config.BackendDynamoDB:
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		p := cfg.DynamoTablePrefix
		return repositories{
			orders:    store.NewDynamoStore(client, p+"orders", order.New),
			customers: store.NewDynamoStore(client, p+"customers", customer.New),
			products:  store.NewDynamoStore(client, p+"products", product.New),
		}, nil

	case config.BackendPostgres:
		db, err := store.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return repositories{}, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		var repos repositories
		if repos.orders, err = postgresRepo(ctx, db, "orders", order.New); err != nil {
			return repositories{}, err
		}
		if repos.customers, err = postgresRepo(ctx, db, "customers", customer.New); err != nil {
			return repositories{}, err
		}
		if repos.products, err = postgresRepo(ctx, db, "products", product.New); err != nil {
			return repositories{}, err
		}
		return repos, nil
	}
	return repositories{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func postgresRepo[T store.Record](ctx context.Context, db *sql.DB, table string, newRecord func() T) (store.Repository[T], error) {
	s, err := store.NewPostgresStore(db, table, newRecord)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure %s schema: %w", table, err)
	}
	return s, nil
}

func (a *App) openQueue(awsCfg aws.Config) (order.Queue, error) {
	cfg := a.Config
	switch cfg.QueueBackend {
	case config.BackendMemory:
		q := queue.NewMemoryQueue(memoryQueueSz, cfg.QueueMaxAttempts, a.Log.Named("queue"))
		a.MemoryQueue = q
		a.closers = append(a.closers, func() error { q.Close(); return nil })
		return q, nil
	case config.BackendKafka:
		p := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, p.Close)
		return p, nil
	case config.BackendSQS:
		return sqs.NewSender(awssqs.NewFromConfig(awsCfg), cfg.SQSQueueURL), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
}

func (a *App) openBlobs(awsCfg aws.Config) blob.Store {
	cfg := a.Config
	if cfg.BlobBackend != config.BackendS3 {
		return blob.NewMemoryStore()
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return blob.NewS3Store(client, cfg.S3Bucket, cfg.BlobBaseURL)
}

// NewConsumer builds the Kafka consumer that feeds order messages to the
// state machine.
func (a *App) NewConsumer() *kafka.Consumer {
	cfg := a.Config
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         cfg.KafkaBrokers,
		Topic:           cfg.KafkaTopic,
		GroupID:         cfg.KafkaConsumerGroup,
		DeadLetterTopic: cfg.KafkaDeadLetterTopic,
		MaxAttempts:     cfg.QueueMaxAttempts,
	}, a.Log.Named("kafka.consumer"))
}

// APIDeps wires the HTTP handlers to the services.
func (a *App) APIDeps() api.Deps {
	return api.Deps{
		Customers:      a.Customers,
		Products:       a.Products,
		Coordinator:    a.Coordinator,
		Orders:         a.Orders,
		Proofs:         a.Proofs,
		Reaper:         a.Reaper,
		Auth:           a.Auth,
		ReconcileGrace: a.Config.ReconcileGrace,
		Log:            a.Log.Named("api"),
	}
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
