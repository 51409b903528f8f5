package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/payments"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/config"
	pfirestore "github.com/Rohansunwar5/sweety-server-sub000/internal/platform/firestore"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/idempotency"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/jobs"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/observability"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/storage"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
	firestorerepo "github.com/Rohansunwar5/sweety-server-sub000/internal/repositories/firestore"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories/memory"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog   services.CatalogService
	Inventory services.InventoryService
	Discounts services.DiscountService
	Cart      services.CartService
	Orders    services.OrderService
	// Payments is nil when no payment gateway is configured.
	Payments services.PaymentService
}

// ReadinessCheck probes one external dependency.
type ReadinessCheck func(ctx context.Context) error

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store
	Checks       map[string]ReadinessCheck

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	meter    metric.MeterProvider
	registry repositories.Registry
	gateway  payments.Gateway
	clock    func() time.Time
}

// WithLogger sets the base logger bridged into services.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) { o.meter = provider }
}

// WithRegistry supplies a prebuilt repository registry, bypassing the configured driver.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithGateway supplies a payment gateway instead of building the Stripe one from config.
func WithGateway(gateway payments.Gateway) Option {
	return func(o *options) { o.gateway = gateway }
}

// WithClock overrides the clock used by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// NewContainer constructs the runtime dependencies for cfg.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	o := options{meter: otel.GetMeterProvider(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	c := &Container{Config: cfg, Checks: make(map[string]ReadinessCheck)}
	if err := c.build(ctx, o); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, o options) error {
	cfg := c.Config

	switch {
	case o.registry != nil:
		c.Repositories = o.registry
		c.Idempotency = idempotency.NewMemoryStore()
	case cfg.Persistence.Driver == config.DriverMemory:
		c.Repositories = memory.NewStore()
		c.Idempotency = idempotency.NewMemoryStore()
	default:
		provider := pfirestore.NewProvider(cfg.Firestore)
		reg, err := firestorerepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return fmt.Errorf("build firestore registry: %w", err)
		}
		c.Repositories = reg
		c.Idempotency = idempotency.NewFirestoreStore(provider, "")
		c.Checks["firestore"] = firestoreCheck(provider)
	}
	c.closers = append(c.closers, c.Repositories.Close)

	events, notifier, err := c.buildPublishers(ctx, o)
	if err != nil {
		return err
	}
	receipts, err := c.buildReceiptArchiver(ctx, o)
	if err != nil {
		return err
	}
	gateway, err := buildGateway(cfg, o)
	if err != nil {
		return err
	}

	svc, err := buildServices(c.Repositories, cfg, o, events, notifier, receipts, gateway)
	if err != nil {
		return err
	}
	c.Services = svc
	return nil
}

// Close releases clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// buildPublishers returns nil publishers when the matching topic is not configured.
func (c *Container) buildPublishers(ctx context.Context, o options) (services.OrderEventPublisher, services.OrderNotifier, error) {
	cfg := c.Config.PubSub
	if cfg.OrderEventsTopic == "" && cfg.NotificationsTopic == "" {
		o.logger.Info("pubsub topics not configured; order events and notifications disabled")
		return nil, nil, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("build pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	var (
		events   services.OrderEventPublisher
		notifier services.OrderNotifier
	)
	if cfg.OrderEventsTopic != "" {
		topic := client.Topic(cfg.OrderEventsTopic)
		c.closers = append(c.closers, func(context.Context) error { topic.Stop(); return nil })
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic, jobs.WithOrderingByOrder())
		if err != nil {
			return nil, nil, err
		}
		events = publisher
		c.Checks["pubsub.orderEvents"] = topicCheck(topic)
	}
	if cfg.NotificationsTopic != "" {
		topic := client.Topic(cfg.NotificationsTopic)
		c.closers = append(c.closers, func(context.Context) error { topic.Stop(); return nil })
		sender, err := jobs.NewPubSubNotificationSender(topic, c.Config.Commerce.Locale)
		if err != nil {
			return nil, nil, err
		}
		notifier = sender
		c.Checks["pubsub.notifications"] = topicCheck(topic)
	}
	return events, notifier, nil
}

func (c *Container) buildReceiptArchiver(ctx context.Context, o options) (services.ReceiptArchiver, error) {
	bucket := c.Config.Storage.ReceiptsBucket
	if bucket == "" {
		o.logger.Info("receipts bucket not configured; receipt archiving disabled")
		return nil, nil
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build storage client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	writer, err := storage.NewGCSObjectWriter(client)
	if err != nil {
		return nil, err
	}
	archiver, err := storage.NewReceiptArchiver(bucket, writer, o.clock)
	if err != nil {
		return nil, err
	}
	c.Checks["storage.receipts"] = func(ctx context.Context) error {
		_, err := client.Bucket(bucket).Attrs(ctx)
		return err
	}
	return archiver, nil
}

func buildGateway(cfg config.Config, o options) (payments.Gateway, error) {
	if o.gateway != nil {
		return o.gateway, nil
	}
	if cfg.PSP.StripeAPIKey == "" {
		o.logger.Warn("stripe api key not configured; payment routes disabled")
		return nil, nil
	}
	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		Logger:        observability.ServiceLogger(o.logger.Named("stripe")),
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe gateway: %w", err)
	}
	return gateway, nil
}

func buildServices(
	reg repositories.Registry,
	cfg config.Config,
	o options,
	events services.OrderEventPublisher,
	notifier services.OrderNotifier,
	receipts services.ReceiptArchiver,
	gateway payments.Gateway,
) (Services, error) {
	var svc Services
	logger := observability.ServiceLogger(o.logger)

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{Products: reg.Products()})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory:     reg.Inventory(),
		MeterProvider: o.meter,
		Logger:        logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventory

	discounts, err := services.NewDiscountService(services.DiscountServiceDeps{
		Discounts: reg.Discounts(),
		Clock:     o.clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build discount service: %w", err)
	}
	svc.Discounts = discounts

	carts, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Catalog:         catalog,
		Inventory:       inventory,
		Discounts:       discounts,
		DefaultCurrency: cfg.Commerce.DefaultCurrency,
		Clock:           o.clock,
		Logger:          logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = carts

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:              reg.Orders(),
		Counters:            reg.Counters(),
		Carts:               carts,
		Discounts:           discounts,
		Inventory:           inventory,
		Events:              events,
		OrderNumberPrefix:   cfg.Commerce.OrderNumberPrefix,
		OrderNumberAttempts: cfg.Commerce.OrderNumberAttempts,
		DeliveryWindow:      cfg.Commerce.DeliveryWindow,
		TrackingLength:      cfg.Commerce.TrackingNumberLength,
		Clock:               o.clock,
		Logger:              logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	if gateway == nil {
		return svc, nil
	}
	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments: reg.Payments(),
		Orders:   orders,
		Carts:    carts,
		Gateway:  gateway,
		Notifier: notifier,
		Receipts: receipts,
		Clock:    o.clock,
		Logger:   logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc
	return svc, nil
}

func firestoreCheck(provider *pfirestore.Provider) ReadinessCheck {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		_, err = client.Collections(ctx).Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		return err
	}
}

func topicCheck(topic *pubsub.Topic) ReadinessCheck {
	return func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topic %s does not exist", topic.ID())
		}
		return nil
	}
}
