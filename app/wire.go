package app

import (
	"context"
	"log"

	"example/resume-api/app/billing"
	"example/resume-api/app/config"
	"example/resume-api/app/models"
	"example/resume-api/app/notify"
	"example/resume-api/app/reconcile"
	"example/resume-api/app/scoring"
	"example/resume-api/app/storage"
	"example/resume-api/app/store"
)

// Build assembles the service and its HTTP handlers from configuration. The
// returned close func releases the database and the scoring client.
func Build(ctx context.Context, cfg *config.Config) (*Handlers, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	st, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closeStore)

	var scorer reconcile.Scorer = scoring.NewHeuristic()
	if cfg.Scoring.Provider == "gemini" {
		g, err := scoring.NewGemini(ctx, cfg.Scoring.GeminiAPIKey, cfg.Scoring.GeminiModel)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { g.Close() })
		scorer = g
	}

	docs, err := NewDocumentStore(ctx, cfg.Storage)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	notifier, err := NewNotifier(ctx, cfg.Queue)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	if cfg.Stripe.SecretKey == "" {
		log.Printf("STRIPE_SECRET_KEY missing in config; checkouts will fail")
	}
	var webhook *billing.Webhook
	if cfg.Stripe.WebhookSecret != "" {
		webhook = billing.NewWebhook(cfg.Stripe.WebhookSecret)
	}

	svc := reconcile.New(st, billing.NewStripe(cfg.Stripe.SecretKey), scorer, docs, notifier, ServiceOptions(cfg))
	return NewHandlers(svc, webhook), closeAll, nil
}

// OpenStore returns the Postgres store when a database is configured and the
// in-memory store otherwise.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if !cfg.DB.Enabled() {
		log.Printf("POSTGRES_URL missing in config; using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	d, err := OpenDB(ctx, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgres(d), func() { d.Close() }, nil
}

// NewDocumentStore keeps documents in S3 when a bucket is configured and on
// local disk otherwise.
func NewDocumentStore(ctx context.Context, cfg config.StorageConfig) (reconcile.DocumentStore, error) {
	if cfg.S3Bucket != "" {
		return storage.NewS3(ctx, cfg.S3Bucket, cfg.S3Prefix)
	}
	return storage.NewDisk(cfg.Dir)
}

// NewNotifier publishes to SQS when a queue is configured and logs otherwise.
func NewNotifier(ctx context.Context, cfg config.QueueConfig) (reconcile.Notifier, error) {
	if cfg.URL == "" {
		return notify.Log{}, nil
	}
	return notify.NewSQS(ctx, cfg.URL)
}

// ServiceOptions maps configuration onto the service's options.
func ServiceOptions(cfg *config.Config) reconcile.Options {
	return reconcile.Options{
		Prices: map[models.ServiceType]int64{
			models.ServiceSubscription:       cfg.Pricing.Subscription,
			models.ServiceATSCredit:          cfg.Pricing.ATSCredit,
			models.ServiceOptimizationCredit: cfg.Pricing.OptimizationCredit,
			models.ServiceReview:             cfg.Pricing.Review,
		},
		Currency:           cfg.Stripe.Currency,
		SubscriptionPeriod: cfg.Pricing.SubscriptionPeriod,
		SuccessURL:         cfg.Stripe.SuccessURL(),
		CancelURL:          cfg.Stripe.CancelURL(),
		Debug:              cfg.Logs.Debug(),
	}
}
