package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/aws"
	"github.com/imrishuroy/go-refund-reconciler/internal/backend"
	"github.com/imrishuroy/go-refund-reconciler/internal/config"
	refundevents "github.com/imrishuroy/go-refund-reconciler/internal/events"
	"github.com/imrishuroy/go-refund-reconciler/internal/handlers"
	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
	"github.com/imrishuroy/go-refund-reconciler/internal/metrics"
	"github.com/imrishuroy/go-refund-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-refund-reconciler/internal/transition"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(cfg.Log))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRefundRoutes(r, cfg)

	return r
}

// activate retries the snapshot load until it succeeds or ctx is done.
func activate(ctx context.Context, engine *reconcile.Engine, retry time.Duration, zlog *zap.Logger) {
	for {
		err := engine.Activate(ctx)
		if err == nil {
			return
		}
		zlog.Warn("activation failed, retrying", zap.Error(err), zap.Duration("retry_in", retry))
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

func main() {
	configPath := pflag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	addr := pflag.String("addr", "", "listen address for the local server (overrides HTTP_ADDR)")
	logLevel := pflag.String("log-level", "", "log level: debug, info, warn, error")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := reconcile.ParsePolicy(cfg.Reconcile.OrderingPolicy)
	if err != nil {
		zlog.Fatal("invalid ordering policy", zap.Error(err))
	}

	var clients *aws.AWSClients
	if cfg.Snapshot.Source == config.SnapshotDynamoDB || cfg.Events.Source == config.EventsSQS || cfg.Metrics.Namespace != "" {
		clients, err = aws.NewAWSClients(ctx)
		if err != nil {
			zlog.Fatal("failed to init aws clients", zap.Error(err))
		}
	}

	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.Timeout).WithLogger(zlog)

	var loader backend.Loader = client
	if cfg.Snapshot.Source == config.SnapshotDynamoDB {
		loader = backend.NewDynamoLoader(clients.DynamoDB, cfg.Snapshot.Table).WithLogger(zlog)
	}

	engine := reconcile.NewEngine(reconcile.NewStore(policy), loader, zlog)

	var (
		channel refundevents.Channel
		hub     *refundevents.Hub
	)
	switch cfg.Events.Source {
	case config.EventsSQS:
		channel = refundevents.NewSQSChannel(aws.NewQueue(clients.SQS, cfg.Events.QueueURL), zlog).
			WithPolling(cfg.Events.BatchSize, cfg.Events.WaitSeconds, refundevents.DefaultRetryDelay)
	default:
		hub = refundevents.NewHub(zlog)
		channel = hub
	}

	// subscribe before activating so nothing pushed during the snapshot load is lost
	sub, err := channel.Subscribe(ctx, engine.Handlers())
	if err != nil {
		zlog.Fatal("failed to subscribe to refund events", zap.Error(err))
	}
	defer sub.Close()

	go func() { _ = engine.Run(ctx) }()
	go activate(ctx, engine, cfg.Snapshot.RetryInterval, zlog)

	if cfg.Metrics.Namespace != "" {
		pub := metrics.NewPublisher(clients.CloudWatch, cfg.Metrics.Namespace, cfg.Metrics.Interval, engine.Stats, zlog)
		go func() { _ = pub.Run(ctx) }()
	}

	r := setupRouter(handlers.HandlerConfig{
		Engine:      engine,
		Transitions: transition.NewController(client, zlog),
		Hub:         hub,
		Log:         zlog,
	})

	if cfg.RunLocal {
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zlog.Info("running local server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
