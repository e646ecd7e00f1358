package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awspkg "github.com/cjsinari/marikiti-backend/pkg/aws"
	dynamopkg "github.com/cjsinari/marikiti-backend/pkg/dynamodb"
	"github.com/cjsinari/marikiti-backend/services/common/auth"
	apperrors "github.com/cjsinari/marikiti-backend/services/common/errors"
	"github.com/cjsinari/marikiti-backend/services/common/logger"
	commonmw "github.com/cjsinari/marikiti-backend/services/common/middleware"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/config"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/controllers"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/database"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/kafka"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/middleware"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/providers"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/repository"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/routes"
	servicepkg "github.com/cjsinari/marikiti-backend/services/escrow-service/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "escrow-service"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	var logSink io.Writer
	cwLogs, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, serviceName, cfg.CloudWatchLogGroup, cfg.CloudWatchEnabled)
	if err != nil {
		log.Printf("CloudWatch Logs unavailable, logging locally only: %v", err)
	} else if cwLogs.IsEnabled() {
		logSink = cwLogs
		defer cwLogs.Close() //nolint:errcheck
	}

	zapLogger, err := logger.Initialize(cfg.Env, logSink)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	// Stores
	mongoDB, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer database.DisconnectMongo(mongoDB) //nolint:errcheck

	pg, err := database.ConnectPostgres(cfg.PostgresDSN(), zapLogger, &models.Payment{})
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	orderRepo := repository.NewMongoOrderRepository(mongoDB.Collection(cfg.OrderCollection), zapLogger)
	if err := orderRepo.EnsureIndexes(ctx); err != nil {
		zapLogger.Warn("Failed to ensure order indexes", zap.Error(err))
	}
	paymentRepo := repository.NewGormPaymentRepository(pg)
	cartRepo := repository.NewCartRepository(redisClient, cfg.CartTTL)
	productRepo := repository.NewDynamoProductRepository(dynamopkg.NewClientFromConfig(awsCfg, cfg.DynamoDBEndpoint), cfg.ProductsTable)

	// Events
	var (
		sink          servicepkg.EventSink
		orderTopic    string
		paymentTopic  string
		kafkaProducer *kafka.Producer
	)
	switch cfg.EventBus {
	case "kafka":
		kafkaProducer = kafka.NewProducer(cfg.KafkaBrokers, zapLogger)
		defer kafkaProducer.Close() //nolint:errcheck
		sink, orderTopic, paymentTopic = kafkaProducer, cfg.OrderKafkaTopic, cfg.PaymentKafkaTopic
	default:
		sink = awspkg.NewSNSClient(awsCfg)
		orderTopic, paymentTopic = cfg.OrderSNSTopicARN, cfg.PaymentSNSTopicARN
	}
	events := servicepkg.NewEventPublisher(sink, orderTopic, paymentTopic, zapLogger)

	metricsClient := awspkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)

	// Services
	gateway := providers.NewMpesaProvider(cfg.MpesaBaseURL, cfg.GatewayTimeout, cfg.StatusTimeout, zapLogger)
	orderService := servicepkg.NewOrderService(orderRepo, cartRepo, cfg.IdempotencyTTL, events, metricsClient, cfg.PersistenceTimeout, zapLogger)
	paymentService := servicepkg.NewPaymentService(paymentRepo, gateway, events, metricsClient, cfg.PersistenceTimeout, zapLogger)
	escrowService := servicepkg.NewEscrowService(orderService, paymentService, zapLogger)
	cartService := servicepkg.NewCartService(cartRepo, productRepo, cfg.PersistenceTimeout, zapLogger)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.PaymentCallbackQueue != "" {
		consumer := servicepkg.NewPaymentCallbackConsumer(
			awspkg.NewSQSConsumer(awsCfg, cfg.PaymentCallbackQueue, zapLogger),
			paymentService,
			metricsClient,
			zapLogger,
		)
		go consumer.Start(consumerCtx)
	}

	var uploader controllers.Uploader
	if cfg.UploadBucket != "" {
		uploader = awspkg.NewS3Uploader(awsCfg, cfg.UploadBucket, cfg.UploadPrefix, cfg.UploadPublicBaseURL)
	} else {
		zapLogger.Warn("UPLOAD_BUCKET not set, uploads disabled")
	}

	handlers := routes.Controllers{
		Cart:     controllers.NewCartController(cartService),
		Checkout: controllers.NewCheckoutController(cartService, orderService, paymentService, metricsClient, zapLogger),
		Order:    controllers.NewOrderController(orderService, escrowService, zapLogger),
		Payment:  controllers.NewPaymentController(paymentService, orderService, escrowService, cfg.MpesaCallbackSecret, zapLogger),
		Upload:   controllers.NewUploadController(uploader, zapLogger),
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(commonmw.RequestID())
	r.Use(commonmw.RequestLogger(zapLogger))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(commonmw.MetricsMiddleware(metricsClient, serviceName))
	r.Use(apperrors.ErrorMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	checkoutLimiter := commonmw.NewRateLimiter(rate.Every(time.Minute/time.Duration(cfg.CheckoutRatePerMinute)), cfg.CheckoutRatePerMinute, 10*time.Minute)
	identity := middleware.BuyerIdentity(auth.NewTokenParser(cfg.JWTSecret))
	routes.RegisterRoutes(r, handlers, identity, commonmw.RateLimitMiddleware(checkoutLimiter, func(c *gin.Context) string {
		if id, err := middleware.GetBuyerID(c); err == nil {
			return id
		}
		return c.ClientIP()
	}), cfg.CheckoutTimeout())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Escrow service started",
		zap.String("port", cfg.Port),
		zap.String("event_bus", cfg.EventBus),
	)
	<-quit
	zapLogger.Info("Shutting down escrow service...")
	stopConsumer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited cleanly")
}
