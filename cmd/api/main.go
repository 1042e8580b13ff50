package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bareuptime/convcore/internal/ai"
	"github.com/bareuptime/convcore/internal/attachment"
	"github.com/bareuptime/convcore/internal/auth"
	"github.com/bareuptime/convcore/internal/blobstore"
	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/config"
	"github.com/bareuptime/convcore/internal/crypto"
	"github.com/bareuptime/convcore/internal/db"
	"github.com/bareuptime/convcore/internal/handlers"
	"github.com/bareuptime/convcore/internal/idgen"
	"github.com/bareuptime/convcore/internal/mail"
	"github.com/bareuptime/convcore/internal/middleware"
	"github.com/bareuptime/convcore/internal/poller"
	"github.com/bareuptime/convcore/internal/redis"
	"github.com/bareuptime/convcore/internal/routing"
	"github.com/bareuptime/convcore/internal/sla"
	"github.com/bareuptime/convcore/internal/spam"
	"github.com/bareuptime/convcore/internal/store"
	"github.com/bareuptime/convcore/internal/supervisor"
	"github.com/bareuptime/convcore/internal/ticket"
	"github.com/bareuptime/convcore/internal/trash"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "convcore-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	envelope, err := crypto.NewEnvelope(cfg.Mail.MasterEncryptionKey)
	if err != nil {
		log.Fatalf("failed to init encryption envelope: %v", err)
	}

	ids := idgen.Real()
	wallClock := clock.Real()
	s := store.NewPostgres(database.DB)

	blobRoot := os.Getenv("CONVCORE_BLOB_ROOT")
	if blobRoot == "" {
		blobRoot = "./data/attachments"
	}
	blobs := blobstore.NewFilesystemStore(blobRoot)

	attachments := attachment.NewCoordinator(s, blobs, wallClock, ids)

	tickets := ticket.NewManager(s, wallClock, ids, logger)

	routingEngine := routing.NewEngine(s, s, tickets, wallClock, logger)
	slaTracker := sla.NewTracker(s, wallClock, ids, logger)
	tickets.SetRoutingEngine(routingEngine)
	tickets.SetSlaLinker(slaTracker)

	classifier := spam.NewClassifier(0.5, 0.5)

	// textgen.TextGenerator is a caller-supplied external collaborator per
	// §6 — no concrete LLM client ships in this module, so no Coordinator
	// is constructed here. Every call site already nil-checks aiCoord
	// before use; wiring one in is a deployment-time decision.
	var aiCoord *ai.Coordinator

	dispatcher := mail.NewDispatcher(s, envelope, ids, cfg.Mail.ReplyDomain, logger)

	// A region means this deployment has IAM credentials available (env,
	// instance profile, or shared config) for accounts provisioned with
	// provider=ses; without one, SES-backed accounts fail at send time with
	// a "ses provider not configured" validation error rather than at boot.
	if region := os.Getenv("AWS_REGION"); region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
		if err != nil {
			log.Fatalf("failed to load aws config: %v", err)
		}
		dispatcher.SetSESClient(sesv2.NewFromConfig(awsCfg))
	}

	imapFetcher := mail.NewIMAPFetcher(logger)

	mailPoller := poller.NewSupervisor(s, envelope, imapFetcher, classifier, tickets, attachments, aiCoord, wallClock, ids, cfg.Mail, logger)
	reaper := trash.NewReaper(tickets, attachments, wallClock, cfg.Trash.RetentionTTL, cfg.Trash.ScanInterval, logger)

	tasks := supervisor.New(mailPoller, slaTracker, reaper, cfg.Trash.ScanInterval, logger)

	// A Redis URL means more than one API process may run against this
	// database; the task supervisor then needs a leader lease so only one
	// of them ticks the poller/reaper/SLA scan.
	if cfg.Redis.URL != "" {
		redisSvc, err := redis.NewService(redis.Config{URL: cfg.Redis.URL})
		if err != nil {
			log.Fatalf("failed to init redis: %v", err)
		}
		defer redisSvc.Close()
		holderID := ids.UUID()
		tasks.SetLeaderLock(redisSvc, holderID)
	}

	ctx, cancelTasks := context.WithCancel(context.Background())
	tasks.Start(ctx)
	defer cancelTasks()

	jwtAuth := auth.NewService(cfg.JWT.Secret)

	ticketHandler := handlers.NewTicketHandler(tickets, slaTracker, aiCoord)
	emailHandler := handlers.NewEmailHandler(s, dispatcher, envelope, ids)
	webhookHandler := handlers.NewWebhookHandler(s, tickets, classifier, aiCoord, ids, logger)
	adminHandler := handlers.NewAdminHandler(s, tickets, attachments, ids)
	attachmentHandler := handlers.NewAttachmentHandler(attachments)

	router := setupRouter(jwtAuth, ticketHandler, emailHandler, webhookHandler, adminHandler, attachmentHandler)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	cancelTasks()
	tasks.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Info().Msg("server exited")
}

func setupRouter(
	jwtAuth *auth.Service,
	ticketHandler *handlers.TicketHandler,
	emailHandler *handlers.EmailHandler,
	webhookHandler *handlers.WebhookHandler,
	adminHandler *handlers.AdminHandler,
	attachmentHandler *handlers.AttachmentHandler,
) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	webhookSecret := os.Getenv("CONVCORE_WEBHOOK_SECRET")
	router.POST("/webhooks/email", middleware.WebhookHMACMiddleware(webhookSecret), webhookHandler.Ingest)

	api := router.Group("/v1")
	api.Use(middleware.AuthMiddleware(jwtAuth))
	{
		api.POST("/ticket", ticketHandler.CreateTicket)
		api.GET("/ticket/:id", ticketHandler.GetThread)
		api.POST("/ticket/:id/reply", ticketHandler.Reply)
		api.GET("/ticket/:id/sla-status", ticketHandler.SlaStatus)

		api.POST("/ticket/:id/admin/reply", middleware.RequireAdmin(), ticketHandler.AdminReply)
		api.POST("/ticket/:id/escalate", middleware.RequireAdmin(), ticketHandler.Escalate)
		api.POST("/ticket/:id/priority", middleware.RequireAdmin(), ticketHandler.UpdatePriority)
		api.POST("/ticket/:id/close", middleware.RequireAdmin(), ticketHandler.CloseTicket)

		api.POST("/ticket/:id/send-email", middleware.RequireAdmin(), emailHandler.SendEmail)
		api.GET("/ticket/:id/emails", emailHandler.ListEmails)

		api.POST("/ticket/:id/attachments", attachmentHandler.Upload)
		api.GET("/attachments/:id", attachmentHandler.Download)
		api.DELETE("/attachments/:id", attachmentHandler.Delete)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/email-accounts", emailHandler.CreateEmailAccount)
			admin.GET("/email-accounts", emailHandler.ListEmailAccounts)
			admin.POST("/email-accounts/:id/enable-polling", emailHandler.EnablePolling)

			admin.POST("/routing-rules", adminHandler.CreateRoutingRule)
			admin.GET("/routing-rules", adminHandler.ListRoutingRules)
			admin.PUT("/routing-rules/:id", adminHandler.UpdateRoutingRule)
			admin.DELETE("/routing-rules/:id", adminHandler.DeleteRoutingRule)

			admin.POST("/slas", adminHandler.CreateSla)
			admin.GET("/slas", adminHandler.ListSlas)
			admin.PUT("/slas/:id", adminHandler.UpdateSla)
			admin.DELETE("/slas/:id", adminHandler.DeleteSla)

			admin.POST("/tickets/delete", adminHandler.DeleteTickets)
			admin.GET("/tickets/trash", adminHandler.ListTrash)
			admin.POST("/tickets/restore", adminHandler.RestoreTickets)
			admin.DELETE("/tickets/trash", adminHandler.HardDeleteTickets)
		}
	}

	return router
}
