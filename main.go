package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fitness-crm/config"
	"fitness-crm/consumer"
	"fitness-crm/handlers"
	"fitness-crm/middleware"
	"fitness-crm/models"
	"fitness-crm/monitoring"
	"fitness-crm/scheduler"
	"fitness-crm/services"
	"fitness-crm/utils"
)

const (
	connectRetries = 5
	retryDelay     = 3 * time.Second
)

func main() {
	cfg, err := config.New(".env")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.SentryDSN != "" {
		if err := utils.InitSentry(cfg.SentryDSN, cfg.AppEnv, cfg.Version); err != nil {
			log.WithError(err).Warn("sentry disabled")
		}
		defer utils.FlushSentry()
	}

	monitoring.Init()

	repo, err := models.NewPostgresRepository(cfg.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("error closing database connection")
		}
	}()

	var redisClient utils.RedisClient
	for i := 0; i < connectRetries; i++ {
		redisClient, err = utils.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password)
		if err == nil {
			break
		}
		log.WithError(err).WithField("attempt", i+1).Warn("failed to connect to redis")
		if i < connectRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		log.WithError(err).Fatalf("failed to initialize redis after %d attempts", connectRetries)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Error("error closing redis connection")
		}
	}()

	var producer utils.KafkaProducer
	if cfg.Kafka.Broker != "" {
		producer, err = utils.NewKafkaProducer(cfg.Kafka.Broker)
		if err != nil {
			log.WithError(err).Warn("kafka unavailable, events disabled")
			producer = nil
		} else {
			defer producer.Close()
		}
	}

	var search utils.ElasticsearchClient
	if cfg.Elasticsearch.URL != "" {
		search, err = utils.NewElasticsearchClient(cfg.Elasticsearch.URL, cfg.Elasticsearch.Index)
		if err != nil {
			log.WithError(err).Warn("elasticsearch unavailable, search falls back to the database")
			search = nil
		} else {
			defer search.Close()
		}
	}

	senders := map[string]services.Sender{}
	if cfg.SMS.GatewayURL != "" {
		sms := utils.NewSMSClient(cfg.SMS.GatewayURL, cfg.SMS.APIKey, cfg.SMS.Sender, cfg.SMS.Retries, cfg.SMS.Timeout, log)
		senders[models.ChannelSMS] = services.NewSMSSender(sms)
	}
	if cfg.Mailer.Host != "" {
		mailer := utils.NewMailer(cfg.Mailer.Host, cfg.Mailer.Port, cfg.Mailer.Login, cfg.Mailer.Password, cfg.Mailer.From, cfg.Mailer.FromName)
		senders[models.ChannelEmail] = services.NewEmailSender(mailer)
	}

	events := services.NewEventPublisher(producer, cfg.Kafka.Topic, log)
	sessions := services.NewSessionStore(redisClient, cfg.Auth.SessionTTL)
	auth := services.NewAuthService(repo, sessions, cfg.Auth.Secret, cfg.Auth.SessionMaxAge, log)
	memberships := services.NewMembershipService(repo, events, log)
	campaigns := services.NewCampaignService(repo, senders, events, cfg.Scheduler.CampaignSendRate, log)
	stats := services.NewStatisticsService(repo, redisClient, cfg.Auth.StatsCacheTTL, log)

	presets, err := services.LoadRolePresets(cfg.Auth.RolePresetsFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load role presets")
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	err = auth.EnsureAdmin(bootCtx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, presets)
	cancelBoot()
	if err != nil {
		log.WithError(err).Fatal("failed to seed roles and admin account")
	}

	limiter := middleware.NewIPRateLimiter(cfg.Auth.LoginRatePerMin, 30*time.Minute)

	deps := handlers.Deps{
		Repo:         repo,
		Cache:        redisClient,
		Auth:         auth,
		LoginLimiter: limiter,
		Cookie: middleware.SessionCookie{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.Auth.CookieSecure,
			MaxAge: int(cfg.Auth.SessionMaxAge.Seconds()),
		},
		Memberships: memberships,
		Campaigns:   campaigns,
		Previewer:   campaigns,
		Statistics:  stats,
		Search:      search,
		Events:      events,
		Origins:     cfg.Auth.AllowedOrigins,
		Version:     cfg.Version,
		Log:         log,
	}
	router := handlers.NewRouter(deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var eventConsumer *consumer.EventConsumer
	if producer != nil {
		eventConsumer = consumer.NewEventConsumer(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID, search, stats, log)
		eventConsumer.Start(ctx)
	}

	jobs, err := scheduler.New(scheduler.Config{
		CampaignPollSpec:     cfg.Scheduler.CampaignPollSpec,
		MembershipExpirySpec: cfg.Scheduler.MembershipExpirySpec,
		CleanupSpec:          cfg.Scheduler.CleanupSpec,
		JobTimeout:           cfg.Scheduler.JobTimeout,
	}, campaigns, memberships, limiter, log)
	if err != nil {
		log.WithError(err).Fatal("failed to configure scheduler")
	}
	jobs.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "version": cfg.Version}).Info("server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	jobs.Stop()
	campaigns.Wait()
	events.Wait()
	if eventConsumer != nil {
		eventConsumer.Stop()
	}
}
