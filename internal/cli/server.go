package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"broadcast-quiz-service/internal/app"
	"broadcast-quiz-service/internal/clock"
	"broadcast-quiz-service/internal/config"
	"broadcast-quiz-service/internal/infra/memory"
	"broadcast-quiz-service/internal/infra/postgres"
	infraredis "broadcast-quiz-service/internal/infra/redis"
	"broadcast-quiz-service/internal/logging"
	"broadcast-quiz-service/internal/media"
	"broadcast-quiz-service/internal/schedule"
	transport "broadcast-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server and broadcast scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	messages, err := logging.NewMessageLogger(logging.Options{
		Directory:  cfg.Logging.Directory,
		MaxSizeMB:  cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer messages.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := clock.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler timezone: %w", err)
	}
	clk := clock.Real(loc)

	var db *bun.DB
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
		db = openDB(cfg.Postgres.URL)
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres unreachable: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
	}

	campaign, err := loadCampaign(ctx, cfg, clk.Now(), loc)
	if err != nil {
		return err
	}

	var ledger schedule.FiredLedger = schedule.NewMemoryLedger()
	if redisClient != nil {
		ledger = infraredis.NewFiredLedger(redisClient, cfg.Scheduler.Campaign)
	}
	sched, err := schedule.New(campaign.Items, ledger)
	if err != nil {
		return err
	}
	if err := sched.Reset(ctx, cfg.Scheduler.ResetFiredOnBoot); err != nil {
		return fmt.Errorf("reset fired flags: %w", err)
	}
	restored, err := sched.Restore(ctx)
	if err != nil {
		log.Warn("fired flags not restored, items may be broadcast again", zap.Error(err))
	}
	log.Info("schedule loaded",
		zap.Int("items", len(campaign.Items)),
		zap.Int("already_fired", restored),
		zap.String("timezone", loc.String()),
	)

	finalID, _ := sched.FinalStageID()
	var participants app.ParticipantStore = memory.NewParticipantStore(finalID)
	if db != nil {
		participants = postgres.NewParticipantStore(db, finalID)
	}
	var states app.StateRepository = memory.NewStateStore()
	if redisClient != nil {
		states = infraredis.NewStateStore(redisClient, cfg.Scheduler.Campaign, config.TTLDuration(cfg.Redis.TTL, 30*24*time.Hour))
	}

	resolver, err := newMediaResolver(ctx, cfg)
	if err != nil {
		return err
	}
	hub := transport.NewHub(resolver, log, transport.HubOptions{
		SendTimeout: config.TTLDuration(cfg.Transport.SendTimeout, 5*time.Second),
		Mailbox:     cfg.Transport.Mailbox,
		AdminIDs:    cfg.Transport.AdminIDs,
	})
	status := app.NewStatusReporter(participants, clk, log, config.TTLDuration(cfg.Status.TTL, 5*time.Second))
	service := app.NewQuizService(sched, participants, states, hub, clk, log, app.Options{
		WelcomeText:  campaign.WelcomeText,
		WelcomeMedia: campaign.WelcomeMedia,
		Rules:        campaign.Rules,
		Admins:       cfg.Transport.AdminIDs,
		Status:       status,
		StatusLimit:  cfg.Status.Limit,
	})
	deliverer := app.NewDeliverer(hub, log)
	broadcaster := app.NewBroadcaster(sched, participants, deliverer, hub, clk, log, app.BroadcastOptions{
		PollInterval: config.TTLDuration(cfg.Scheduler.PollInterval, time.Second),
		LateFire:     cfg.LateFire(),
		Concurrency:  cfg.Scheduler.Concurrency,
		Heartbeat:    config.TTLDuration(cfg.Scheduler.Heartbeat, time.Hour),
	})

	wsHandler := transport.NewWSHandler(hub, service, deliverer, messages, log)
	adminHandler := transport.NewAdminHandler(status, cfg.Transport.AdminToken, cfg.Status.Limit, log)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(wsHandler, adminHandler, cfg.Media.Root),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return broadcaster.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	hub.BroadcastAdminAlert(ctx, "Quiz service started")

	return g.Wait()
}

func loadCampaign(ctx context.Context, cfg config.Config, boot time.Time, loc *time.Location) (schedule.Campaign, error) {
	if cfg.Schedule.Source != config.ScheduleSourcePostgres {
		return schedule.LoadFile(cfg.Schedule.Path, boot, loc)
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return schedule.Campaign{}, fmt.Errorf("connect schedule pool: %w", err)
	}
	defer pool.Close()
	items, err := postgres.NewScheduleLoader(pool).LoadItems(ctx, boot, loc)
	if err != nil {
		return schedule.Campaign{}, err
	}
	campaign := schedule.Campaign{Location: loc, Items: items}

	// texts still come from the file when one is present
	if cfg.Schedule.Path != "" {
		if _, statErr := os.Stat(cfg.Schedule.Path); statErr == nil {
			fileCampaign, err := schedule.LoadFile(cfg.Schedule.Path, boot, loc)
			if err != nil {
				return schedule.Campaign{}, err
			}
			campaign.WelcomeText = fileCampaign.WelcomeText
			campaign.WelcomeMedia = fileCampaign.WelcomeMedia
			campaign.Rules = fileCampaign.Rules
		}
	}
	return campaign, nil
}

func newMediaResolver(ctx context.Context, cfg config.Config) (*media.Resolver, error) {
	s3cfg := cfg.Media.S3
	presignTTL := config.TTLDuration(s3cfg.PresignTTL, 15*time.Minute)
	if s3cfg.Endpoint == "" && s3cfg.AccessKeyID == "" {
		return media.NewResolver(cfg.Media.Root, "/media/", nil, presignTTL), nil
	}
	store, err := media.NewS3Store(ctx, media.S3Config{
		Endpoint:        s3cfg.Endpoint,
		Region:          s3cfg.Region,
		AccessKeyID:     s3cfg.AccessKeyID,
		SecretAccessKey: s3cfg.SecretAccessKey,
		PathStyle:       s3cfg.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return media.NewResolver(cfg.Media.Root, "/media/", store, presignTTL), nil
}
