package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/pet-care-marketplace/internal/config"
	"github.com/iliyamo/pet-care-marketplace/internal/database"
	"github.com/iliyamo/pet-care-marketplace/internal/notify"
	"github.com/iliyamo/pet-care-marketplace/internal/queue"
	"github.com/iliyamo/pet-care-marketplace/internal/realtime"
	"github.com/iliyamo/pet-care-marketplace/internal/repository"
	"github.com/iliyamo/pet-care-marketplace/internal/router"
	"github.com/iliyamo/pet-care-marketplace/internal/service"
	"github.com/iliyamo/pet-care-marketplace/internal/storage"
)

func main() {
	config.LoadDotEnv(".env")
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("database: %v", err)
		}
	}
	grantAdmins(db, cfg.AdminEmails)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	var bus realtime.Bus
	if rdb != nil {
		defer rdb.Close()
		bus = realtime.NewRedisBus(rdb)
	} else {
		log.Printf("realtime: redis unavailable, using in-process hub")
		bus = realtime.NewLocalHub()
	}

	events := service.NewPublisher(cfg.AMQPURL)
	defer events.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailCfg := config.LoadMailConfig()
	consumer := &queue.Consumer{URL: cfg.AMQPURL, LogDir: "logs", AppURL: mailCfg.AppURL}
	if mailCfg.Enabled() {
		consumer.Mail = notify.NewSMTP(mailCfg)
	}
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("event-consumer: stopped: %v", err)
		}
	}()

	e := router.New(router.Deps{
		Cfg:       cfg,
		DB:        db,
		Redis:     rdb,
		Bus:       bus,
		Events:    events,
		Disk:      storage.NewDisk(cfg.StorageDir, cfg.PublicURL, cfg.MaxUploadBytes),
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.WithCORS(cfg.CORSOrigins, e),
		ReadHeaderTimeout: 10 * time.Second,
		// streams watch the request context, so they end on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Printf("listening on %s (env=%s)", srv.Addr, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// grantAdmins makes the listed, already registered accounts admins.
func grantAdmins(db *sqlx.DB, emails []string) {
	users := repository.NewUserRepo(db)
	admins := repository.NewAdminRepo(db)
	for _, email := range emails {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		u, err := users.GetByEmail(ctx, email)
		if err == nil {
			err = admins.Grant(ctx, u.ID)
		}
		cancel()
		if err != nil {
			log.Printf("admin bootstrap %s: %v", email, err)
		}
	}
}
