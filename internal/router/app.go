package router

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/iliyamo/pet-care-marketplace/internal/config"
	"github.com/iliyamo/pet-care-marketplace/internal/handler"
	"github.com/iliyamo/pet-care-marketplace/internal/middleware"
	"github.com/iliyamo/pet-care-marketplace/internal/realtime"
	"github.com/iliyamo/pet-care-marketplace/internal/repository"
	"github.com/iliyamo/pet-care-marketplace/internal/service"
	"github.com/iliyamo/pet-care-marketplace/internal/storage"
)

// Deps is everything the API needs at runtime. Redis and Events may be nil.
type Deps struct {
	Cfg       config.Config
	DB        *sqlx.DB
	Redis     *redis.Client
	Bus       realtime.Bus
	Events    *service.Publisher
	Disk      *storage.Disk
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	if d.Cfg.Env != "test" {
		e.Use(echomw.Logger())
	}

	users := repository.NewUserRepo(d.DB)
	tokens := repository.NewTokenRepo(d.DB)
	admins := repository.NewAdminRepo(d.DB)
	vets := repository.NewVetRepo(d.DB)
	rooms := repository.NewConsultationRepo(d.DB)
	msgs := repository.NewMessageRepo(d.DB)

	g := Guard{Secret: d.Cfg.JWTSecret, Dir: service.NewRoleDirectory(admins, vets)}
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)
	cache := middleware.NewRedisCache(d.Cache, d.Redis)

	RegisterRoutes(e, &handler.HealthHandler{DB: d.DB})
	RegisterAuth(e, handler.NewAuthHandler(d.Cfg, users, tokens), handler.NewRPCHandler(admins), g, limit)
	RegisterVets(e, handler.NewVetHandler(vets, d.Events, d.Redis, d.Cache.Prefix), g, cache)
	RegisterConsultations(e,
		handler.NewConsultationHandler(rooms, msgs, vets, users, d.Bus, d.Events),
		handler.NewStorageHandler(d.Disk, rooms),
		g, limit)
	return e
}

// WithCORS lets browser clients on origins call h. "*" allows any origin.
func WithCORS(origins []string, h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler(h)
}
