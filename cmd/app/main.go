package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"barn-economy-backend/docs"
	"barn-economy-backend/internal/chain"
	"barn-economy-backend/internal/common/cache"
	"barn-economy-backend/internal/common/config"
	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/ratelimit"
	"barn-economy-backend/internal/common/validation"
	authHTTP "barn-economy-backend/internal/features/auth/delivery/http"
	authRepository "barn-economy-backend/internal/features/auth/repository"
	authRepo "barn-economy-backend/internal/features/auth/repository/postgres"
	authCache "barn-economy-backend/internal/features/auth/repository/redis"
	authService "barn-economy-backend/internal/features/auth/service"
	claimHTTP "barn-economy-backend/internal/features/claim/delivery/http"
	claimModels "barn-economy-backend/internal/features/claim/models"
	claimRepo "barn-economy-backend/internal/features/claim/repository/postgres"
	claimService "barn-economy-backend/internal/features/claim/service"
	leaderboardHTTP "barn-economy-backend/internal/features/leaderboard/delivery/http"
	leaderboardRepo "barn-economy-backend/internal/features/leaderboard/repository/postgres"
	leaderboardService "barn-economy-backend/internal/features/leaderboard/service"
	livesHTTP "barn-economy-backend/internal/features/lives/delivery/http"
	livesModels "barn-economy-backend/internal/features/lives/models"
	livesRepo "barn-economy-backend/internal/features/lives/repository/postgres"
	livesService "barn-economy-backend/internal/features/lives/service"
	scoreHTTP "barn-economy-backend/internal/features/score/delivery/http"
	scoreRepo "barn-economy-backend/internal/features/score/repository/postgres"
	"barn-economy-backend/internal/features/score/rules"
	scoreService "barn-economy-backend/internal/features/score/service"
	streakHTTP "barn-economy-backend/internal/features/streak/delivery/http"
	streakRepo "barn-economy-backend/internal/features/streak/repository/postgres"
	streakService "barn-economy-backend/internal/features/streak/service"
	userHTTP "barn-economy-backend/internal/features/user/delivery/http"
	userRepo "barn-economy-backend/internal/features/user/repository/postgres"
	userService "barn-economy-backend/internal/features/user/service"
	"barn-economy-backend/internal/platform/postgres"
	"barn-economy-backend/internal/platform/redis"
	"barn-economy-backend/internal/platform/storage"
	"barn-economy-backend/internal/utils/period"
	"barn-economy-backend/internal/workers"
)

// @title           Barn Economy API
// @version         1.0
// @description     Play economy for the barn mini-games: lives, daily streak bonus, validated scores, monthly leaderboards and token reward claims.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer session token issued by the identity provider

// @securityDefinitions.apikey AdminToken
// @in header
// @name X-Admin-Token

// @tag.name lives
// @tag.description Lives, attempts and play passes

// @tag.name streak
// @tag.description Daily streak bonus

// @tag.name scores
// @tag.description Score submission and anti-cheat validation

// @tag.name leaderboard
// @tag.description Monthly leaderboards

// @tag.name claims
// @tag.description Reward claim ledger and gasless claim signatures

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.ServiceName, cfg.Debug)
	logger.Info().Str("version", docs.SwaggerInfo.Version).Msg("Starting Barn Economy Backend")

	if err := validation.RegisterBindings(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register validators")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgresClient, err := postgres.NewClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer postgresClient.Close()

	if cfg.Postgres.AutoMigrate {
		if err := postgresClient.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}
	db := postgresClient.GetDB()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("Redis not configured, using in-process cache and no rate limits")
	}

	clock := period.SystemClock{}

	gameRules, err := rules.Load(cfg.GameRulesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load game rules")
	}

	// Identity and users
	var sessionCache authRepository.SessionCache
	if redisClient != nil {
		sessionCache = authCache.NewSessionCache(redisClient.Client, cfg.Auth.SessionCacheTTL)
	}
	authSvc := authService.NewAuthService(authRepo.NewPostgresRepository(db), sessionCache, clock)
	userSvc := userService.NewUserService(userRepo.NewPostgresRepository(db), clock)

	// Lives
	livesSvc := livesService.NewLivesService(livesRepo.NewPostgresRepository(db), livesService.Policy{
		Mode:        livesModels.Mode(cfg.Lives.Mode),
		MaxLives:    cfg.Lives.MaxLives,
		RegenPeriod: cfg.Lives.RegenPeriod,
		MaxAttempts: cfg.Lives.MaxAttempts,
		Cooldown:    cfg.Lives.Cooldown,
	}, cfg.Lives.PassDuration, clock)

	// Claim ledger
	gateway, err := chain.DialEVMGateway(ctx, chain.EVMConfig{
		RPCURL:         cfg.Chain.RPCURL,
		ChainID:        cfg.Chain.ChainID,
		DistributorKey: cfg.Chain.DistributorKey,
		TokenAddress:   cfg.Chain.TokenAddress,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize chain gateway")
	}
	ledger := claimService.NewLedger(claimRepo.NewPostgresRepository(db), gateway, userSvc, clock, claimService.Config{
		TransferTimeout: cfg.Chain.TransferTimeout,
		TokenDecimals:   cfg.Rewards.TokenDecimals,
		SignatureTTL:    cfg.Rewards.SignatureTTL,
	})
	signer, err := chain.NewClaimSigner(chain.SignerConfig{
		Key:           cfg.Chain.SignerKey,
		ChainID:       cfg.Chain.ChainID,
		Contract:      cfg.Chain.ClaimContract,
		DomainName:    cfg.Chain.DomainName,
		DomainVersion: cfg.Chain.DomainVersion,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize claim signer")
	}
	if signer != nil {
		ledger.WithSigner(signer)
	}

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient.Client, map[string]ratelimit.Rule{
			streakService.RateLimitScope: {Limit: cfg.RateLimit.DailyBonusLimit, Window: cfg.RateLimit.DailyBonusWindow},
			scoreService.RateLimitScope:  {Limit: cfg.RateLimit.ScoreLimit, Window: cfg.RateLimit.ScoreWindow},
		})
	}

	// Daily streak
	baseReward, err := chain.ToBaseUnits(cfg.Streak.BaseReward, cfg.Rewards.TokenDecimals)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid STREAK_BASE_REWARD")
	}
	streakSvc := streakService.NewDailyBonusService(streakRepo.NewPostgresRepository(db), ledger, limiter, userSvc, clock, streakService.Config{
		Rewards:        streakService.Rewards{Base: baseReward, JackpotMultiplier: cfg.Streak.JackpotMultiplier},
		CooldownWindow: cfg.Streak.CooldownWindow,
		TokenDecimals:  cfg.Rewards.TokenDecimals,
	})

	// Leaderboard
	var standingsCache leaderboardService.Cache
	if redisClient != nil {
		standingsCache = leaderboardService.NewRedisCache(cache.NewJSONCache(redisClient.Client), cfg.Leaderboard.CacheTTL)
	} else {
		standingsCache, err = leaderboardService.NewMemoryCache(cfg.Leaderboard.CacheSize, cfg.Leaderboard.CacheTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create leaderboard cache")
		}
	}
	leaderboardSvc := leaderboardService.NewLeaderboardService(leaderboardRepo.NewPostgresRepository(db), standingsCache, gameRules, clock,
		leaderboardService.Config{DefaultGameType: cfg.Leaderboard.DefaultGameType})

	// Scores
	perPoint, err := decimal.NewFromString(cfg.Rewards.PerPoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid REWARDS_PER_POINT")
	}
	rewardCap, err := decimal.NewFromString(cfg.Rewards.Cap)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid REWARDS_CAP")
	}
	scoreSvc := scoreService.NewScoreService(scoreService.Deps{
		Repo:        scoreRepo.NewPostgresRepository(db),
		Rules:       gameRules,
		Ledger:      ledger,
		Wallets:     userSvc,
		Lives:       livesSvc,
		Leaderboard: leaderboardSvc,
		Limiter:     limiter,
		Clock:       clock,
	}, scoreService.RewardPolicy{
		Enabled:  cfg.Rewards.Enabled,
		Delivery: claimModels.Delivery(cfg.Rewards.Delivery),
		PerPoint: perPoint,
		Cap:      rewardCap,
		MinScore: cfg.Rewards.MinScore,
		Decimals: cfg.Rewards.TokenDecimals,
	})

	logger.Info().
		Bool("gateway", gateway.Enabled()).
		Bool("signer", ledger.SignerEnabled()).
		Strs("game_types", gameRules.GameTypes()).
		Msg("Services initialized")

	// Background jobs
	jobs := workers.Jobs{Pruner: authSvc, Reconciler: ledger}
	store, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize archive storage")
	}
	if store != nil {
		jobs.Archiver = leaderboardService.NewArchiver(leaderboardSvc, store, cfg.Archive.Prefix, clock)
	}
	scheduler, err := workers.NewScheduler(jobs, workers.ScheduleConfig{
		PruneInterval:     cfg.Workers.PruneInterval,
		ReconcileInterval: cfg.Workers.ReconcileInterval,
		ReconcileBatch:    cfg.Workers.ReconcileBatch,
		ArchiveCron:       cfg.Workers.ArchiveCron,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	if redisClient != nil {
		stream := workers.NewPaymentStreamWorker(redisClient.Client, livesSvc, workers.StreamConfig{
			Stream:   cfg.Workers.PaymentsStream,
			Group:    cfg.Workers.PaymentsGroup,
			Consumer: cfg.Workers.PaymentsConsumer,
		})
		go stream.Start(ctx)
	}

	// HTTP
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		leaderboardHTTP.NewLeaderboardHandler(leaderboardSvc, cfg.Leaderboard.DefaultLimit, cfg.Leaderboard.MaxLimit).
			RegisterRoutes(v1.Group("", middleware.OptionalAuth(authSvc)))

		authed := v1.Group("", middleware.RequireAuth(authSvc))
		authHTTP.NewAuthHandler(authSvc).RegisterRoutes(authed)
		userHTTP.NewUserHandler(userSvc).RegisterRoutes(authed)
		livesHTTP.NewLivesHandler(livesSvc).RegisterRoutes(authed)
		streakHTTP.NewStreakHandler(streakSvc).RegisterRoutes(authed)
		scoreHTTP.NewScoreHandler(scoreSvc).RegisterRoutes(authed)

		claims := claimHTTP.NewClaimHandler(ledger, claimHTTP.Issuers{
			Daily:       streakSvc,
			DailyErrors: streakHTTP.MapError,
			Game:        scoreSvc,
			GameErrors:  scoreHTTP.MapError,
		})
		claims.RegisterRoutes(authed)
		claims.RegisterAdminRoutes(v1.Group("/admin", middleware.RequireAdmin(cfg.Auth.AdminToken)))
	}

	setupHealth(router, cfg.ServiceName, postgresClient, redisClient)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// transfers may wait up to CHAIN_TRANSFER_TIMEOUT before answering
		WriteTimeout: cfg.Chain.TransferTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Scheduler shutdown failed")
	}

	logger.Info().Msg("Server exited")
}

func setupHealth(router *gin.Engine, serviceName string, postgresClient *postgres.Client, redisClient *redis.Client) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	})

	// Liveness probe
	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Readiness probe
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := postgresClient.HealthCheck(ctx); err != nil {
			logger.Warn().Err(err).Msg("Readiness: postgres unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unready",
				"error":  "postgres unavailable",
			})
			return
		}

		if redisClient != nil {
			if err := redisClient.HealthCheck(ctx); err != nil {
				logger.Warn().Err(err).Msg("Readiness: redis unavailable")
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unready",
					"error":  "redis unavailable",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	})
}
