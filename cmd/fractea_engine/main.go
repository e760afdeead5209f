package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"fractea_engine/api"
	"fractea_engine/internal/client"
	"fractea_engine/internal/config"
	"fractea_engine/internal/port"
	"fractea_engine/internal/repository"
	"fractea_engine/internal/service"
	"fractea_engine/internal/utils"
	"fractea_engine/pkg/blockchain"
	"fractea_engine/pkg/keycipher"
	"fractea_engine/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

func main() {
	// Bootstrap logger for the config-loading phase.
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync()

	slogHandler := zapslog.NewHandler(zapLogger.Core())
	slog.SetDefault(slog.New(slogHandler))

	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Warnf("Invalid log level in config: %s. Defaulting to Info.", cfg.Logging.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Infof("Failed to log to file, using default stdout: %v", err)
		}
	}

	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	metrics.MustRegisterMetrics()

	secret := os.Getenv(cfg.Custody.SecretEnv)
	if secret == "" {
		log.Fatalf("Custody secret environment variable %s is not set", cfg.Custody.SecretEnv)
	}
	cipher, err := keycipher.NewKeystoreCipher(secret)
	if err != nil {
		log.Fatalf("Failed to initialize key cipher: %v", err)
	}

	// Durable blob store behind every repository.
	var store port.KVStore
	switch cfg.Storage.Driver {
	case "memory":
		store = repository.NewMemoryKVStore()
		zapLogger.Info("Using in-memory storage")
	default:
		store, err = repository.NewFileKVStore(cfg.Storage.Dir)
		if err != nil {
			log.Fatalf("Failed to initialize file storage: %v", err)
		}
		zapLogger.Info("Using file storage", zap.String("dir", cfg.Storage.Dir))
	}

	walletRepo := repository.NewWalletRepository(store)
	ledgerRepo := repository.NewLedgerRepository(store)
	txRepo := repository.NewTransactionRepository(store)

	custodySvc := service.NewCustodyService(walletRepo, ledgerRepo, cipher, cfg.Custody, zapLogger)
	ledgerSvc := service.NewLedgerService(ledgerRepo, cfg.Cache, zapLogger)
	historySvc := service.NewHistoryService(txRepo, zapLogger)
	feePolicy := service.NewFeePolicy(cfg.FeePolicy, zapLogger)

	provider := blockchain.NewEVMClientProvider(cfg, zapLogger)

	activeNode, _ := cfg.Network(cfg.ActiveNetwork)

	// Broadcast path is fixed once, here.
	var caster port.Broadcaster
	switch cfg.Broadcaster.Mode {
	case "simulated":
		caster = blockchain.NewSimulatedBroadcaster()
		zapLogger.Warn("Using simulated broadcaster, nothing reaches the network")
	default:
		chainClient, err := provider.GetClient(cfg.ActiveNetwork)
		if err != nil {
			log.Fatalf("Failed to connect to active network %s: %v", cfg.ActiveNetwork, err)
		}
		evmClient, ok := chainClient.(*blockchain.EVMClient)
		if !ok {
			log.Fatalf("Live broadcaster requires an EVM client for network %s", cfg.ActiveNetwork)
		}
		caster = blockchain.NewLiveBroadcaster(evmClient, zapLogger)
		zapLogger.Info("Live broadcaster ready", zap.String("network", cfg.ActiveNetwork))
	}

	var explorer port.ExplorerGateway
	if activeNode.ExplorerAPIURL != "" {
		explorer = client.NewExplorerClient(
			activeNode.ExplorerAPIURL,
			time.Duration(cfg.RpcClient.CallTimeoutSeconds)*time.Second,
			zapLogger,
		)
		zapLogger.Info("Explorer gateway ready", zap.String("url", activeNode.ExplorerAPIURL))
	}

	reconSvc := service.NewReconciliationService(cfg, custodySvc, ledgerSvc, walletRepo, provider, zapLogger)
	submissionSvc := service.NewSubmissionService(
		cfg, custodySvc, ledgerSvc, historySvc, feePolicy, provider, caster, explorer, reconSvc, zapLogger)

	// Background workers.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go submissionSvc.Run(workerCtx)
	go reconSvc.Run(workerCtx)

	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true // Adjust for production
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.Use(utils.ZapLoggerMiddleware(zapLogger))
	router.Use(gin.Recovery())

	engineHandler := api.NewEngineHandler(custodySvc, submissionSvc, reconSvc, ledgerSvc, historySvc, cfg, zapLogger)
	api.RegisterEngineRoutes(router, engineHandler)

	if cfg.Swagger.Enabled {
		api.RegisterSwaggerRoutes(router, cfg.Swagger.Path)
		zapLogger.Info("Swagger UI enabled", zap.String("path", cfg.Swagger.Path+"/index.html"))
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	zapLogger.Info("Prometheus metrics endpoint enabled", zap.String("path", "/metrics"))

	pprofRouter := router.Group("/debug/pprof")
	{
		pprofRouter.GET("/", gin.WrapF(pprof.Index))
		pprofRouter.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofRouter.GET("/profile", gin.WrapF(pprof.Profile))
		pprofRouter.POST("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/trace", gin.WrapF(pprof.Trace))
		pprofRouter.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		pprofRouter.GET("/block", gin.WrapH(pprof.Handler("block")))
		pprofRouter.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		pprofRouter.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofRouter.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
		pprofRouter.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
	}
	zapLogger.Info("Pprof endpoints enabled under /debug/pprof")

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info(fmt.Sprintf("Server starting on port %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	stopWorkers()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exiting")
}
