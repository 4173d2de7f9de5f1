package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradingagent/internal/analyzer"
	"tradingagent/internal/api"
	"tradingagent/internal/bus"
	"tradingagent/internal/config"
	"tradingagent/internal/exchange"
	"tradingagent/internal/manager"
	"tradingagent/internal/repository"
	"tradingagent/pkg/crypto"
	"tradingagent/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	utils.InitGlobalLogger(utils.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Connected to database successfully")

	groupRepo := repository.NewGroupRepository(db)
	agentRepo := repository.NewAgentRepository(db)
	tradeRepo := repository.NewTradeRepository(db)

	exchangeClient, err := initExchangeClient(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize exchange client: %v", err)
	}

	busConfig := bus.DefaultConfig()
	busConfig.Host = cfg.Redis.Host
	busConfig.Port = cfg.Redis.Port
	busConfig.DB = cfg.Redis.DB
	messageBus := bus.New(busConfig)
	defer messageBus.Close()

	agentManager := manager.New(db, exchangeClient, messageBus)
	performanceAnalyzer := analyzer.New(db, messageBus)

	deps := &api.Dependencies{
		GroupRepo: groupRepo,
		AgentRepo: agentRepo,
		TradeRepo: tradeRepo,
		Manager:   agentManager,
		Analyzer:  performanceAnalyzer,
	}

	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Останавливаем все трекаемые воркеры до закрытия сервера - каждый
	// персистирует свой терминальный статус сам.
	for _, id := range agentManager.ListRunningAgentIDs() {
		agentManager.StopAgentProcess(id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initExchangeClient расшифровывает учетные данные биржи и строит клиента
// по имени из конфигурации. ENCRYPTION_KEY уже провалидирован config.Load.
func initExchangeClient(cfg *config.Config) (exchange.Client, error) {
	key := []byte(cfg.Security.EncryptionKey)

	apiKey, err := crypto.Decrypt(cfg.Exchange.APIKey, key)
	if err != nil {
		// Значение может быть в открытом виде, если никогда не проходило
		// через цикл сохранения/шифрования - используем как есть.
		apiKey = cfg.Exchange.APIKey
	}
	apiSecret, err := crypto.Decrypt(cfg.Exchange.APISecret, key)
	if err != nil {
		apiSecret = cfg.Exchange.APISecret
	}

	return exchange.NewClient(cfg.Exchange.Name, apiKey, apiSecret, cfg.Exchange.Passphrase)
}
