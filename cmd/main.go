package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-broker/infrastructure/ws"
	"chat-broker/internal"
	"chat-broker/moderation"
	"chat-broker/repositories"
	"chat-broker/runtime"
	"chat-broker/runtime/workers"
	"chat-broker/search"
	"chat-broker/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper; run() centralizes lifecycle and errors so
	// defers execute before the process exits.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Broker terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger. The .env file is optional.
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB for messages and accounts, Bluge for search)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.NewMessageIndex(config.BlugeFilepath, log)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	userRepository := repositories.NewUserRepository(db)

	// 3. Broker runtime
	registry := runtime.NewRegistry(log)
	coordinator := runtime.NewCoordinator(log, registry, messageRepository)
	coordinator.AddHooks(index)

	if config.ModerationEnabled {
		charReplacement, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return exitConfig, err
		}
		dictionary, err := moderation.LoadDictionaries()
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to load moderation dictionaries: %w", err)
		}
		log.Info(fmt.Sprintf("%d censored words loaded [%s]",
			len(dictionary.Words), strings.Join(dictionary.Languages, ",")))

		moderator, err := moderation.NewModerator(dictionary.Words, charReplacement)
		if err != nil {
			return exitRuntime, err
		}
		coordinator.WithModerator(moderator)
	}

	manager := runtime.NewManager(log, coordinator, registry)

	// 4. Services & transport
	authService := services.NewAuthService(userRepository,
		[]byte(config.AuthTokenSecret), config.AuthTokenDuration)
	chatService := services.NewChatService(manager, coordinator, authService, messageRepository, index)

	server := ws.NewServer(log, chatService, authService, config.ConnectionBufferSize)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)

	// 5. Supervision & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		ws.NewServerWorker(log, address, server.Router()),
		workers.NewHealthMonitorWorker(log, manager, config.MetricInterval),
	)

	log.Info("Starting broker and all supervised workers")
	sup.Run(ctx)
	return exitOK, nil
}
