package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veranda/internal/api"
	"veranda/internal/auth"
	"veranda/internal/commands"
	"veranda/internal/config"
	"veranda/internal/filestore"
	"veranda/internal/forum"
	"veranda/internal/friends"
	"veranda/internal/http"
	"veranda/internal/logging"
	"veranda/internal/notify"
	"veranda/internal/storage"
	"veranda/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("veranda", flag.ContinueOnError)
	promote := flags.String("promote", "", "User ID to grant the administrator role (needs a running server)")
	genVAPID := flags.Bool("gen-vapid-keys", false, "Print a new VAPID key pair for push notifications and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *genVAPID {
		public, private, err := notify.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", public, private)
		return nil
	}

	cfg, err := config.Load(*promote != "")
	if err != nil {
		return err
	}

	if *promote != "" {
		return commands.Promote(*promote, cfg)
	}

	_, logCloser, err := logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	verifier, err := auth.NewVerifier(ctx, auth.Config{
		Secret:      cfg.AuthSecret,
		Issuer:      cfg.TokenIssuer,
		TokenExpiry: cfg.TokenExpiry,
	})
	if err != nil {
		return err
	}

	hubConfig := ws.HubConfig{HistoryLimit: cfg.HistoryLimit}
	var push *notify.WebPush
	if cfg.PushEnabled() {
		push = notify.NewWebPush(bbStorage, notify.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDSubscriber,
		})
		hubConfig.Notifier = push
	} else {
		slog.Info("push notifications disabled, VAPID keys not configured")
	}
	hub := ws.NewHub(bbStorage, hubConfig)

	blobs, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}

	apiHandlers := api.New(api.Deps{
		Auth:           verifier,
		Store:          bbStorage,
		Hub:            hub,
		Forum:          forum.NewService(bbStorage, hub),
		Friends:        friends.NewService(bbStorage),
		Files:          filestore.NewService(blobs, bbStorage, cfg.MaxUploadBytes),
		VAPIDPublicKey: cfg.VAPIDPublicKey,
	})
	chat := ws.NewServer(verifier, hub, ws.ConnectionConfig{
		SendQueueSize: cfg.SendQueueSize,
		WriteTimeout:  cfg.WriteTimeout,
	})

	adminServer := http.NewAdminServer(api.NewAdminHandler(bbStorage, cfg.AdminUser, cfg.AdminPasswordHash), cfg.AdminAddr)
	apiServer := http.NewAPIServer(apiHandlers, chat, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	if push != nil {
		g.Go(func() error {
			return push.Run(gCtx)
		})
	}

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, flag.ErrHelp) {
		log.Fatalf("Application error: %v", err)
	}
}
