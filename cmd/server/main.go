package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/dkozyrev/tg-auth-bridge/handshake"
	"github.com/dkozyrev/tg-auth-bridge/internal/config"
	"github.com/dkozyrev/tg-auth-bridge/magiclink"
	"github.com/dkozyrev/tg-auth-bridge/server"
	"github.com/dkozyrev/tg-auth-bridge/users"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
)

const reapInterval = time.Minute

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	displayAppname(c.GetAppName())

	bridge, links, err := buildServices(c)
	if err != nil {
		return err
	}

	srv, err := server.New(c, bridge, links)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)

	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go reapExpiredStates(reapCtx, bridge)

	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServices(c config.Config) (*handshake.BridgeService, *magiclink.Manager, error) {
	signingKey := c.GetMagicLinkSigningKey()
	if len(signingKey) == 0 {
		return nil, nil, errors.New("MAGIC_LINK_KEY must be set")
	}

	links, err := magiclink.NewManager(signingKey, c.GetBaseURL(), magiclink.NewInMemoryUsedLinks())
	if err != nil {
		return nil, nil, fmt.Errorf("magiclink.NewManager: %w", err)
	}

	bridge, err := handshake.NewBridgeService(
		handshake.Repos{
			Handshakes: handshake.NewInMemoryRepo(),
			Users:      users.NewInMemoryRepo(),
		},
		links,
		handshake.Settings{
			BotUsername:   c.GetBotUsername(),
			WebhookSecret: c.GetWebhookSecret(),
			RedirectPath:  c.GetRedirectPath(),
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("handshake.NewBridgeService: %w", err)
	}

	return bridge, links, nil
}

// reapExpiredStates lazily removes abandoned handshakes. Every read path
// already filters on expiry, so this only bounds memory.
func reapExpiredStates(ctx context.Context, bridge *handshake.BridgeService) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := bridge.ReapExpired(); err != nil {
				zlog.Warn().Err(err).Msg("failed to reap expired auth states")
			} else if n > 0 {
				zlog.Debug().Int("count", n).Msg("reaped expired auth states")
			}
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
