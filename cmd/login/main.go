// Command login drives a full bridge handshake from a terminal: it requests a
// state token, prints the Telegram deep link, polls until the login is
// approved in chat, and prints the resulting magic link.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dkozyrev/tg-auth-bridge/poller"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "bridge server base URL")
	origin := flag.String("origin", "http://localhost:5173", "web origin to report as the handshake initiator")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	done := make(chan struct{})
	hooks := poller.Hooks{
		OnHandoff: func(deepLink string) {
			fmt.Printf("Open this link in Telegram and approve the login:\n\n  %s\n\n", deepLink)
		},
		OnCompleted: func(magicLink, userID string) {
			fmt.Printf("Login approved for user %s\nMagic link:\n\n  %s\n\n", userID, magicLink)
			close(done)
		},
		OnFailed: func(err error) {
			log.Error().Err(err).Msg("handshake failed")
			close(done)
		},
		OnTimedOut: func() {
			log.Warn().Msg("handshake timed out, try again")
			close(done)
		},
	}

	p, err := poller.New(poller.NewClient(*serverURL), poller.TickerScheduler{}, *origin, hooks)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create poller")
	}

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		os.Exit(1)
	}
	defer p.Stop()

	<-done
}
