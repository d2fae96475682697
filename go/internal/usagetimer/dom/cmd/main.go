//go:build js && wasm

package main

import (
	"context"
	"os"

	"github.com/mcdev12/screentime/go/internal/usagetimer"
	"github.com/mcdev12/screentime/go/internal/usagetimer/dom"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Browser console via the wasm_exec stderr shim
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ready := make(chan struct{})
	dom.OnReady(func() { close(ready) })
	<-ready

	el, err := dom.Lookup(usagetimer.DisplayID)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot start usage timer")
	}

	timer, err := usagetimer.New(el)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create usage timer")
	}

	// The page owns our lifetime; Run only returns if the element breaks.
	if err := timer.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("usage timer stopped")
	}
}
