package main

import (
	"github.com/rs/zerolog/log"

	"github.com/embucket/embucket/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("embucketd exited")
	}
}
