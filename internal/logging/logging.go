/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stdout}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

// Ignored logs a swallowed error at debug level so the non-fatal policy
// stays auditable. Callers use it where failure must not disturb playback.
func Ignored(logger zerolog.Logger, err error, during string) {
	if err == nil {
		return
	}
	logger.Debug().Bool("ignored", true).Err(err).Str("during", during).Msg("non-fatal error swallowed")
}
