package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/custody"
	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	// Set log formatter based on environment
	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Set log level based on environment
	switch logLevel {
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// seedDevToken mints seed.tokens whole tokens to the owner and funds the
// reward pool with seed.fund of them, so a fresh dev server is usable
func seedDevToken(ctx context.Context, engine *ledger.Engine, token *custody.MemoryToken, seed devSeed) {
	if seed.tokens == 0 {
		return
	}
	owner := engine.Owner()
	token.Mint(owner, types.Tokens(seed.tokens))
	token.Approve(owner, engine.CustodyAddress(), types.Tokens(seed.tokens))

	fund := seed.fund
	if fund > seed.tokens {
		logrus.Warnf("DEV_SEED_FUND %d exceeds DEV_SEED_TOKENS %d, funding %d", fund, seed.tokens, seed.tokens)
		fund = seed.tokens
	}
	if fund > 0 {
		if err := engine.Fund(ctx, owner, types.Tokens(fund)); err != nil {
			logrus.Warnf("Dev pool funding failed: %v", err)
			return
		}
	}
	logrus.WithFields(logrus.Fields{
		"owner":  owner.Hex(),
		"minted": seed.tokens,
		"funded": fund,
	}).Info("Dev token seeded")
}

// getEnvUint parses an unsigned integer from an environment variable or returns the default
func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		} else {
			logrus.Warnf("Invalid integer in %s: %v, using default: %v", key, err, defaultValue)
		}
	}
	return defaultValue
}
