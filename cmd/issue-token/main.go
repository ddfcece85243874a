package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/logger"
	"github.com/stemsi/pisaprep/internal/service"
)

// issue-token prints an owner JWT signed with JWT_SECRET. Production tokens
// come from the auth provider; this is for local development.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	var (
		ownerID string
		ttl     time.Duration
	)
	flag.StringVar(&ownerID, "owner", cfg.OwnerID, "Owner id to put in the token")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if ownerID == "" {
		log.Fatal().Msg("owner id is required (-owner or OWNER_ID)")
	}

	token, err := service.NewAuthService(cfg).IssueToken(ownerID, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Fprintln(os.Stdout, token)
}
