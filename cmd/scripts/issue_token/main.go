package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/teampulse/insight/internal/config"
	"github.com/teampulse/insight/internal/models"
	"github.com/teampulse/insight/internal/utils"
	"github.com/teampulse/insight/pkg/logger"
)

// issue_token prints a bearer token for an existing user, for local testing
// against a running server.
func main() {
	userID := flag.Uint("user", 0, "user id to issue the token for")
	hours := flag.Int("hours", 0, "token lifetime in hours (default: jwt.expire_hour)")
	flag.Parse()

	if *userID == 0 {
		fmt.Fprintln(os.Stderr, "usage: issue_token -user <id> [-hours N]")
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	var user models.User
	if err := models.GetDB().First(&user, *userID).Error; err != nil {
		logger.Fatalf("User %d not found: %v", *userID, err)
	}

	lifetime := cfg.JWT.ExpireHour
	if *hours > 0 {
		lifetime = *hours
	}
	utils.SetJWTSecret(cfg.JWT.Secret)
	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, lifetime)
	if err != nil {
		logger.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
