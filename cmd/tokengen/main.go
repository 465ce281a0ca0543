// Command tokengen mints a bearer token for a terminal.
//
//	tokengen -venue bistro-12 -terminal till-1 -role cashier
//
// The signing secret and default lifetime come from the same JWT_SECRET and
// TOKEN_TTL settings the server reads.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mmynk/tableside/internal/auth"
	"github.com/mmynk/tableside/internal/config"
	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/pkg/logging"
)

func main() {
	logging.Setup()

	envFile := flag.String("env", ".env", "optional env file")
	venue := flag.String("venue", "", "venue the terminal serves")
	terminal := flag.String("terminal", "", "terminal ID")
	role := flag.String("role", string(models.RoleWaiter), "kitchen, waiter, cashier or reception")
	ttl := flag.Duration("ttl", -1, "token lifetime; 0 never expires (default TOKEN_TTL)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	lifetime := cfg.TokenTTL
	if *ttl >= 0 {
		lifetime = *ttl
	}

	switch models.Role(*role) {
	case models.RoleKitchen, models.RoleWaiter, models.RoleCashier, models.RoleReception:
	default:
		slog.Error("Unknown role", "role", *role)
		os.Exit(2)
	}

	token, err := auth.NewJWTManager(cfg.JWTSecret, lifetime).Generate(models.Actor{
		VenueID:    *venue,
		TerminalID: *terminal,
		Role:       models.Role(*role),
	})
	if err != nil {
		slog.Error("Failed to generate token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
