package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"affiliatescout/internal/bootstrap"
	"affiliatescout/internal/infra"
)

func main() {
	var (
		ownerFlag  string
		typeFlag   string
		amountFlag int
		showFlag   bool
	)

	flag.StringVar(&ownerFlag, "owner", "", "owner ID to credit (JWT subject)")
	flag.StringVar(&typeFlag, "type", "", "credit type (defaults to CREDIT_TYPE)")
	flag.IntVar(&amountFlag, "amount", 10, "credits to grant")
	flag.BoolVar(&showFlag, "show", false, "print the current balance without granting")
	flag.Parse()

	_ = godotenv.Load()

	owner := strings.TrimSpace(ownerFlag)
	if owner == "" {
		exitWithError(errors.New("-owner is required"))
	}
	if !showFlag && amountFlag <= 0 {
		exitWithError(fmt.Errorf("-amount must be positive, got %d", amountFlag))
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	creditType := strings.TrimSpace(typeFlag)
	if creditType == "" {
		creditType = cfg.Discovery.CreditType
	}

	logger := infra.NewLogger("cli", "credits", cfg.LogLevel).With().Str("owner_id", owner).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open store: %w", err))
	}
	defer store.Close()

	if showFlag {
		balance, err := store.Credits.Balance(ctx, owner, creditType)
		if err != nil {
			exitWithError(fmt.Errorf("failed to read balance: %w", err))
		}
		fmt.Printf("owner %s has %d %s credits\n", owner, balance, creditType)
		return
	}

	balance, err := store.Credits.Grant(ctx, owner, creditType, amountFlag)
	if err != nil {
		exitWithError(fmt.Errorf("failed to grant credits: %w", err))
	}
	fmt.Printf("granted %d %s credits to %s, balance=%d\n", amountFlag, creditType, owner, balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
