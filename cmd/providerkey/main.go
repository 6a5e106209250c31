package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"affiliatescout/internal/bootstrap"
	"affiliatescout/internal/infra"
	"affiliatescout/internal/infra/credentials"
)

func main() {
	var (
		keyFlag      string
		providerFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "API token for the selected provider (fallbacks to APIFY_TOKEN)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderApify, "provider to configure")
	flag.Parse()

	_ = godotenv.Load()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	switch provider {
	case credentials.ProviderApify:
	case "":
		provider = credentials.ProviderApify
	default:
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("APIFY_TOKEN"))
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s token is required via -key or environment\n", strings.ToUpper(provider))
		os.Exit(1)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := infra.NewLogger("cli", "providerkey", cfg.LogLevel).With().Str("provider", provider).Logger()
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	props := map[string]any{"stored_at": time.Now().UTC().Format(time.RFC3339)}
	if err := store.Tokens.SetToken(ctx, provider, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s token: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s token stored successfully; restart api and worker to pick it up\n", strings.ToUpper(provider))
}
