// Command list-channels asks the chat bridge for the channels visible to the
// account, so operators can pick IDs for the channel binding.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"telebridge/internal/chat"
	"telebridge/internal/config"
	"telebridge/internal/settings"
	"telebridge/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/telebridge.yaml"
	if p := os.Getenv("TELEBRIDGE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)

	store, err := settings.NewStore(cfg.Storage.ConfigDir, logger)
	if err != nil {
		log.Fatalf("failed to open settings store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listener := chat.NewListener(cfg.Chat.URL, store, logger)
	channels, err := listener.ListChannels(ctx)
	if err != nil {
		log.Fatalf("failed to list channels: %v", err)
	}

	if len(channels) == 0 {
		fmt.Println("no channels visible to this account")
		return
	}
	for _, c := range channels {
		fmt.Printf("%d\t%s\n", c.ID, c.Title)
	}
}
