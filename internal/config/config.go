package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL     = "http://localhost:5000"
	DefaultGatewayURL = "ws://localhost:8080/ws"
	DefaultSaveDelay  = 500 * time.Millisecond
	DefaultGateway    = ":8080"
)

// Client settings for the arena CLI.
type Client struct {
	APIURL     string
	GatewayURL string
	DraftsPath string
	SaveDelay  time.Duration
	LogLevel   string
	Token      string // optional bearer token
}

// Gateway settings for the realtime gateway.
type Gateway struct {
	Addr        string
	RedisAddr   string // empty: rooms stay in-process
	LogLevel    string
	Origins     []string // websocket origin patterns; empty means same host only
	NotifyToken string   // if set, /leaderboard/notify requires it as a bearer token
}

// loadDotenv reads .env files if present. A missing file is not an error.
func loadDotenv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func LoadClient(files ...string) (Client, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := loadDotenv(files...); err != nil {
		return Client{}, err
	}

	delay := DefaultSaveDelay
	if v := os.Getenv("ARENA_SAVE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Client{}, fmt.Errorf("ARENA_SAVE_DELAY: %w", err)
		}
		if d <= 0 {
			return Client{}, fmt.Errorf("ARENA_SAVE_DELAY must be positive, got %s", d)
		}
		delay = d
	}

	drafts := os.Getenv("ARENA_DRAFTS_PATH")
	if drafts == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Client{}, err
		}
		drafts = filepath.Join(home, ".codearena", "drafts.db")
	}

	return Client{
		APIURL:     getenv("ARENA_API_URL", DefaultAPIURL),
		GatewayURL: getenv("ARENA_GATEWAY_URL", DefaultGatewayURL),
		DraftsPath: drafts,
		SaveDelay:  delay,
		LogLevel:   getenv("ARENA_LOG_LEVEL", "info"),
		Token:      os.Getenv("ARENA_TOKEN"),
	}, nil
}

func LoadGateway(files ...string) (Gateway, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := loadDotenv(files...); err != nil {
		return Gateway{}, err
	}
	var origins []string
	for _, o := range strings.Split(os.Getenv("GATEWAY_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Gateway{
		Addr:        getenv("GATEWAY_ADDR", DefaultGateway),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		LogLevel:    getenv("GATEWAY_LOG_LEVEL", "info"),
		Origins:     origins,
		NotifyToken: os.Getenv("GATEWAY_NOTIFY_TOKEN"),
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
