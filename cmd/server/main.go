package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"agentdeck/internal/adapter"
	"agentdeck/internal/config"
	"agentdeck/internal/logger"
	"agentdeck/internal/realtime"
	"agentdeck/internal/session"
	"agentdeck/internal/store"
)

// serverConfig holds process-level settings, loaded from environment
// variables. Session behavior lives in the hot-reloadable config file.
type serverConfig struct {
	Port       int
	ConfigFile string
	DBPath     string
	AuthToken  string
	Debug      bool
}

func loadServerConfig() serverConfig {
	home, _ := os.UserHomeDir()
	cfg := serverConfig{
		Port:       8420,
		ConfigFile: filepath.Join(home, ".agentdeck", "config.yaml"),
		DBPath:     filepath.Join(home, ".agentdeck", "sessions.db"),
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("CONFIG_FILE"); v != "" {
		cfg.ConfigFile = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		cfg.Debug = true
	}
	return cfg
}

// envTokenValidator accepts the single token configured via AUTH_TOKEN.
// Real deployments plug in their own validator.
type envTokenValidator struct {
	token string
}

func (v *envTokenValidator) Validate(token string) error {
	if v.token == "" || token == v.token {
		return nil
	}
	return fmt.Errorf("invalid token")
}

func main() {
	srvCfg := loadServerConfig()
	logger.Init(os.Stderr)
	logger.SetDebug(srvCfg.Debug)
	log := logger.Get()

	sessCfg, err := config.LoadFile(srvCfg.ConfigFile)
	if err != nil {
		log.Info("config file not loaded, using defaults", "path", srvCfg.ConfigFile, "error", err)
	}
	cfgProvider := config.NewProvider(sessCfg)

	stopWatch := make(chan struct{})
	if err := config.Watch(cfgProvider, srvCfg.ConfigFile, stopWatch); err != nil {
		log.Warn("config hot reload unavailable", "error", err)
	}

	db, err := store.OpenSQLite(context.Background(), srvCfg.DBPath)
	if err != nil {
		log.Error("open session store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := session.NewManager(cfgProvider, adapter.DefaultRegistry(), db)
	hub := realtime.New(manager, cfgProvider, &envTokenValidator{token: srvCfg.AuthToken})

	addr := fmt.Sprintf(":%d", srvCfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: hub.Handler(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down")
		close(stopWatch)
		manager.Shutdown()
		httpServer.Close()
	}()

	log.Info("agentdeck server running", "addr", addr)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Error("http server", "error", err)
		os.Exit(1)
	}
}
