package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leonardcser/retro-badge/internal/cache"
	"github.com/leonardcser/retro-badge/internal/config"
	"github.com/leonardcser/retro-badge/internal/logger"
)

func main() {
	if err := logger.InitFromEnv(filepath.Join(config.DefaultDir(), "cache.log")); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.Load(os.Getenv("RETRO_BADGE_CONFIG"))
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		panic(err)
	}
	sock := cfg.Cache.Socket
	// The daemon always stores in bbolt; sqlite is an in-process backend.
	db := cfg.Cache.Path
	if cfg.Cache.Backend != config.BackendBolt && cfg.Cache.Backend != config.BackendDaemon {
		db = filepath.Join(config.DefaultDir(), "cache.bbolt")
	}

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(sock), 0o755)
	_ = os.Remove(sock)

	l, err := net.Listen("unix", sock)
	if err != nil {
		logger.Errorf("Failed to listen on %s: %v", sock, err)
		panic(err)
	}
	_ = os.Chmod(sock, 0o600)

	store, err := cache.OpenDB(db)
	if err != nil {
		_ = l.Close()
		logger.Errorf("Failed to open cache at %s: %v", db, err)
		panic(err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	logger.Infof("Cache daemon serving %s on %s", db, sock)
	srv := cache.NewServer(func(bucket string) (cache.KV, error) { return store.Bucket(bucket) })
	if err := srv.Serve(l); err != nil {
		logger.Errorf("cache daemon error: %v", err)
	}
	logger.Infof("Cache daemon stopped")
}
