package app

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/leonardcser/retro-badge/internal/cache"
	"github.com/leonardcser/retro-badge/internal/logger"
)

// DaemonBinary is the cache daemon executable name.
const DaemonBinary = "retro-badge-cache"

var daemonStartTimeout = 5 * time.Second

// EnsureDaemon checks that a cache daemon answers on sock and starts one when
// it does not, then waits for it to come up.
func EnsureDaemon(sock string) error {
	logger.Infof("Attempting to connect to cache daemon at %s", sock)
	err := cache.Ping(sock)
	if err == nil {
		return nil
	}
	logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
	if startErr := startCacheDaemon(sock); startErr != nil {
		logger.Errorf("Failed to start cache daemon: %v", startErr)
	} else {
		logger.Infof("Cache daemon started")
	}

	deadline := time.Now().Add(daemonStartTimeout)
	for time.Now().Before(deadline) {
		if err = cache.Ping(sock); err == nil {
			logger.Infof("Successfully connected to cache daemon")
			return nil
		}
		logger.Debugf("Cache daemon not ready yet: %v", err)
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("cache daemon at %s unreachable: %w", sock, err)
}

func startCacheDaemon(sock string) error {
	candidates := make([]string, 0, 3)
	// 1) Next to this executable
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), DaemonBinary))
	}
	// 2) PATH
	if path, err := exec.LookPath(DaemonBinary); err == nil {
		candidates = append(candidates, path)
	}
	// 3) Current working directory
	candidates = append(candidates, "./"+DaemonBinary)

	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin)
		cmd.Stdout = nil
		cmd.Stderr = nil
		cmd.Env = append(os.Environ(), "RETRO_BADGE_CACHE_SOCK="+sock)
		return cmd.Start()
	}
	return exec.ErrNotFound
}
