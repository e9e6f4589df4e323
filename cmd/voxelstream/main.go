package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxelstream/internal/config"
	"voxelstream/internal/server"
)

func main() {
	var (
		cfgPath string
		cfgURL  string
	)
	flag.StringVar(&cfgPath, "config", "", "path to the streaming configuration file (.json, .yaml)")
	flag.StringVar(&cfgURL, "config-url", "", "go-getter source to fetch the configuration from into -config")
	flag.Parse()

	ctx, cancel := signalContext()
	defer cancel()

	if err := prepareConfig(ctx, cfgPath, cfgURL); err != nil {
		log.Fatalf("prepare config: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	srv, err := server.New(cfg, nil)
	if err != nil {
		log.Fatalf("initialise server: %v", err)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server exited with error: %v", err)
	}
}

// prepareConfig materialises the configuration file at cfgPath from the
// environment or from a remote source before it is loaded.
func prepareConfig(ctx context.Context, cfgPath, cfgURL string) error {
	wrote, err := writeConfigFromEnv(cfgPath)
	if err != nil || wrote {
		return err
	}
	if cfgURL == "" {
		return nil
	}
	if cfgPath == "" {
		return errors.New("-config-url requires a -config destination path")
	}
	return config.Fetch(ctx, cfgURL, cfgPath)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
