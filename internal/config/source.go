package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
)

// Fetch downloads a single configuration file from src (http, git, s3, gcs or
// a local path understood by go-getter) to dst.
func Fetch(ctx context.Context, src, dst string) error {
	if src == "" {
		return fmt.Errorf("config source is empty")
	}
	if dst == "" {
		return fmt.Errorf("config destination is empty")
	}
	if dir := filepath.Dir(dst); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	pwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return fmt.Errorf("fetch config %s: %w", src, err)
	}
	return nil
}
