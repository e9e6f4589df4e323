package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"voxelstream/internal/config"
)

func TestWriteConfigFromEnvJSON(t *testing.T) {
	t.Setenv(envConfigYAMLB64, "")

	cfg := config.Default()
	cfg.Noise.Seed = 99
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	t.Setenv(envConfigJSON, string(data))

	path := filepath.Join(t.TempDir(), "conf", "config.json")
	wrote, err := writeConfigFromEnv(path)
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if !wrote {
		t.Fatalf("expected config to be written")
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if loaded.Noise.Seed != 99 {
		t.Fatalf("expected seed 99, got %d", loaded.Noise.Seed)
	}
}

func TestWriteConfigFromEnvYAML(t *testing.T) {
	cfg := config.Default()
	cfg.Chunk.Width = 16
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	t.Setenv(envConfigJSON, "")
	t.Setenv(envConfigYAMLB64, base64.StdEncoding.EncodeToString(data))

	path := filepath.Join(t.TempDir(), "config.yaml")
	wrote, err := writeConfigFromEnv(path)
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if !wrote {
		t.Fatalf("expected config to be written")
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if loaded.Chunk.Width != 16 {
		t.Fatalf("expected chunk width 16, got %d", loaded.Chunk.Width)
	}
}

func TestWriteConfigFromEnvPartialPayloadKeepsDefaults(t *testing.T) {
	t.Setenv(envConfigYAMLB64, "")
	t.Setenv(envConfigJSON, `{"stream":{"tickRate":"50ms","viewDistance":3}}`)

	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := writeConfigFromEnv(path); err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if loaded.Stream.ViewDistance != 3 || loaded.Chunk.Width != config.Default().Chunk.Width {
		t.Fatalf("unexpected merged config: %+v", loaded.Stream)
	}
}

func TestWriteConfigFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv(envConfigYAMLB64, "")
	t.Setenv(envConfigJSON, `{"chunk":{"width":0,"height":12}}`)

	_, err := writeConfigFromEnv(filepath.Join(t.TempDir(), "config.json"))
	if err == nil || !strings.Contains(err.Error(), "chunk.width must be positive") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWriteConfigFromEnvRequiresPath(t *testing.T) {
	t.Setenv(envConfigYAMLB64, "")
	t.Setenv(envConfigJSON, `{}`)
	if _, err := writeConfigFromEnv(""); err == nil {
		t.Fatal("expected error without a config path")
	}
}

func TestWriteConfigFromEnvNoPayload(t *testing.T) {
	t.Setenv(envConfigJSON, "")
	t.Setenv(envConfigYAMLB64, "")

	wrote, err := writeConfigFromEnv(filepath.Join(t.TempDir(), "unused.json"))
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if wrote {
		t.Fatalf("expected no config to be written")
	}
}

func TestPrepareConfigFetchesURL(t *testing.T) {
	t.Setenv(envConfigJSON, "")
	t.Setenv(envConfigYAMLB64, "")

	dir := t.TempDir()
	src := filepath.Join(dir, "remote.json")
	cfg := config.Default()
	cfg.Stream.ViewDistance = 2
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(src, data, 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	dst := filepath.Join(dir, "local", "config.json")
	if err := prepareConfig(context.Background(), dst, src); err != nil {
		t.Fatalf("prepareConfig: %v", err)
	}
	loaded, err := config.Load(dst)
	if err != nil {
		t.Fatalf("load fetched config: %v", err)
	}
	if loaded.Stream.ViewDistance != 2 {
		t.Fatalf("expected view distance 2, got %d", loaded.Stream.ViewDistance)
	}

	if err := prepareConfig(context.Background(), "", src); err == nil {
		t.Fatal("expected error when -config-url has no destination")
	}
}
