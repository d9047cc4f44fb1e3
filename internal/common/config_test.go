package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "easyocr", cfg.OCR.DefaultEngine)
	assert.Equal(t, []string{"en", "vi"}, cfg.OCR.DefaultLangs)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 200, cfg.Preview.MaxAssets)
	assert.Equal(t, 2, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 50000, cfg.Pipeline.MaxPromptChars)
	assert.Equal(t, "v1", cfg.Pipeline.SchemaVersion)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("OCR_BASE_URL", "http://ocr.local")
	t.Setenv("OCR_ENGINE", "rapidocr")
	t.Setenv("LLM_BASE_URL", "http://llm.local/v1")
	t.Setenv("PREVIEW_MAX_ASSETS", "5")
	t.Setenv("PIPELINE_MAX_RETRIES", "4")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "http://ocr.local", cfg.OCR.BaseURL)
	assert.Equal(t, "rapidocr", cfg.OCR.DefaultEngine)
	assert.Equal(t, 5, cfg.Preview.MaxAssets)
	assert.Equal(t, 4, cfg.Pipeline.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  addr: ":7070"
ocr:
  base_url: "http://ocr.internal"
  default_engine: "easyocr"
llm:
  base_url: "http://llm.internal/v1"
  model: "qwen2.5"
preview:
  max_assets: 10
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "qwen2.5", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Preview.MaxAssets)
	require.NoError(t, cfg.Validate())
}

func TestEnvWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7070\"\n"), 0o644))
	t.Setenv("SERVER_ADDR", ":6060")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestNegativeMaxAssetsDisablesPreviews(t *testing.T) {
	t.Setenv("PREVIEW_MAX_ASSETS", "-1")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Preview.MaxAssets)
}

func TestValidateRequiresServiceURLs(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	cfg.OCR.BaseURL = "http://ocr.local"
	err = cfg.Validate()
	require.Error(t, err)

	cfg.LLM.BaseURL = "http://llm.local"
	require.NoError(t, cfg.Validate())
}

func TestAppErrorFormatting(t *testing.T) {
	base := errors.New("boom")
	appErr := NewAppError("OCR_FAILED", "conversion failed", base)
	assert.Equal(t, "OCR_FAILED: conversion failed: boom", appErr.Error())
	assert.True(t, errors.Is(appErr, base))

	assert.True(t, errors.Is(NotFoundf("job %q", "x"), ErrNotFound))
	assert.True(t, errors.Is(InvalidInputf("bad"), ErrInvalidInput))
	assert.Nil(t, WrapError(nil, "context"))
}
