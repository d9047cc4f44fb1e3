// Package ocr is the client for the external document conversion service
// (file -> OCR'd text). The service is a black box: fallible, possibly slow,
// and never retried here.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maiphh/ocr/internal/common"
)

// Config for the conversion service client.
type Config struct {
	BaseURL string        // e.g. https://host/docling/v1
	Timeout time.Duration // http client timeout, default 60s
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type convertResponse struct {
	Document struct {
		DoctagsContent string `json:"doctags_content"`
		TextContent    string `json:"text_content"`
	} `json:"document"`
}

// Convert uploads a file to the conversion service and returns the OCR'd
// text. An empty document is returned as-is; callers decide how to degrade.
func (c *Client) Convert(ctx context.Context, path string, engine string, langs []string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return "", common.WrapError(err, "open source file")
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", common.WrapError(err, "build multipart body")
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", common.WrapError(err, "read source file")
	}

	fields := map[string]string{
		"to_formats": "doctags",
		"force_ocr":  "true",
		"ocr_engine": engine,
		"ocr_lang":   strings.Join(langs, ","),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", common.WrapError(err, "write multipart field")
		}
	}
	if err := mw.Close(); err != nil {
		return "", common.WrapError(err, "close multipart body")
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/convert/file"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", common.WrapError(err, "build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Info("ocr.convert.request",
		"req_id", rid,
		"file", filepath.Base(path),
		"engine", engine,
		"langs", strings.Join(langs, ","),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("ocr.convert.send_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("ocr convert: %w: %v", common.ErrExternalService, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("ocr.convert.body_close_error", "req_id", rid, "error", err)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		c.logger.Error("ocr.convert.status_error", "req_id", rid, "status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("ocr convert status %d: %w", resp.StatusCode, common.ErrExternalService)
	}

	var out convertResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}

	text := out.Document.DoctagsContent
	if text == "" {
		text = out.Document.TextContent
	}
	c.logger.Info("ocr.convert.ok",
		"req_id", rid,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
