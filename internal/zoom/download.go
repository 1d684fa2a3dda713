package zoom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// webhookDownloadMarker appears in download URLs delivered by webhooks,
	// which accept the webhook download token instead of an OAuth token.
	webhookDownloadMarker = "webhook_download"

	downloadUserAgent = "recordings-backend/1.0"

	downloadChunkSize   = 64 * 1024
	downloadLogInterval = 10 * 1024 * 1024
)

// Downloader fetches recording media. Download URLs come in several
// flavors (webhook URLs with a one-time token, URLs with an embedded
// access_token, plain API URLs), each with its own auth scheme, so the
// downloader builds an ordered list of attempts and falls through on 401.
type Downloader struct {
	tokens     *TokenManager
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDownloader creates a Downloader. The timeout bounds a single full
// media transfer and should be generous.
func NewDownloader(tokens *TokenManager, timeout time.Duration, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type downloadAttempt struct {
	desc   string
	url    string
	bearer string
}

// Download fetches the media at downloadURL and returns its bytes.
// downloadToken is the webhook-delivered download token, if any.
func (d *Downloader) Download(ctx context.Context, downloadURL, downloadToken string) ([]byte, error) {
	attempts, err := d.buildAttempts(ctx, downloadURL, downloadToken)
	if err != nil {
		return nil, err
	}

	var lastStatus int
	for i, at := range attempts {
		data, status, err := d.fetch(ctx, at)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			return data, nil
		}
		lastStatus = status
		if status == http.StatusUnauthorized && i < len(attempts)-1 {
			d.logger.Warn("download unauthorized, trying next auth scheme",
				zap.String("auth", at.desc),
				zap.String("next", attempts[i+1].desc))
			continue
		}
		return nil, fmt.Errorf("download failed with status %d (auth %s)", status, at.desc)
	}
	return nil, fmt.Errorf("download failed with status %d", lastStatus)
}

// buildAttempts chooses the auth schemes to try, in order.
func (d *Downloader) buildAttempts(ctx context.Context, downloadURL, downloadToken string) ([]downloadAttempt, error) {
	switch {
	case strings.Contains(downloadURL, webhookDownloadMarker) && downloadToken != "":
		return []downloadAttempt{
			{desc: "webhook token bearer", url: downloadURL, bearer: downloadToken},
			{desc: "no auth", url: downloadURL},
		}, nil

	case strings.Contains(downloadURL, "access_token="):
		return []downloadAttempt{
			{desc: "embedded access_token", url: downloadURL},
		}, nil

	case downloadToken != "":
		return []downloadAttempt{
			{desc: "download token query", url: appendQueryToken(downloadURL, downloadToken)},
		}, nil

	default:
		token, err := d.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire download token: %w", err)
		}
		return []downloadAttempt{
			{desc: "oauth bearer", url: downloadURL, bearer: token},
			{desc: "refreshed oauth bearer", url: downloadURL, bearer: ""},
		}, nil
	}
}

// fetch performs one attempt. A 401 returns (nil, 401, nil) so the caller
// can fall through to the next scheme; other statuses return their body.
func (d *Downloader) fetch(ctx context.Context, at downloadAttempt) ([]byte, int, error) {
	bearer := at.bearer
	if at.desc == "refreshed oauth bearer" {
		d.tokens.Invalidate()
		token, err := d.tokens.Token(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("refresh download token: %w", err)
		}
		bearer = token
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, at.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, resp.StatusCode, nil
	}

	data, err := d.readAll(resp.Body, resp.ContentLength)
	if err != nil {
		return nil, 0, err
	}
	return data, http.StatusOK, nil
}

// readAll streams the body in chunks, logging progress on large files.
func (d *Downloader) readAll(body io.Reader, contentLength int64) ([]byte, error) {
	start := time.Now()
	var buf bytes.Buffer
	if contentLength > 0 {
		buf.Grow(int(contentLength))
	}

	chunk := make([]byte, downloadChunkSize)
	var total int64
	var nextLog int64 = downloadLogInterval
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			total += int64(n)
			if total >= nextLog {
				d.logger.Debug("download progress",
					zap.Int64("bytes", total),
					zap.Int64("content_length", contentLength))
				nextLog += downloadLogInterval
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read download body after %d bytes: %w", total, err)
		}
	}

	d.logger.Info("download complete",
		zap.Int64("bytes", total),
		zap.Duration("elapsed", time.Since(start)))
	return buf.Bytes(), nil
}

func appendQueryToken(downloadURL, token string) string {
	sep := "?"
	if strings.Contains(downloadURL, "?") {
		sep = "&"
	}
	return downloadURL + sep + "access_token=" + url.QueryEscape(token)
}
