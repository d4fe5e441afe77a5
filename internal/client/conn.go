// Package client talks to furni-api: the cloud identity endpoints and the
// authenticated backend API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/wire"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for non-2xx responses without a matching sentinel.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("furni-api: status %d", e.Code)
	}
	return fmt.Sprintf("furni-api: status %d: %s", e.Code, e.Message)
}

type conn struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func newConn(baseURL string, hc *http.Client, log *zap.Logger) *conn {
	if log == nil {
		log = zap.NewNop()
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &conn{base: strings.TrimSuffix(baseURL, "/"), http: hc, log: log}
}

// do sends in as JSON (when non-nil) and decodes the response into out (when
// non-nil). header may be nil.
func (c *conn) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("request finished",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var we wire.Error
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(raw, &we) != nil {
		we.Error = strings.TrimSpace(string(raw))
	}
	se := &StatusError{Code: resp.StatusCode, Message: we.Error}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = errs.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = errs.ErrUnauthorized
	case http.StatusTooManyRequests:
		sentinel = errs.ErrRateLimited
	case http.StatusConflict:
		sentinel = errs.ErrAlreadyExists
	case http.StatusBadRequest:
		sentinel = errs.ErrInvalidArgument
	default:
		return se
	}
	return fmt.Errorf("%w: %w", sentinel, se)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
