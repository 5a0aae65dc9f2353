package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"call-compass-go/internal/metrics"
	"call-compass-go/internal/types"
)

// CheckUploadName rejects anything that is not an Excel workbook.
func CheckUploadName(name string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "xlsx" || ext == "xls" {
		return nil
	}
	return newError("upload", KindValidation, 0,
		fmt.Errorf("invalid file type: expected .xlsx or .xls, got .%s", ext))
}

// UploadFile sends an Excel workbook to the backend. The name is checked before anything
// touches the network. The request is bounded by the upload timeout and is not retried.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader) (types.UploadResult, error) {
	const op = "upload"
	if err := CheckUploadName(name); err != nil {
		c.log.WithError(err).WithField("file", name).Warn("upload rejected")
		metrics.GatewayRequests.WithLabelValues(op, string(KindValidation)).Inc()
		return types.UploadResult{Error: err.Error()}, err
	}

	start := time.Now()
	defer func() {
		metrics.GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	res, err := c.upload(ctx, name, content)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(op, string(KindOf(err))).Inc()
		if IsTimeout(err) {
			c.log.WithError(err).WithField("file", name).Error("upload timed out")
			return types.UploadResult{Error: fmt.Sprintf("upload timed out after %s", c.uploadTimeout)}, err
		}
		c.log.WithError(err).WithField("file", name).Error("upload failed")
		return types.UploadResult{Error: err.Error()}, err
	}
	metrics.GatewayRequests.WithLabelValues(op, "ok").Inc()
	c.log.WithField("file", name).WithField("rows", res.Rows).Info("upload accepted")
	return res, nil
}

func (c *Client) upload(ctx context.Context, name string, content io.Reader) (types.UploadResult, error) {
	const op = "upload"
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return types.UploadResult{}, newError(op, KindValidation, 0, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return types.UploadResult{}, newError(op, KindValidation, 0, fmt.Errorf("read file: %w", err))
	}
	if err := mw.Close(); err != nil {
		return types.UploadResult{}, newError(op, KindValidation, 0, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return types.UploadResult{}, newError(op, KindValidation, 0, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.UploadResult{}, newError(op, KindTimeout, 0, context.DeadlineExceeded)
		}
		return types.UploadResult{}, classify(op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.UploadResult{}, newError(op, KindTimeout, 0, context.DeadlineExceeded)
		}
		return types.UploadResult{}, classify(op, err)
	}
	if resp.StatusCode >= 300 {
		return types.UploadResult{}, newError(op, KindBackend, resp.StatusCode, errors.New(backendMessage(raw, resp.Status)))
	}

	var out types.UploadResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.UploadResult{}, newError(op, KindParse, resp.StatusCode, fmt.Errorf("json decode error: %w", err))
	}
	if out.Error != "" {
		return out, newError(op, KindBackend, resp.StatusCode, errors.New(out.Error))
	}
	return out, nil
}
