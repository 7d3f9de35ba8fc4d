package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nugget/kith/internal/httpkit"
)

// postJSON sends in as a JSON body to url and decodes a 2xx reply into
// out. Both payloads are logged at LevelTrace. A non-2xx reply is an
// *httpkit.APIError.
func postJSON(ctx context.Context, hc *http.Client, logger *slog.Logger, provider, url string, header map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", provider, err)
	}
	logger.Log(ctx, LevelTrace, "request payload", "json", string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	if err := httpkit.CheckResponse(provider, resp); err != nil {
		logger.Warn("provider rejected request", "error", err)
		return err
	}
	defer httpkit.Discard(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", provider, err)
	}
	logger.Log(ctx, LevelTrace, "response payload", "json", string(raw))

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}
