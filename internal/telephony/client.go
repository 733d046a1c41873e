package telephony

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes bounds vendor response bodies; anything larger is garbage.
const maxResponseBytes = 1 << 20

func defaultHTTPClient() *http.Client {
	// No client-level timeout: the router owns deadlines via ctx.
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 0,
		},
	}
}

func send(ctx context.Context, client *http.Client, req *http.Request) (int, []byte, error) {
	res, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, err
	}
	return res.StatusCode, body, nil
}

// vendorReason extracts a human-readable failure reason from a vendor error
// body without assuming a specific schema.
func vendorReason(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err == nil {
		for _, k := range []string{"message", "error", "detail", "RestException"} {
			switch v := m[k].(type) {
			case string:
				if v != "" {
					return v
				}
			case map[string]any:
				if s, ok := v["Message"].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
