package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var httpProbeClient = &http.Client{
	Timeout: 5 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("stopped after 5 redirects")
		}
		return nil
	},
}

// evalHTTPMsg issues a GET against spec.URL and checks the status code and,
// if requested, a substring of the response body, bounded by a 5s timeout
// and a 5-redirect cap.
func evalHTTPMsg(ctx context.Context, spec Spec) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return fmt.Sprintf("invalid url '%s': %s", spec.URL, err)
	}

	resp, err := httpProbeClient.Do(req)
	if err != nil {
		return fmt.Sprintf("request to '%s' failed: %s", spec.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != spec.Status {
		return fmt.Sprintf("'%s' returned status %d, want %d", spec.URL, resp.StatusCode, spec.Status)
	}

	if spec.BodyContains != nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Sprintf("failed to read body of '%s': %s", spec.URL, err)
		}
		if !strings.Contains(string(body), *spec.BodyContains) {
			return fmt.Sprintf("'%s' body does not contain '%s'", spec.URL, *spec.BodyContains)
		}
	}

	return ""
}
