// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

type (
	// Progress receives download progress. Total is -1 when the server
	// does not announce a length.
	Progress func(uri string, downloaded, total int64)

	// HTTP fetches over http and https.
	HTTP struct {
		// Client defaults to http.DefaultClient.
		Client *http.Client
		// Progress is optional.
		Progress Progress
	}

	// StatusError reports a non-2xx response.
	StatusError struct {
		URI    string
		Status int
	}

	progressReader struct {
		r          io.Reader
		uri        string
		downloaded int64
		total      int64
		report     Progress
	}
)

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d %s", e.URI, e.Status, http.StatusText(e.Status))
}

// Fetch implements engine.Fetcher.
func (h *HTTP) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URI: uri, Status: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if h.Progress != nil {
		body = &progressReader{r: resp.Body, uri: uri, total: resp.ContentLength, report: h.Progress}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	return data, nil
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.downloaded += int64(n)
		p.report(p.uri, p.downloaded, p.total)
	}
	return n, err
}
