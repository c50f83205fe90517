package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Notifier delivers a verification link to an address. Callers treat
// failures as non-fatal: the token stays valid and can be resent.
type Notifier interface {
	SendVerification(ctx context.Context, email, link string) error
}

type httpClient struct {
	baseURL string
	from    string
	client  *http.Client
}

func NewHTTPClient(baseURL, from string, timeout time.Duration) Notifier {
	return &httpClient{baseURL: baseURL, from: from, client: &http.Client{Timeout: timeout}}
}

func (c *httpClient) SendVerification(ctx context.Context, email, link string) error {
	payload := map[string]interface{}{
		"from":     c.from,
		"to":       email,
		"template": "email_verification",
		"vars":     map[string]string{"verification_url": link},
	}
	return c.post(ctx, "/api/v1/send", payload)
}

func (c *httpClient) post(ctx context.Context, path string, payload interface{}) error {
	op := func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode >= 500 {
			return fmt.Errorf("mail gateway error: %d", res.StatusCode)
		}
		if res.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("mail gateway rejected: %d", res.StatusCode))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 3 * time.Second
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
