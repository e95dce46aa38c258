package lineage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// RemoteSink POSTs each event to a remote lineage collector, with a small
// bounded retry of its own before returning an error to the Recorder's
// outer retry queue. Optional per spec §4.3 ("file backend required,
// remote optional").
type RemoteSink struct {
	endpoint string
	client   *http.Client
	attempts int
}

// NewRemoteSink constructs a RemoteSink posting to endpoint.
func NewRemoteSink(endpoint string) *RemoteSink {
	return &RemoteSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		attempts: 3,
	}
}

func (s *RemoteSink) Write(ctx context.Context, event schema.LineageEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("lineage: marshaling event for remote sink: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("lineage: building remote sink request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("lineage: remote sink returned status %d", resp.StatusCode)
	}
	return lastErr
}
