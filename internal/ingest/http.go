package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/AngelCh415/adreview/internal/utils"
)

var fetchBackoff = utils.NewBackoff(100*time.Millisecond, 2).WithJitter(150 * time.Millisecond)

// GetJSONWithRetry makes up to three attempts with exponential backoff and jitter.
// Client errors other than 429 are returned immediately.
func GetJSONWithRetry(ctx context.Context, c HTTPClient, url string, dst any) error {
	var permanent error
	err := fetchBackoff.Do(ctx, func(int) error {
		err := getJSON(ctx, c, url, dst)
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			permanent = err
			return nil
		}
		return err
	})
	if permanent != nil {
		return permanent
	}
	return err
}
