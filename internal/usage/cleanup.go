package usage

import "time"

// CleanupInterval is how often SQL stores delete entries past their retention.
const CleanupInterval = 1 * time.Hour

// runCleanupLoop calls cleanupFn immediately and then every CleanupInterval
// until stop is closed.
func runCleanupLoop(stop <-chan struct{}, cleanupFn func()) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	cleanupFn()
	for {
		select {
		case <-ticker.C:
			cleanupFn()
		case <-stop:
			return
		}
	}
}

// retentionCutoff returns the oldest timestamp still inside the retention window.
func retentionCutoff(now time.Time, retentionDays int) time.Time {
	return now.AddDate(0, 0, -retentionDays).UTC()
}
