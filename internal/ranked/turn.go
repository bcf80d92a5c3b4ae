package ranked

import "time"

// TurnWindow is how long the turn holder has to send a message before the
// session expires.
const TurnWindow = 15 * time.Second

// turnExpired reports whether a turn started at turnStartedAt has outlived
// window at the provided instant. Expiry is computed here and persisted via a
// conditional update; there is no background timer anywhere in the service.
func turnExpired(turnStartedAt, now time.Time, window time.Duration) bool {
	return now.Sub(turnStartedAt) >= window
}
