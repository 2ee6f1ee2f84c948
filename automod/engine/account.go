package engine

import (
	"time"

	"github.com/guildwarden/warden/automod/event"
)

// no platform accounts exist before this time
var platformAccountEpoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// returns true if account creation timestamp is plausible: not-nil, not in distant past, not in the future
func plausibleAccountCreation(when *time.Time) bool {
	if when == nil {
		return false
	}
	if !when.After(platformAccountEpoch) {
		return false
	}
	if when.After(time.Now().Add(time.Hour)) {
		return false
	}
	return true
}

// checks if the author's account was created recently. if the creation time is missing or bogus, returns 'false'
func authorIsYoungerThan(msg *event.MessageEvent, age time.Duration) bool {
	if age <= 0 || !plausibleAccountCreation(msg.AuthorCreatedAt) {
		return false
	}
	return time.Since(*msg.AuthorCreatedAt) < age
}
