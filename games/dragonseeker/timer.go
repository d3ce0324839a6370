/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import "time"

const (
	MinTimerSeconds = 30
	MaxTimerSeconds = 180
)

func validTimer(seconds int) bool {
	return seconds >= MinTimerSeconds && seconds <= MaxTimerSeconds
}

// remainingSeconds is max(0, duration - elapsed) in whole seconds. It is
// recomputed from the start instant on every call; nothing ticks.
func remainingSeconds(duration int, startedAt, now time.Time) int {
	elapsed := int(now.Sub(startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	return max(0, duration-elapsed)
}
