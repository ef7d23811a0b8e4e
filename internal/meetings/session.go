package meetings

import "time"

// DurationSeconds derives how long a meeting (or a participant's presence)
// lasted. Missing timestamps or a negative span yield zero.
func DurationSeconds(started, ended *time.Time) int64 {
	if started == nil || ended == nil {
		return 0
	}
	d := int64(ended.Sub(*started) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// Happened reports whether a meeting actually took place: somebody joined and
// measurable time passed between start and end. A meeting that was created but
// never joined, or ended in the same instant it started, did not happen.
func Happened(participantJoins int, durationSeconds int64) bool {
	return participantJoins > 0 && durationSeconds > 0
}
