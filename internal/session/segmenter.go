// Package session reconstructs bounded browsing sessions from per-user
// chronological request streams.
//
// Segmentation runs in two passes: numbering over the gap structure, then a
// statistical filter that removes users with super-human request frequency
// and renumbers the survivors from scratch. Numbering is a pure function of
// the surviving records, so re-running the segmenter on its own output is
// idempotent.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/dhlab/gallicanav/internal/model"
)

// Config carries the segmentation thresholds. Defaults match the production
// pipeline; they are injected rather than read from globals so the segmenter
// stays independently testable.
type Config struct {
	// Inactivity is the gap above which a new session starts.
	Inactivity time.Duration
	// FrequencyThreshold is the maximum humanly-plausible mean request
	// frequency (requests per second) before a user's sessions are dropped.
	FrequencyThreshold float64
	// MinRequestsPerUser excludes users with too few requests to form a
	// trustworthy session.
	MinRequestsPerUser int
}

// DefaultConfig returns the production thresholds: 60 minutes inactivity,
// 1 request/second, 5 requests per user.
func DefaultConfig() Config {
	return Config{
		Inactivity:         60 * time.Minute,
		FrequencyThreshold: 1,
		MinRequestsPerUser: 5,
	}
}

// Segment builds sessions for one chunk of classified requests. Input order
// does not matter; bots must already be excluded by the caller. The result
// is ordered by user, session number, position.
func Segment(recs []model.ClassifiedRequest, chunk int, cfg Config) []model.SessionRecord {
	sorted := make([]model.ClassifiedRequest, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].User != sorted[j].User {
			return sorted[i].User < sorted[j].User
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	sorted = dropSparseUsers(sorted, cfg.MinRequestsPerUser)

	numbered := number(sorted, cfg.Inactivity)
	flagged := flaggedUsers(Aggregate(numbered), cfg.FrequencyThreshold)

	if len(flagged) > 0 {
		survivors := sorted[:0:0]
		for _, r := range sorted {
			if !flagged[r.User] {
				survivors = append(survivors, r)
			}
		}
		// Removal changes gap adjacency; numbering is re-derived from the
		// surviving sequence alone, never patched.
		numbered = number(survivors, cfg.Inactivity)
	}

	finalize(numbered, chunk)
	return numbered
}

// dropSparseUsers removes users with fewer than min requests. Input must be
// sorted by user.
func dropSparseUsers(recs []model.ClassifiedRequest, min int) []model.ClassifiedRequest {
	out := recs[:0:0]
	for start := 0; start < len(recs); {
		end := start
		for end < len(recs) && recs[end].User == recs[start].User {
			end++
		}
		if end-start >= min {
			out = append(out, recs[start:end]...)
		}
		start = end
	}
	return out
}

// number assigns session ordinals and 1-based in-session positions over a
// (user, timestamp)-sorted sequence. A boundary is the user's first request
// or a gap above the inactivity threshold.
func number(recs []model.ClassifiedRequest, inactivity time.Duration) []model.SessionRecord {
	out := make([]model.SessionRecord, 0, len(recs))
	var (
		sessionNum int
		position   int
	)
	for i, r := range recs {
		firstOfUser := i == 0 || recs[i-1].User != r.User
		var gap time.Duration
		if !firstOfUser {
			gap = r.Timestamp.Sub(recs[i-1].Timestamp)
		}
		switch {
		case firstOfUser:
			sessionNum = 1
			position = 1
		case gap > inactivity:
			sessionNum++
			position = 1
		default:
			position++
		}
		out = append(out, model.SessionRecord{
			ClassifiedRequest: r,
			SessionNumber:     sessionNum,
			Position:          position,
			GapSeconds:        gap.Seconds(),
		})
	}
	return out
}

// Aggregate computes per-session statistics. Elapsed time is the sum of the
// intra-session gaps, so a single-request session has zero elapsed time and
// an undefined frequency.
func Aggregate(recs []model.SessionRecord) []model.SessionStats {
	var stats []model.SessionStats
	for start := 0; start < len(recs); {
		end := start
		for end < len(recs) &&
			recs[end].User == recs[start].User &&
			recs[end].SessionNumber == recs[start].SessionNumber {
			end++
		}
		s := model.SessionStats{
			User:          recs[start].User,
			SessionNumber: recs[start].SessionNumber,
			RequestCount:  end - start,
		}
		for i := start + 1; i < end; i++ {
			s.ElapsedSec += recs[i].GapSeconds
		}
		if s.ElapsedSec > 0 {
			s.Frequency = float64(s.RequestCount) / s.ElapsedSec
			s.FreqDefined = true
		}
		stats = append(stats, s)
		start = end
	}
	return stats
}

// flaggedUsers returns users whose global request frequency (mean of the
// defined per-session frequencies) exceeds the threshold. Sessions with an
// undefined frequency never contribute: a zero-duration session cannot be
// flagged on a single sample.
func flaggedUsers(stats []model.SessionStats, threshold float64) map[string]bool {
	type acc struct {
		sum float64
		n   int
	}
	byUser := make(map[string]*acc)
	for _, s := range stats {
		a := byUser[s.User]
		if a == nil {
			a = &acc{}
			byUser[s.User] = a
		}
		if s.FreqDefined {
			a.sum += s.Frequency
			a.n++
		}
	}
	flagged := make(map[string]bool)
	for user, a := range byUser {
		if a.n > 0 && a.sum/float64(a.n) > threshold {
			flagged[user] = true
		}
	}
	return flagged
}

// finalize assigns the human-readable identifiers and the session end
// markers in place. Records must be ordered by user, session, position.
func finalize(recs []model.SessionRecord, chunk int) {
	for i := range recs {
		r := &recs[i]
		r.SessionID = fmt.Sprintf("S_%d_%d_U_%s", chunk, r.SessionNumber, r.User)
		r.RequestID = fmt.Sprintf("S_%d_%d_U_%s", r.SessionNumber, r.Position, r.User)
		last := i == len(recs)-1 ||
			recs[i+1].User != r.User ||
			recs[i+1].SessionNumber != r.SessionNumber
		r.SessionEnd = last
	}
}
