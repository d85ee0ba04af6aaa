package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/dhlab/gallicanav/internal/model"
)

var t0 = time.Date(2023, 3, 12, 10, 0, 0, 0, time.UTC)

func req(user string, at time.Time) model.ClassifiedRequest {
	return model.ClassifiedRequest{
		ParsedRequest: model.ParsedRequest{
			Timestamp: at,
			User:      user,
			Endpoint:  "/blog/post",
		},
		Category:   model.CategoryBlog,
		PageNumber: model.NoPage,
	}
}

func reqsAt(user string, offsets ...time.Duration) []model.ClassifiedRequest {
	out := make([]model.ClassifiedRequest, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, req(user, t0.Add(off)))
	}
	return out
}

func TestSegment_InactivityBoundary(t *testing.T) {
	// [t, t+10min, t+90min, t+95min] with a 60 minute threshold: two
	// sessions, the third request opening the second one.
	recs := reqsAt("u1", 0, 10*time.Minute, 90*time.Minute, 95*time.Minute)
	cfg := Config{Inactivity: 60 * time.Minute, FrequencyThreshold: 1, MinRequestsPerUser: 4}

	out := Segment(recs, 7, cfg)
	if len(out) != 4 {
		t.Fatalf("got %d records, want 4", len(out))
	}
	wantSessions := []int{1, 1, 2, 2}
	wantPositions := []int{1, 2, 1, 2}
	for i, r := range out {
		if r.SessionNumber != wantSessions[i] || r.Position != wantPositions[i] {
			t.Fatalf("record %d: session %d pos %d, want session %d pos %d",
				i, r.SessionNumber, r.Position, wantSessions[i], wantPositions[i])
		}
	}
	if out[0].SessionID != "S_7_1_U_u1" {
		t.Fatalf("session id = %q", out[0].SessionID)
	}
	if out[1].RequestID != "S_1_2_U_u1" {
		t.Fatalf("request id = %q", out[1].RequestID)
	}
	if !out[1].SessionEnd || !out[3].SessionEnd || out[0].SessionEnd || out[2].SessionEnd {
		t.Fatalf("session end markers wrong: %v %v %v %v",
			out[0].SessionEnd, out[1].SessionEnd, out[2].SessionEnd, out[3].SessionEnd)
	}
}

func TestSegment_MinRequestsPerUser(t *testing.T) {
	recs := append(
		reqsAt("sparse", 0, time.Minute, 2*time.Minute, 3*time.Minute),
		reqsAt("dense", 0, time.Minute, 2*time.Minute, 3*time.Minute, 4*time.Minute)...,
	)
	out := Segment(recs, 1, DefaultConfig())
	for _, r := range out {
		if r.User == "sparse" {
			t.Fatalf("user below the minimum request count must be excluded")
		}
	}
	if len(out) != 5 {
		t.Fatalf("got %d records, want 5", len(out))
	}
}

func TestSegment_FrequencyFilter(t *testing.T) {
	// 20 requests over 10 seconds: 2 req/s > 1 req/s, removed.
	fast := make([]model.ClassifiedRequest, 0, 20)
	for i := 0; i < 20; i++ {
		fast = append(fast, req("fast", t0.Add(time.Duration(i)*10*time.Second/19)))
	}
	// 20 requests over 40 seconds: 0.5 req/s, retained.
	slow := make([]model.ClassifiedRequest, 0, 20)
	for i := 0; i < 20; i++ {
		slow = append(slow, req("slow", t0.Add(time.Duration(i)*40*time.Second/19)))
	}

	out := Segment(append(fast, slow...), 1, DefaultConfig())
	for _, r := range out {
		if r.User == "fast" {
			t.Fatalf("super-human-frequency session must be removed")
		}
	}
	if len(out) != 20 {
		t.Fatalf("got %d records, want the 20 slow requests", len(out))
	}
}

func TestSegment_ZeroDurationSessionExempt(t *testing.T) {
	// Five single-request sessions: every session has zero elapsed time, so
	// no frequency is defined and the user cannot be flagged.
	recs := reqsAt("u1", 0, 2*time.Hour, 4*time.Hour, 6*time.Hour, 8*time.Hour)
	out := Segment(recs, 1, DefaultConfig())
	if len(out) != 5 {
		t.Fatalf("got %d records, want 5 (zero-duration sessions are exempt)", len(out))
	}
	for i, r := range out {
		if r.SessionNumber != i+1 || r.Position != 1 {
			t.Fatalf("record %d: session %d pos %d", i, r.SessionNumber, r.Position)
		}
	}
}

func TestSegment_NumberingIndependentAcrossUsers(t *testing.T) {
	steady := reqsAt("steady", 0, time.Minute, 2*time.Minute, 90*time.Minute, 92*time.Minute)
	burst := make([]model.ClassifiedRequest, 0, 20)
	for i := 0; i < 20; i++ {
		burst = append(burst, req("burst", t0.Add(time.Duration(i)*100*time.Millisecond)))
	}

	withBurst := Segment(append(burst, steady...), 1, DefaultConfig())
	alone := Segment(steady, 1, DefaultConfig())

	var got, want []string
	for _, r := range withBurst {
		if r.User == "steady" {
			got = append(got, fmt.Sprintf("%s/%d", r.SessionID, r.Position))
		}
	}
	for _, r := range alone {
		want = append(want, fmt.Sprintf("%s/%d", r.SessionID, r.Position))
	}
	if len(got) != len(want) {
		t.Fatalf("steady user records: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("numbering changed by unrelated user removal: %s vs %s", got[i], want[i])
		}
	}
}

func TestSegment_Idempotent(t *testing.T) {
	recs := append(
		reqsAt("u1", 0, 5*time.Minute, 70*time.Minute, 75*time.Minute, 80*time.Minute),
		reqsAt("u2", 0, time.Minute, 2*time.Minute, 3*time.Minute, 10*time.Minute)...,
	)
	first := Segment(recs, 3, DefaultConfig())

	again := make([]model.ClassifiedRequest, 0, len(first))
	for _, r := range first {
		again = append(again, r.ClassifiedRequest)
	}
	second := Segment(again, 3, DefaultConfig())

	if len(first) != len(second) {
		t.Fatalf("second pass changed record count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].SessionID != second[i].SessionID ||
			first[i].Position != second[i].Position ||
			first[i].RequestID != second[i].RequestID ||
			first[i].SessionEnd != second[i].SessionEnd {
			t.Fatalf("record %d not stable across passes: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestAggregate_Stats(t *testing.T) {
	recs := reqsAt("u1", 0, 10*time.Second, 30*time.Second)
	numbered := number(recs, time.Hour)
	stats := Aggregate(numbered)
	if len(stats) != 1 {
		t.Fatalf("got %d stats, want 1", len(stats))
	}
	s := stats[0]
	if s.RequestCount != 3 || s.ElapsedSec != 30 {
		t.Fatalf("count=%d elapsed=%v", s.RequestCount, s.ElapsedSec)
	}
	if !s.FreqDefined || s.Frequency != 0.1 {
		t.Fatalf("frequency=%v defined=%v, want 0.1 defined", s.Frequency, s.FreqDefined)
	}
}
