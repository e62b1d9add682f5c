package mirror

import (
	"testing"
	"time"
)

func TestSelectPrefersHigherScore(t *testing.T) {
	r := New()
	r.RecordSuccess("https://a.example/", 100*time.Millisecond)
	r.RecordSuccess("https://a.example/", 100*time.Millisecond)
	r.RecordFailure("https://b.example/")
	r.RecordSuccess("https://b.example/", 4*time.Second)

	got := r.Select([]string{"https://a.example/", "https://b.example/"})
	if got != "https://a.example/" {
		t.Errorf("Select = %q, want https://a.example/", got)
	}
}

func TestSelectFallsBackToFirstWhenNoneAcceptable(t *testing.T) {
	r := New()
	r.RecordFailure("https://a.example/")
	r.RecordFailure("https://a.example/")
	r.RecordFailure("https://a.example/")

	got := r.Select([]string{"https://a.example/", "https://b.example/"})
	if got != "https://a.example/" {
		t.Errorf("Select = %q, want fallback to first supplied mirror", got)
	}
}

func TestSelectIsDeterministicOnTies(t *testing.T) {
	r := New()
	r.RecordSuccess("https://b.example/", 0)
	r.RecordSuccess("https://a.example/", 0)

	got := r.Select([]string{"https://b.example/", "https://a.example/"})
	if got != "https://a.example/" {
		t.Errorf("Select = %q, want stable-sorted https://a.example/ on equal scores", got)
	}
}

func TestStatusFromResponseTime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want Status
	}{
		{d: time.Second, want: StatusHealthy},
		{d: 3 * time.Second, want: StatusSlow},
		{d: 6 * time.Second, want: StatusUnreachable},
	}
	for _, tt := range tests {
		if got := statusFromResponseTime(tt.d); got != tt.want {
			t.Errorf("statusFromResponseTime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRecordFailureMarksFailedWhenFailuresExceedSuccesses(t *testing.T) {
	r := New()
	r.RecordSuccess("https://a.example/", 0)
	r.RecordFailure("https://a.example/")
	r.RecordFailure("https://a.example/")

	info, ok := r.Get("https://a.example/")
	if !ok {
		t.Fatal("expected mirror to be tracked")
	}
	if info.Status != StatusFailed {
		t.Errorf("status = %q, want failed", info.Status)
	}
}
