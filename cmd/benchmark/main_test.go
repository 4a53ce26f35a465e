package main

import (
	"testing"
	"time"
)

func TestValidateRuns(t *testing.T) {
	for _, n := range []int{0, -3} {
		if err := validateRuns(n); err == nil {
			t.Errorf("expected error for -n %d", n)
		}
	}
	if err := validateRuns(1); err != nil {
		t.Errorf("unexpected error for -n 1: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	if _, err := summarize(nil); err == nil {
		t.Error("expected error for no runs")
	}

	stat, err := summarize([]time.Duration{40 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if stat.First != 40*time.Millisecond {
		t.Errorf("expected first run 40ms, got %s", stat.First)
	}
	if stat.Median != 20*time.Millisecond {
		t.Errorf("expected median 20ms, got %s", stat.Median)
	}
	if stat.Max != 40*time.Millisecond {
		t.Errorf("expected max 40ms, got %s", stat.Max)
	}
}
