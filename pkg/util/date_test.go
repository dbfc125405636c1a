package util

import (
	"testing"
	"time"
)

func TestTradingDayUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 02:00 UTC on the 7th is still the 6th in New York
	got := TradingDay(time.Date(2025, 1, 7, 2, 0, 0, 0, time.UTC), ny)
	want := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNextDayCrossesMonth(t *testing.T) {
	got := NextDay(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
	if FormatDate(got) != "2024-03-01" {
		t.Fatalf("unexpected next day %v", got)
	}
}

func TestMonthsBefore(t *testing.T) {
	got := MonthsBefore(time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), 18)
	if FormatDate(got) != "2024-01-15" {
		t.Fatalf("unexpected %v", got)
	}
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("2024-10-10")
	if !ok || FormatDate(got) != "2024-10-10" {
		t.Fatalf("unexpected %v %v", got, ok)
	}
	got, ok = ParseDate("2024-10-10T23:10:10Z")
	if !ok || FormatDate(got) != "2024-10-10" {
		t.Fatalf("unexpected %v %v", got, ok)
	}
	if _, ok := ParseDate("yesterday"); ok {
		t.Fatalf("expected failure")
	}
	if FormatDate(time.Time{}) != "" {
		t.Fatalf("zero date should format empty")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" soxl, TQQQ,,bil ")
	if len(got) != 3 || got[0] != "SOXL" || got[1] != "TQQQ" || got[2] != "BIL" {
		t.Fatalf("unexpected %v", got)
	}
}
