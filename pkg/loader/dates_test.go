package loader

import (
	"testing"
	"time"

	"github.com/vanderheijden86/bmo/pkg/model"
)

func TestParseDate_DayFirst(t *testing.T) {
	got := ParseDate("15/01/2026")
	if got.Day() != 15 || got.Month() != time.January || got.Year() != 2026 {
		t.Errorf("ParseDate(15/01/2026) = %v", got)
	}
}

func TestParseDate_Formats(t *testing.T) {
	want := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2026-03-04", "04/03/2026", "4/3/2026", "04-03-2026", "04.03.2026"} {
		if got := ParseDate(in); !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}

	withTime := ParseDate("04/03/2026 14:30")
	if withTime.Hour() != 14 || withTime.Minute() != 30 {
		t.Errorf("time part lost: %v", withTime)
	}

	rfc := ParseDate("2026-03-04T10:00:00.250Z")
	if rfc.IsZero() || rfc.Hour() != 10 {
		t.Errorf("RFC3339 with fraction = %v", rfc)
	}

	ms := ParseDate("1767225600000")
	if !ms.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("millis = %v", ms)
	}
	secs := ParseDate("1767225600")
	if !secs.Equal(ms) {
		t.Errorf("seconds = %v", secs)
	}
}

func TestParseDateEnd(t *testing.T) {
	endOfDay := time.Date(2026, 1, 15, 23, 59, 59, 999999999, time.UTC)
	for _, in := range []string{"15/01/2026", "2026-01-15", " 15.01.2026 "} {
		if got := ParseDateEnd(in); !got.Equal(endOfDay) {
			t.Errorf("ParseDateEnd(%q) = %v, want %v", in, got, endOfDay)
		}
	}
	exact := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	if got := ParseDateEnd("15/01/2026 09:30"); !got.Equal(exact) {
		t.Errorf("explicit time should be kept, got %v", got)
	}
	if got := ParseDateEnd("1768469400"); !got.Equal(time.Unix(1768469400, 0).UTC()) {
		t.Errorf("epoch should be exact, got %v", got)
	}
	if !ParseDateEnd("N/A").IsZero() {
		t.Error("unparseable bound should stay zero")
	}
}

func TestParseDate_UnparseableIsSentinel(t *testing.T) {
	for _, in := range []string{"N/A", "", "  ", "31/02/2026", "tomorrow", "2026-13-01"} {
		got := ParseDate(in)
		if !got.IsZero() {
			t.Errorf("ParseDate(%q) = %v, want zero", in, got)
		}
		if model.UnixMillis(got) != 0 {
			t.Errorf("ParseDate(%q) sentinel should be 0 millis", in)
		}
	}
}
