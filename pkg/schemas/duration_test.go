package schemas

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "go_duration", in: "1h30m", want: 90 * time.Minute},
		{name: "timecode_hms", in: "01:02:03", want: time.Hour + 2*time.Minute + 3*time.Second},
		{name: "timecode_millis_padding", in: "00:00:01.5", want: 1500 * time.Millisecond},
		{name: "timecode_minutes", in: "01:30", want: 90 * time.Second},
		{name: "bare_seconds", in: "2", want: 2 * time.Second},
		{name: "fractional_seconds", in: "0.25", want: 250 * time.Millisecond},
		{name: "iso8601", in: "PT1H30M", want: 90 * time.Minute},
		{name: "iso8601_fraction", in: "PT1.5S", want: 1500 * time.Millisecond},
		{name: "invalid", in: "nope", wantErr: true},
		{name: "empty", in: "  ", wantErr: true},
		{name: "bad_seconds_field", in: "00:00:75", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDuration(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil (duration=%v)", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("duration mismatch: got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	// Unmarshal from timecode format
	var d Duration
	if err := json.Unmarshal([]byte(`"00:01:30"`), &d); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("duration mismatch: got=%v want=%v", d.Duration, 90*time.Second)
	}

	// Marshal uses Go duration string (e.g., "1m30s")
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var d2 Duration
	if err := json.Unmarshal(b, &d2); err != nil {
		t.Fatalf("unmarshal roundtrip failed: %v", err)
	}
	if d2.Duration != 90*time.Second {
		t.Fatalf("roundtrip mismatch: got=%v want=%v", d2.Duration, 90*time.Second)
	}
}


func TestParseSeconds(t *testing.T) {
	got, err := ParseSeconds("00:00:02.500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2.5 {
		t.Fatalf("seconds mismatch: got=%v want=2.5", got)
	}

	if FormatSeconds(2.5) != "2.500" {
		t.Fatalf("format mismatch: got=%s", FormatSeconds(2.5))
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("PT2M")); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if d.Duration != 2*time.Minute {
		t.Fatalf("duration mismatch: got=%v", d.Duration)
	}
	b, _ := d.MarshalText()
	if string(b) != "2m0s" {
		t.Fatalf("marshal mismatch: got=%s", b)
	}
}
