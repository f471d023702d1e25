package notify

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBackendLabel(t *testing.T) {
	cases := map[string]string{
		"radarr":  "radarr",
		"sonarr":  "sonarr",
		"bogus":   "unknown",
		"":        "unknown",
		"Radarr":  "unknown",
		"lidarr/": "unknown",
	}
	for in, want := range cases {
		if got := backendLabel(in); got != want {
			t.Errorf("backendLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObserveMalformed_CollapsesUnknownBackends(t *testing.T) {
	// The backend kind comes straight from the request path; arbitrary
	// values must all land on one label so they cannot mint new series.
	before := testutil.ToFloat64(eventsTotal.WithLabelValues("unknown", resultMalformed))

	ObserveMalformed("bogus-1")
	ObserveMalformed("bogus-2")
	ObserveMalformed("radarr")

	after := testutil.ToFloat64(eventsTotal.WithLabelValues("unknown", resultMalformed))
	if after-before != 2 {
		t.Fatalf("expected 2 unknown-backend observations, got %v", after-before)
	}
	if got := testutil.ToFloat64(eventsTotal.WithLabelValues("bogus-1", resultMalformed)); got != 0 {
		t.Fatalf("raw backend value leaked into labels: %v", got)
	}
}
