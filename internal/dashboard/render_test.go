package dashboard

import (
	"math"
	"strings"
	"testing"

	"cloudpico-station/internal/history"
	"cloudpico-station/internal/snapshot"
)

func TestRender(t *testing.T) {
	snap := snapshot.Snapshot{
		Current: snapshot.Reading{Temperature: 21.5, Humidity: 40, Pressure: 1013.25, WindSpeed: 0.175},
		Extrema: snapshot.Extrema{
			Temperature: snapshot.Range{Min: 18, Max: 22.5},
			Humidity:    snapshot.Range{Min: 35, Max: 48},
			Pressure:    snapshot.Range{Min: 1010, Max: 1015.5},
			WindSpeed:   snapshot.Range{Min: 0, Max: 3.5},
		},
	}
	series := map[string]history.Series{
		"24h": {
			Labels:       []string{"2024-03-05 14:00", "2024-03-05 15:00"},
			Temperatures: []float64{21, 22.5},
			Humidities:   []float64{40, 41},
			Pressures:    []float64{1013, 1012.5},
			WindSpeeds:   []float64{0, 1.25},
		},
		"7d": {},
	}

	tmpl := strings.Join([]string{
		"T={{temperature}} H={{humidity}} P={{pressure}} W={{wind_speed}}",
		"T[{{min_temperature}},{{max_temperature}}] H[{{min_humidity}},{{max_humidity}}]",
		"P[{{min_pressure}},{{max_pressure}}] W[{{min_wind_speed}},{{max_wind_speed}}]",
		"labels={{chart24h_labels}}",
		"temps={{chart24h_temperatures}} hums={{chart24h_humidities}}",
		"press={{chart24h_pressures}} wind={{chart24h_wind_speeds}}",
		"week={{chart7d_labels}} {{chart7d_temperatures}}",
		"month={{chart30d_labels}}",
	}, "\n")

	got := string(Render([]byte(tmpl), Dataset{Snapshot: snap, Series: series}))

	wantLines := []string{
		"T=21.5 H=40 P=1013.25 W=0.175",
		"T[18,22.5] H[35,48]",
		"P[1010,1015.5] W[0,3.5]",
		`labels=["2024-03-05 14:00","2024-03-05 15:00"]`,
		"temps=[21,22.5] hums=[40,41]",
		"press=[1013,1012.5] wind=[0,1.25]",
		"week=[] []",
		"month={{chart30d_labels}}",
	}
	gotLines := strings.Split(got, "\n")
	if len(gotLines) != len(wantLines) {
		t.Fatalf("got %d lines; want %d\n%s", len(gotLines), len(wantLines), got)
	}
	for i := range wantLines {
		if gotLines[i] != wantLines[i] {
			t.Errorf("line %d = %q; want %q", i, gotLines[i], wantLines[i])
		}
	}
}

func TestRender_resetExtrema(t *testing.T) {
	snap := snapshot.Snapshot{Extrema: snapshot.Extrema{
		Pressure: snapshot.Range{Min: math.Inf(1), Max: math.Inf(-1)},
	}}
	got := string(Render([]byte("{{min_pressure}}/{{max_pressure}}"), Dataset{Snapshot: snap}))
	if got != "+Inf/-Inf" {
		t.Errorf("Render() = %q; want +Inf/-Inf", got)
	}
}

func TestRender_noPlaceholders(t *testing.T) {
	in := "<html><body>static</body></html>"
	if got := string(Render([]byte(in), Dataset{})); got != in {
		t.Errorf("Render() = %q; want input unchanged", got)
	}
}
