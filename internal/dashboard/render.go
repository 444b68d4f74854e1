package dashboard

import (
	"encoding/json"
	"strconv"
	"strings"

	"cloudpico-station/internal/history"
	"cloudpico-station/internal/snapshot"
)

// Dataset is everything a dashboard page shows.
type Dataset struct {
	Snapshot snapshot.Snapshot
	// Series is keyed by history window ("24h", "7d", ...). Missing windows
	// leave their placeholders in the page untouched.
	Series map[string]history.Series
}

// Render substitutes the {{...}} placeholders of tmpl with values from d.
func Render(tmpl []byte, d Dataset) []byte {
	c, e := d.Snapshot.Current, d.Snapshot.Extrema
	pairs := []string{
		"{{temperature}}", num(c.Temperature),
		"{{humidity}}", num(c.Humidity),
		"{{pressure}}", num(c.Pressure),
		"{{wind_speed}}", num(c.WindSpeed),
		"{{min_temperature}}", num(e.Temperature.Min),
		"{{max_temperature}}", num(e.Temperature.Max),
		"{{min_humidity}}", num(e.Humidity.Min),
		"{{max_humidity}}", num(e.Humidity.Max),
		"{{min_pressure}}", num(e.Pressure.Min),
		"{{max_pressure}}", num(e.Pressure.Max),
		"{{min_wind_speed}}", num(e.WindSpeed.Min),
		"{{max_wind_speed}}", num(e.WindSpeed.Max),
	}
	for _, w := range history.Windows {
		s, ok := d.Series[w.Key]
		if !ok {
			continue
		}
		prefix := "{{chart" + w.Key + "_"
		pairs = append(pairs,
			prefix+"labels}}", jsonArray(s.Labels),
			prefix+"temperatures}}", jsonArray(s.Temperatures),
			prefix+"humidities}}", jsonArray(s.Humidities),
			prefix+"pressures}}", jsonArray(s.Pressures),
			prefix+"wind_speeds}}", jsonArray(s.WindSpeeds),
		)
	}
	return []byte(strings.NewReplacer(pairs...).Replace(string(tmpl)))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// jsonArray encodes a slice, writing [] for an empty one.
func jsonArray[T any](v []T) string {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
