package web

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/XANi/homebrainz2prom/device"
	"github.com/XANi/homebrainz2prom/sensors"
)

// collector keeps the latest value per metric series for the /metrics
// scrape endpoint and the latest snapshot for the JSON API.
type collector struct {
	sync.RWMutex
	latest   map[string]sensors.Metric
	snapshot *device.Snapshot
}

func newCollector() *collector {
	return &collector{latest: map[string]sensors.Metric{}}
}

func (c *collector) seriesKey(m sensors.Metric) string {
	keys := make([]string, 0, len(m.Labels))
	for k := range m.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(m.Name)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(m.Labels[k])
	}
	return sb.String()
}

// Run consumes the metric stream. Blocks until the channel closes.
func (c *collector) Run(in <-chan sensors.Metric) {
	for m := range in {
		c.Lock()
		c.latest[c.seriesKey(m)] = m
		c.Unlock()
	}
}

func (c *collector) SetSnapshot(snap *device.Snapshot) {
	c.Lock()
	c.snapshot = snap
	c.Unlock()
}

func (c *collector) Snapshot() *device.Snapshot {
	c.RLock()
	defer c.RUnlock()
	return c.snapshot
}

func (c *collector) Metrics() []sensors.Metric {
	c.RLock()
	defer c.RUnlock()
	out := make([]sensors.Metric, 0, len(c.latest))
	for _, m := range c.latest {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return c.seriesKey(out[i]) < c.seriesKey(out[j])
	})
	return out
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}

// renderPrometheus writes the latest series in text exposition format,
// with the configured name prefix and extra labels merged in.
func (c *collector) renderPrometheus(prefix string, extraLabels map[string]string) string {
	metrics := c.Metrics()
	var sb strings.Builder
	lastName := ""
	for _, m := range metrics {
		name := prefix + m.Name
		if name != lastName {
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", name)
			lastName = name
		}
		labels := map[string]string{}
		for k, v := range m.Labels {
			labels[k] = v
		}
		for k, v := range extraLabels {
			labels[k] = v
		}
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, escapeLabel(labels[k])))
		}
		sb.WriteString(name)
		if len(pairs) > 0 {
			sb.WriteString("{")
			sb.WriteString(strings.Join(pairs, ","))
			sb.WriteString("}")
		}
		sb.WriteString(" ")
		sb.WriteString(strconv.FormatFloat(m.Value, 'f', -1, 64))
		fmt.Fprintf(&sb, " %d\n", m.TS.UnixMilli())
	}
	return sb.String()
}
