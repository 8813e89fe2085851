package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DataDog/datadog-go/statsd"
)

type DataDog struct {
	client *statsd.Client
}

// NewDataDog connects to the statsd agent at addr. Every metric carries
// the given default tags.
func NewDataDog(addr string, defaultTags map[string]string) (*DataDog, error) {
	c, err := statsd.New(addr, statsd.WithTags(convertTags(defaultTags)))
	if err != nil {
		return nil, fmt.Errorf("could not create statsd client: %w", err)
	}
	return &DataDog{client: c}, nil
}

func (d *DataDog) Count(name string, value int64, tags map[string]string, rate float64) error {
	return d.client.Count(name, value, convertTags(tags), rate)
}

func (d *DataDog) Gauge(name string, value float64, tags map[string]string, rate float64) error {
	return d.client.Gauge(name, value, convertTags(tags), rate)
}

func (d *DataDog) TimeInMilliseconds(name string, value float64, tags map[string]string, rate float64) error {
	return d.client.TimeInMilliseconds(name, value, convertTags(tags), rate)
}

func (d *DataDog) Close() error {
	return d.client.Close()
}

// convertTags turns {"Action":"Created"} into ["action:created"], sorted.
func convertTags(tags map[string]string) []string {
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
