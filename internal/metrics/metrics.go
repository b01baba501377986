package metrics

import (
	"context"
	"sort"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	CounterDownloads       = stats.Int64("isoupdater_downloads", "Number of downloaded images", "1")
	CounterDownloadedBytes = stats.Int64("isoupdater_downloaded_bytes", "Number of downloaded image bytes", stats.UnitBytes)
	CounterUpToDate        = stats.Int64("isoupdater_up_to_date", "Number of images that were already current", "1")
	CounterFailures        = stats.Int64("isoupdater_failures", "Number of failed sync entries", "1")
	CounterCacheHit        = stats.Int64("cache_hits", "Number of cache hits", "1")
	CounterCacheMiss       = stats.Int64("cache_misses", "Number of cache misses", "1")

	TagDistro   = tag.MustNewKey("distro")
	TagArch     = tag.MustNewKey("arch")
	TagReason   = tag.MustNewKey("reason")
	TagCacheKey = tag.MustNewKey("cache_key")
)

var views = []*view.View{
	{
		Name:        "isoupdater_downloads",
		Measure:     CounterDownloads,
		Description: "Number of downloaded images",
		TagKeys:     []tag.Key{TagDistro, TagArch},
		Aggregation: view.Count(),
	},
	{
		Name:        "isoupdater_downloaded_bytes",
		Measure:     CounterDownloadedBytes,
		Description: "Number of downloaded image bytes",
		Aggregation: view.Sum(),
	},
	{
		Name:        "isoupdater_up_to_date",
		Measure:     CounterUpToDate,
		Description: "Number of images that were already current",
		TagKeys:     []tag.Key{TagDistro, TagArch},
		Aggregation: view.Count(),
	},
	{
		Name:        "isoupdater_failures",
		Measure:     CounterFailures,
		Description: "Number of failed sync entries",
		TagKeys:     []tag.Key{TagReason},
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_hits",
		Measure:     CounterCacheHit,
		Description: "Number of cache hits",
		TagKeys:     []tag.Key{TagCacheKey},
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_misses",
		Measure:     CounterCacheMiss,
		Description: "Number of cache misses",
		TagKeys:     []tag.Key{TagCacheKey},
		Aggregation: view.Count(),
	},
}

func Register() error {
	return view.Register(views...)
}

// Record records a single measurement with the given tags. Errors are
// ignored; an unregistered view simply drops the value.
func Record(ctx context.Context, m *stats.Int64Measure, v int64, tags ...tag.Mutator) {
	_ = stats.RecordWithTags(ctx, tags, m.M(v))
}

// Value is one aggregated row of a view.
type Value struct {
	View  string            `json:"view"`
	Tags  map[string]string `json:"tags,omitempty"`
	Value float64           `json:"value"`
}

// Snapshot returns the current value of every registered view.
func Snapshot() ([]Value, error) {
	ret := make([]Value, 0)
	for _, v := range views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			val := Value{View: v.Name}
			if len(row.Tags) > 0 {
				val.Tags = make(map[string]string, len(row.Tags))
				for _, t := range row.Tags {
					val.Tags[t.Key.Name()] = t.Value
				}
			}
			switch data := row.Data.(type) {
			case *view.CountData:
				val.Value = float64(data.Value)
			case *view.SumData:
				val.Value = data.Value
			}
			ret = append(ret, val)
		}
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].View < ret[j].View
	})
	return ret, nil
}
