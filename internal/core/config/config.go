package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/arcgis"
)

type LookupEventsCfg struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	QueueSize    int
	DedupeWindow time.Duration
	DedupeSize   int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	ArcGISURL       string
	UpstreamTimeout time.Duration
	RedisAddr       string
	SnapshotTTL     time.Duration
	H3Res           int
	MapZoom         int
	InputPath       string
	OutputPath      string
	LookupEvents    LookupEventsCfg
	Metrics         MetricsCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 12)
	if res < 0 || res > 15 {
		res = 12
	}

	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		ArcGISURL:       getenv("ARCGIS_URL", arcgis.DefaultLayerURL),
		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 30*time.Second),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		SnapshotTTL:     getduration("SNAPSHOT_TTL", 0),
		H3Res:           res,
		MapZoom:         getint("MAP_ZOOM", 17),
		InputPath:       getenv("INPUT_PATH", "data.json"),
		OutputPath:      getenv("OUTPUT_PATH", "map_with_geometry.html"),
		LookupEvents: LookupEventsCfg{
			Enabled:      getbool("LOOKUP_EVENTS_ENABLED", false),
			Brokers:      split(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:        getenv("LOOKUP_EVENTS_TOPIC", "parcel-lookups"),
			QueueSize:    getint("LOOKUP_EVENTS_QUEUE", 1024),
			DedupeWindow: getduration("LOOKUP_EVENTS_DEDUPE_WINDOW", time.Minute),
			DedupeSize:   getint("LOOKUP_EVENTS_DEDUPE_SIZE", 4096),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
