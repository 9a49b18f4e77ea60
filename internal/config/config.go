// Package config resolves the CLI flags and environment variables for
// both VictorDB server binaries. Flag parsing is a thin wrapper kept to
// stdlib flag rather than a richer CLI library.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/victor-base/victordb/internal/pathutil"
	"github.com/victor-base/victordb/internal/vectorindex"
)

// DefaultExportThreshold is the operation count above which the
// snapshot manager flushes, absent VICTOR_EXPORT_THRESHOLD.
const DefaultExportThreshold = 10

// LogLevel resolves the minimum severity for the JSON slog handler both
// binaries construct, from VICTOR_LOG_LEVEL ("debug"|"info"|"warn"|
// "error"), defaulting to "info".
func LogLevel() string {
	return envOrDefault("VICTOR_LOG_LEVEL", "info")
}

// envOrDefault returns the value of the named environment variable, or
// def if it is unset or empty.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envIntOrDefault returns the named environment variable parsed as a
// positive integer, or def if it is unset, empty, or not a positive
// integer.
func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// IndexConfig holds the resolved configuration for cmd/victor-index.
type IndexConfig struct {
	Name            string
	Dims            int
	Kind            vectorindex.Kind
	Similarity      vectorindex.Similarity
	SocketPath      string
	ExportThreshold int
}

// ParseIndexConfig parses args (typically os.Args[1:]) into an
// IndexConfig. -n and -d are required; a missing required flag is
// reported as an error so main can print usage and exit non-zero.
func ParseIndexConfig(args []string) (*IndexConfig, error) {
	fs := flag.NewFlagSet("victor-index", flag.ContinueOnError)
	name := fs.String("n", "", "database name (required)")
	dims := fs.Int("d", 0, "vector dimensionality (required)")
	kind := fs.String("t", "hnsw", "index type: flat|hnsw")
	method := fs.String("m", "cosine", "similarity method: cosine|dotp|l2norm")
	socket := fs.String("u", "", "unix socket path (default <root>/<name>/socket.unix)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *name == "" {
		return nil, fmt.Errorf("config: -n <dbname> is required")
	}
	if *dims <= 0 {
		return nil, fmt.Errorf("config: -d <dims> is required and must be positive")
	}

	k, err := vectorindex.ParseKind(*kind)
	if err != nil {
		return nil, err
	}
	sim, err := vectorindex.ParseSimilarity(*method)
	if err != nil {
		return nil, err
	}

	sock := *socket
	if sock == "" {
		sock = pathutil.DefaultSocketPath(*name)
	}

	return &IndexConfig{
		Name:            *name,
		Dims:            *dims,
		Kind:            k,
		Similarity:      sim,
		SocketPath:      sock,
		ExportThreshold: envIntOrDefault("VICTOR_EXPORT_THRESHOLD", DefaultExportThreshold),
	}, nil
}

// TableConfig holds the resolved configuration for cmd/victor-table.
type TableConfig struct {
	Name            string
	SocketPath      string
	ExportThreshold int
}

// ParseTableConfig parses args into a TableConfig. -n is required.
func ParseTableConfig(args []string) (*TableConfig, error) {
	fs := flag.NewFlagSet("victor-table", flag.ContinueOnError)
	name := fs.String("n", "", "database name (required)")
	socket := fs.String("u", "", "unix socket path (default <root>/<name>/socket.unix)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *name == "" {
		return nil, fmt.Errorf("config: -n <dbname> is required")
	}

	sock := *socket
	if sock == "" {
		sock = pathutil.DefaultSocketPath(*name)
	}

	return &TableConfig{
		Name:            *name,
		SocketPath:      sock,
		ExportThreshold: envIntOrDefault("VICTOR_EXPORT_THRESHOLD", DefaultExportThreshold),
	}, nil
}
