// Command victor-index runs the VictorDB vector-index server: a
// single-database process exposing INSERT/DELETE/SEARCH over a UNIX
// domain socket, backed by a write-ahead log and periodic snapshots.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/victor-base/victordb/internal/config"
	"github.com/victor-base/victordb/internal/engine"
	"github.com/victor-base/victordb/internal/netsrv"
	"github.com/victor-base/victordb/internal/pathutil"
	"github.com/victor-base/victordb/internal/vectorindex"
	"github.com/victor-base/victordb/internal/version"
	"github.com/victor-base/victordb/internal/wal"
	"github.com/victor-base/victordb/internal/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.ParseIndexConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "usage: %s -n <dbname> -d <dims> [-t flat|hnsw] [-m cosine|dotp|l2norm] [-u socket_path]\n", os.Args[0])
		return 1
	}

	log := newLogger(config.LogLevel())
	log.Info("starting victor-index", "version", version.Version, "db", cfg.Name, "dims", cfg.Dims)

	if _, err := pathutil.EnsureAndChdir(cfg.Name); err != nil {
		log.Error("cannot prepare database directory", "error", err)
		return 1
	}

	index, err := vectorindex.New(cfg.Kind, cfg.Similarity, cfg.Dims)
	if err != nil {
		log.Error("cannot construct vector index", "error", err)
		return 1
	}
	defer index.Close()

	w, err := wal.Open(pathutil.IWALFile)
	if err != nil {
		log.Error("cannot open wal", "error", err)
		return 1
	}
	defer w.Close()

	runner := engine.NewRunner(vectorTable(index), engine.Config{
		WAL:          w,
		WALPath:      pathutil.IWALFile,
		SnapshotPath: pathutil.IndexFile,
		Export:       index.Export,
		Import:       index.Import,
		Threshold:    cfg.ExportThreshold,
		Log:          log,
	})

	if err := runner.LoadSnapshot(); err != nil {
		log.Error("cannot load snapshot", "error", err)
		return 1
	}
	if err := runner.ReplayWAL(); err != nil {
		log.Error("cannot replay wal", "error", err)
		return 1
	}

	srv := netsrv.New(cfg.SocketPath, runner, log)
	log.Info("listening", "socket", cfg.SocketPath)
	if err := srv.Run(); err != nil {
		log.Error("server exited with error", "error", err)
		return 1
	}

	log.Info("victor-index shut down cleanly")
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// vectorTable builds the vector engine's dispatch table: INSERT and
// DELETE are mutating (WAL + counter), SEARCH is read-only.
func vectorTable(index vectorindex.Index) engine.Table {
	return engine.Table{
		wire.Insert: {
			Mutating: true,
			Counter:  engine.CounterAdd,
			Func: func(payload []byte) (byte, []byte, error) {
				req, err := wire.DecodeInsert(payload)
				if err != nil {
					return 0, nil, fmt.Errorf("%w: %v", engine.ErrProtocol, err)
				}
				if err := index.Insert(req.ID, req.Vector); err != nil {
					return 0, nil, insertErr(err)
				}
				reply, err := wire.EncodeResult(wire.Result{Code: 0})
				if err != nil {
					return 0, nil, err
				}
				return wire.InsertResult, reply, nil
			},
		},
		wire.Delete: {
			Mutating: true,
			Counter:  engine.CounterDel,
			Func: func(payload []byte) (byte, []byte, error) {
				req, err := wire.DecodeDelete(payload)
				if err != nil {
					return 0, nil, fmt.Errorf("%w: %v", engine.ErrProtocol, err)
				}
				// Deleting an absent id is a no-op success, which
				// keeps WAL replay idempotent.
				if _, err := index.Delete(req.ID); err != nil {
					return 0, nil, &engine.OpError{Code: engine.CodeInternal, Message: err.Error()}
				}
				reply, err := wire.EncodeResult(wire.Result{Code: 0})
				if err != nil {
					return 0, nil, err
				}
				return wire.DeleteResult, reply, nil
			},
		},
		wire.Search: {
			Mutating: false,
			Func: func(payload []byte) (byte, []byte, error) {
				req, err := wire.DecodeSearch(payload)
				if err != nil {
					return 0, nil, fmt.Errorf("%w: %v", engine.ErrProtocol, err)
				}
				results, err := index.Search(req.Vector, req.N)
				if err != nil {
					return 0, nil, insertErr(err)
				}
				matches := make([]wire.Match, len(results))
				for i, m := range results {
					matches[i] = wire.Match{ID: m.ID, Distance: m.Distance}
				}
				reply, err := wire.EncodeMatchResult(matches)
				if err != nil {
					return 0, nil, err
				}
				return wire.MatchResult, reply, nil
			},
		},
	}
}

func insertErr(err error) error {
	if errors.Is(err, vectorindex.ErrDimensionMismatch) {
		return &engine.OpError{Code: engine.CodeBadVector, Message: err.Error()}
	}
	return &engine.OpError{Code: engine.CodeInternal, Message: err.Error()}
}
