// Command victor-table runs the VictorDB key-value table server: a
// single-database process exposing PUT/GET/DEL over a UNIX domain
// socket, backed by a write-ahead log and periodic snapshots.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/victor-base/victordb/internal/config"
	"github.com/victor-base/victordb/internal/engine"
	"github.com/victor-base/victordb/internal/kvtable"
	"github.com/victor-base/victordb/internal/netsrv"
	"github.com/victor-base/victordb/internal/pathutil"
	"github.com/victor-base/victordb/internal/version"
	"github.com/victor-base/victordb/internal/wal"
	"github.com/victor-base/victordb/internal/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.ParseTableConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "usage: %s -n <dbname> [-u socket_path]\n", os.Args[0])
		return 1
	}

	log := newLogger(config.LogLevel())
	log.Info("starting victor-table", "version", version.Version, "db", cfg.Name)

	if _, err := pathutil.EnsureAndChdir(cfg.Name); err != nil {
		log.Error("cannot prepare database directory", "error", err)
		return 1
	}

	table := kvtable.New()
	defer table.Close()

	w, err := wal.Open(pathutil.TWALFile)
	if err != nil {
		log.Error("cannot open wal", "error", err)
		return 1
	}
	defer w.Close()

	runner := engine.NewRunner(tableDispatch(table), engine.Config{
		WAL:          w,
		WALPath:      pathutil.TWALFile,
		SnapshotPath: pathutil.TableFile,
		Export:       table.Export,
		Import:       table.Import,
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

	log.Info("victor-table shut down cleanly")
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// tableDispatch builds the KV engine's dispatch table: PUT and DEL are
// mutating (WAL + counter, generic OP_RESULT reply), GET is read-only
// and replies with either GET_RESULT or a typed not-found ERROR.
func tableDispatch(table *kvtable.Table) engine.Table {
	return engine.Table{
		wire.Put: {
			Mutating: true,
			Counter:  engine.CounterAdd,
			Func: func(payload []byte) (byte, []byte, error) {
				req, err := wire.DecodePut(payload)
				if err != nil {
					return 0, nil, fmt.Errorf("%w: %v", engine.ErrProtocol, err)
				}
				table.Put(req.Key, req.Value)
				reply, err := wire.EncodeResult(wire.Result{Code: 0})
				if err != nil {
					return 0, nil, err
				}
				return wire.OpResult, reply, nil
			},
		},
		wire.Del: {
			Mutating: true,
			Counter:  engine.CounterDel,
			Func: func(payload []byte) (byte, []byte, error) {
				req, err := wire.DecodeKeyRequest(payload)
				if err != nil {
					return 0, nil, fmt.Errorf("%w: %v", engine.ErrProtocol, err)
				}
				// Deleting an absent key is a no-op success, which
				// keeps WAL replay idempotent.
				table.Del(req.Key)
				reply, err := wire.EncodeResult(wire.Result{Code: 0})
				if err != nil {
					return 0, nil, err
				}
				return wire.OpResult, reply, nil
			},
		},
		wire.Get: {
			Mutating: false,
			Func: func(payload []byte) (byte, []byte, error) {
				req, err := wire.DecodeKeyRequest(payload)
				if err != nil {
					return 0, nil, fmt.Errorf("%w: %v", engine.ErrProtocol, err)
				}
				value, found := table.Get(req.Key)
				if !found {
					return 0, nil, &engine.OpError{Code: engine.CodeNotFound, Message: "key not found"}
				}
				reply, err := wire.EncodeGetResult(value)
				if err != nil {
					return 0, nil, err
				}
				return wire.GetResult, reply, nil
			},
		},
	}
}
