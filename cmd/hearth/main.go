// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

// Hearth inspects a Hearth SQLite database and manages its schema snapshots
// from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hearthdb/hearth/basedb"
	"github.com/hearthdb/hearth/kvstore"
	"github.com/hearthdb/hearth/kvstore/boltstore"
	"github.com/hearthdb/hearth/kvstore/redisstore"
	"github.com/hearthdb/hearth/kvstore/storelogger"
	"github.com/hearthdb/hearth/snapshots"
)

const blobBucket = "snapshots"

var (
	rootCmd = &cobra.Command{
		Use:          "hearth",
		Short:        "Schema snapshots and catalog inspection for a Hearth database",
		SilenceUsage: true,
	}

	cfgFile string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "optional config file (yaml or json)")
	flags.String("db", "", "path to the SQLite database (required)")
	flags.String("blobs", "", "blob store url, bolt://<path> or redis://<host>[?db=N]; empty keeps snapshots schema-only")
	flags.String("log.level", "info", "log level: debug, info, warn or error")
	flags.String("log.encoding", "console", "log encoding: console or json")

	cobra.OnInitialize(func() { loadConfig(flags) })
}

// loadConfig merges flags, HEARTH_* environment variables and an optional
// config file into viper. Flags win over environment, environment wins over
// the file.
func loadConfig(flags *pflag.FlagSet) {
	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("hearth")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
}

// cmdCtx returns a context cancelled by an interrupt or terminate signal.
func cmdCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// environment holds everything a subcommand needs against one database.
type environment struct {
	log       *zap.Logger
	db        *basedb.DB
	blobs     kvstore.Store
	snapshots *snapshots.Service
}

func openEnvironment(ctx context.Context) (*environment, error) {
	log, err := openLogger()
	if err != nil {
		return nil, err
	}

	path := viper.GetString("db")
	if path == "" {
		return nil, errs.New("database path is required (--db or HEARTH_DB)")
	}

	db, err := basedb.Open(ctx, log.Named("db"), basedb.Config{Path: path})
	if err != nil {
		return nil, err
	}

	blobs, err := openBlobs(ctx, log)
	if err != nil {
		return nil, errs.Combine(err, db.Close())
	}

	return &environment{
		log:       log,
		db:        db,
		blobs:     blobs,
		snapshots: snapshots.NewService(log.Named("snapshots"), db, blobs),
	}, nil
}

// Close releases the blob store and the database.
func (env *environment) Close() error {
	var blobsErr error
	if env.blobs != nil {
		blobsErr = env.blobs.Close()
	}
	return errs.Combine(blobsErr, env.db.Close())
}

func openLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, errs.Wrap(err)
	}

	var config zap.Config
	switch encoding := viper.GetString("log.encoding"); encoding {
	case "console":
		config = zap.NewDevelopmentConfig()
	case "json":
		config = zap.NewProductionConfig()
	default:
		return nil, errs.New("unknown log encoding %q", encoding)
	}
	config.Level = zap.NewAtomicLevelAt(level)

	log, err := config.Build()
	return log, errs.Wrap(err)
}

func openBlobs(ctx context.Context, log *zap.Logger) (kvstore.Store, error) {
	address := viper.GetString("blobs")
	if address == "" {
		return nil, nil
	}

	var store kvstore.Store
	switch {
	case strings.HasPrefix(address, "bolt://"):
		client, err := boltstore.New(log.Named("boltstore"),
			strings.TrimPrefix(address, "bolt://"), blobBucket)
		if err != nil {
			return nil, err
		}
		store = client
	case strings.HasPrefix(address, "redis://"):
		client, err := redisstore.OpenClientFrom(ctx, address)
		if err != nil {
			return nil, err
		}
		store = client
	default:
		return nil, errs.New("unsupported blob store url %q", address)
	}

	return storelogger.New(log.Named("blobs"), store), nil
}

func main() {
	rootCmd.AddCommand(
		snapshotCmd,
		tablesCmd,
		indexesCmd,
		statusCmd,
		watchCmd,
	)
	snapshotCmd.AddCommand(
		snapshotCreateCmd,
		snapshotListCmd,
		snapshotShowCmd,
		snapshotRestoreCmd,
		snapshotPruneCmd,
		snapshotCleanupCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
