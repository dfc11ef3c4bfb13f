// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/indexes"
	"github.com/hearthdb/hearth/snapshots"
)

var (
	tablesCmd = &cobra.Command{
		Use:   "tables",
		Short: "List user tables",
		Args:  cobra.NoArgs,
		RunE:  cmdTables,
	}
	indexesCmd = &cobra.Command{
		Use:   "indexes [table]",
		Short: "List user-created indexes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  cmdIndexes,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the schema hash and drift since the latest snapshot",
		Args:  cobra.NoArgs,
		RunE:  cmdStatus,
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Snapshot automatically whenever the schema drifts",
		Args:  cobra.NoArgs,
		RunE:  cmdWatch,
	}

	watchCfg struct {
		Interval time.Duration
	}
)

func init() {
	watchCmd.Flags().DurationVar(&watchCfg.Interval, "interval",
		snapshots.DefaultWatchInterval, "how often to check for drift")
}

func cmdTables(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	tables, err := env.snapshots.TableSchemas(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOLUMNS\tFOREIGN KEYS\t")
	for _, table := range tables {
		fmt.Fprintf(w, "%s\t%d\t%s\t\n",
			table.Name, len(table.Columns), describeForeignKeys(table.ForeignKeys))
	}
	return errs.Wrap(w.Flush())
}

func describeForeignKeys(fks []dbschema.ForeignKey) string {
	if len(fks) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(fks))
	for _, fk := range fks {
		parts = append(parts, fmt.Sprintf("%s -> %s(%s)", fk.Column, fk.RefTable, fk.RefColumn))
	}
	return strings.Join(parts, ", ")
}

func cmdIndexes(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	manager := indexes.NewManager(env.log.Named("indexes"), env.db, nil)

	var list []dbschema.Index
	if len(args) == 1 {
		list, err = manager.TableIndexes(ctx, args[0])
	} else {
		list, err = manager.AllUserIndexes(ctx)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTABLE\tUNIQUE\tCOLUMNS\t")
	for _, index := range list {
		unique := "no"
		if index.Unique {
			unique = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			index.Name, index.Table, unique, strings.Join(index.Columns, ", "))
	}
	return errs.Wrap(w.Flush())
}

func cmdStatus(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	tables, err := env.snapshots.TableSchemas(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("tables:       %d\n", len(tables))
	fmt.Printf("schema hash:  %s\n", snapshots.HashSchemas(tables))

	latest, ok, err := env.db.LatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("latest:       no snapshots yet")
		return nil
	}

	changed, err := env.snapshots.Changed(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("latest:       version %d, %s (%s)\n",
		latest.Version, latest.Name, latest.CreatedAt.Format(timeLayout))
	fmt.Printf("changed:      %v\n", changed)
	return nil
}

func cmdWatch(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	watcher := snapshots.NewWatcher(env.log.Named("watcher"), env.snapshots, watchCfg.Interval)
	env.log.Info("watching for schema drift", zap.Duration("interval", watchCfg.Interval))

	err = watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errs.Combine(err, watcher.Close())
}
