// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"github.com/hearthdb/hearth/snapshots"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Manage schema snapshots",
	}

	snapshotCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Capture the current schema as a new snapshot",
		Args:  cobra.NoArgs,
		RunE:  cmdSnapshotCreate,
	}
	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE:  cmdSnapshotList,
	}
	snapshotShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "Show one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdSnapshotShow,
	}
	snapshotRestoreCmd = &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore the database schema from a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdSnapshotRestore,
	}
	snapshotPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots",
		Args:  cobra.NoArgs,
		RunE:  cmdSnapshotPrune,
	}
	snapshotCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove blob payloads whose snapshot row is gone",
		Args:  cobra.NoArgs,
		RunE:  cmdSnapshotCleanup,
	}

	createCfg struct {
		Name        string
		Description string
		CreatedBy   string
	}
	listCfg struct {
		Limit  int
		Offset int
	}
	showCfg struct {
		Schema bool
	}
	pruneCfg struct {
		Keep         int
		CleanupBlobs bool
	}
)

func init() {
	flags := snapshotCreateCmd.Flags()
	flags.StringVar(&createCfg.Name, "name", "", "snapshot name (generated when empty)")
	flags.StringVar(&createCfg.Description, "description", "", "free-form description")
	flags.StringVar(&createCfg.CreatedBy, "created-by", "cli", "who requested the snapshot")

	flags = snapshotListCmd.Flags()
	flags.IntVar(&listCfg.Limit, "limit", snapshots.DefaultListLimit, "page size")
	flags.IntVar(&listCfg.Offset, "offset", 0, "rows to skip")

	snapshotShowCmd.Flags().BoolVar(&showCfg.Schema, "schema", false, "print the full schema DDL")

	flags = snapshotPruneCmd.Flags()
	flags.IntVar(&pruneCfg.Keep, "keep", 0, "how many of the newest snapshots survive")
	flags.BoolVar(&pruneCfg.CleanupBlobs, "cleanup-blobs", false, "also sweep orphaned blob payloads")
	_ = snapshotPruneCmd.MarkFlagRequired("keep")
}

func cmdSnapshotCreate(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	snapshot, err := env.snapshots.Create(ctx, snapshots.Options{
		Name:        createCfg.Name,
		Description: createCfg.Description,
		CreatedBy:   createCfg.CreatedBy,
	})
	if err != nil {
		return err
	}

	fmt.Printf("created snapshot %s (version %d)\n", snapshot.ID, snapshot.Version)
	return nil
}

func cmdSnapshotList(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	page, err := env.snapshots.List(ctx, listCfg.Limit, listCfg.Offset)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tTYPE\tNAME\tCREATED\t")
	for _, snapshot := range page.Snapshots {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t\n",
			snapshot.ID, snapshot.Version, snapshot.Type, snapshot.Name,
			snapshot.CreatedAt.Format(timeLayout))
	}
	if err := w.Flush(); err != nil {
		return errs.Wrap(err)
	}

	fmt.Printf("%d of %d snapshots\n", len(page.Snapshots), page.TotalCount)
	return nil
}

func cmdSnapshotShow(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	snapshot, err := env.snapshots.Get(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:           %s\n", snapshot.ID)
	fmt.Printf("Version:      %d\n", snapshot.Version)
	fmt.Printf("Name:         %s\n", snapshot.Name)
	if snapshot.Description != "" {
		fmt.Printf("Description:  %s\n", snapshot.Description)
	}
	fmt.Printf("Type:         %s\n", snapshot.Type)
	if snapshot.CreatedBy != "" {
		fmt.Printf("Created by:   %s\n", snapshot.CreatedBy)
	}
	fmt.Printf("Created at:   %s\n", snapshot.CreatedAt.Format(timeLayout))
	fmt.Printf("Schema hash:  %s\n", snapshot.SchemaHash)
	if snapshot.ExternalCheckpoint != "" {
		fmt.Printf("Checkpoint:   %s\n", snapshot.ExternalCheckpoint)
	}
	if showCfg.Schema {
		fmt.Println()
		fmt.Println(snapshot.FullSchema)
	}
	return nil
}

func cmdSnapshotRestore(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	result, err := env.snapshots.Restore(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("restored snapshot %s (version %d)\n", result.SnapshotID, result.Version)
	fmt.Printf("tables dropped: %d, recreated: %d, rows restored: %d\n",
		result.TablesDropped, result.TablesRestored, result.RowsRestored)
	if result.SchemaOnly {
		fmt.Println("no data payload was available; schema only")
	}
	for _, tableErr := range result.TableErrors {
		fmt.Printf("table %s: rows skipped: %s\n", tableErr.Table, tableErr.Err)
	}
	if result.NewSnapshotID != "" {
		fmt.Printf("post-restore snapshot: %s\n", result.NewSnapshotID)
	}
	return nil
}

func cmdSnapshotPrune(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	removed, err := env.snapshots.Prune(ctx, pruneCfg.Keep)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d snapshots, kept the newest %d\n", removed, pruneCfg.Keep)

	if pruneCfg.CleanupBlobs {
		if env.blobs == nil {
			return errs.New("no blob store configured (--blobs)")
		}
		swept, err := env.snapshots.CleanupBlobs(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d orphaned payloads\n", swept)
	}
	return nil
}

func cmdSnapshotCleanup(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := cmdCtx()
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, env.Close()) }()

	if env.blobs == nil {
		return errs.New("no blob store configured (--blobs)")
	}

	removed, err := env.snapshots.CleanupBlobs(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d orphaned payloads\n", removed)
	return nil
}
