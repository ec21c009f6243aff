package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/mngerr"
)

var snapshotProvider string

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	GroupID: GroupMaintenance,
	Short:   "Create, list, and delete host snapshots (provider-dependent)",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create HOST",
	Short: "Snapshot a host, if its provider supports snapshots",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotCreate,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list HOST",
	Short: "List snapshots for a host",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotList,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete SNAPSHOT_ID",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDelete,
}

func init() {
	snapshotCmd.PersistentFlags().StringVar(&snapshotProvider, "provider", "", "provider the host belongs to (default: local)")
	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotListCmd, snapshotDeleteCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, p, err := current.resolveProvider(snapshotProvider)
	if err != nil {
		return err
	}
	if !p.SupportsSnapshots() {
		return &mngerr.PreconditionFailedError{Message: fmt.Sprintf("provider %q does not support snapshots", p.Name())}
	}
	h, err := p.GetHost(ctx, args[0])
	if err != nil {
		return err
	}
	snap, err := p.CreateSnapshot(ctx, h.GetID())
	if err != nil {
		return err
	}
	fmt.Printf("created snapshot %s for host %s\n", snap.ID, h.GetName())
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, p, err := current.resolveProvider(snapshotProvider)
	if err != nil {
		return err
	}
	if !p.SupportsSnapshots() {
		return &mngerr.PreconditionFailedError{Message: fmt.Sprintf("provider %q does not support snapshots", p.Name())}
	}
	h, err := p.GetHost(ctx, args[0])
	if err != nil {
		return err
	}
	snaps, err := p.ListSnapshots(ctx, h.GetID())
	if err != nil {
		return err
	}
	for _, s := range snaps {
		fmt.Printf("%s\tcreated %s\n", s.ID, s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, p, err := current.resolveProvider(snapshotProvider)
	if err != nil {
		return err
	}
	if !p.SupportsSnapshots() {
		return &mngerr.PreconditionFailedError{Message: fmt.Sprintf("provider %q does not support snapshots", p.Name())}
	}
	if err := p.DeleteSnapshot(ctx, ids.SnapshotID(args[0])); err != nil {
		return err
	}
	fmt.Printf("deleted snapshot %s\n", args[0])
	return nil
}
