package main

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nugget/kith/internal/audit"
)

func (c *cli) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage datastore backups",
	}

	create := &cobra.Command{
		Use:   "create [comment]",
		Short: "Take a manual backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()

			rec, err := e.backups.Create(strings.Join(args, " "), false)
			if err != nil {
				return err
			}
			if c.output == "json" {
				return writeJSON(c.stdout, rec)
			}
			fmt.Fprintf(c.stdout, "Created backup #%d (%d bytes).\n", rec.ID, rec.Size)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()

			recs := e.backups.List()
			if c.output == "json" {
				return writeJSON(c.stdout, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(c.stdout, "No backups.")
				return nil
			}
			rows := make([][]string, len(recs))
			for i, r := range recs {
				kind := "manual"
				if r.IsAuto {
					kind = "auto"
				}
				rows[i] = []string{
					strconv.Itoa(r.ID),
					r.Timestamp.Local().Format(time.DateTime),
					kind,
					strconv.FormatInt(r.Size, 10),
					r.Comment,
				}
			}
			fmt.Fprintln(c.stdout, listTable([]string{"#", "Time", "Kind", "Bytes", "Comment"}, rows))
			return nil
		},
	}

	var yes bool
	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Replace the datastore with a backup",
		Long: `Replace the live datastore with a backup. The current datastore is
saved as a new manual backup first, so a restore can itself be undone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBackupID(args[0])
			if err != nil {
				return err
			}
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if !yes {
				if !isTerminal(c.stdin, c.stdout) {
					return errors.New("restore replaces the live datastore; pass --yes to confirm")
				}
				fmt.Fprintf(c.stdout, "Replace the live datastore with backup #%d? [y/N] ", id)
				line, _ := bufio.NewReader(c.stdin).ReadString('\n')
				if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
					fmt.Fprintln(c.stdout, "Cancelled.")
					return nil
				}
			}

			res, err := e.backups.Restore(id)
			if err != nil {
				return err
			}
			if c.output == "json" {
				return writeJSON(c.stdout, res)
			}
			fmt.Fprintf(c.stdout, "Restored backup #%d. The previous datastore was saved as backup #%d.\n",
				res.Restored.ID, res.Safety.ID)
			return nil
		},
	}
	restore.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	verify := &cobra.Command{
		Use:   "verify [id...]",
		Short: "Check backup checksums (all backups by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()

			var ids []int
			for _, a := range args {
				id, err := parseBackupID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			if len(ids) == 0 {
				for _, r := range e.backups.List() {
					ids = append(ids, r.ID)
				}
			}

			failed := 0
			for _, id := range ids {
				if err := e.backups.Verify(id); err != nil {
					failed++
					fmt.Fprintf(c.stdout, "#%d FAILED: %v\n", id, err)
					continue
				}
				fmt.Fprintf(c.stdout, "#%d ok\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d backups failed verification", failed, len(ids))
			}
			return nil
		},
	}

	var keep int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old automatic backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if !cmd.Flags().Changed("keep") {
				keep = e.cfg.Backup.KeepAuto
			}
			n, err := e.backups.CleanupAuto(keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Removed %d automatic backups, keeping the newest %d.\n", n, keep)
			return nil
		},
	}
	cleanup.Flags().IntVar(&keep, "keep", 0, "automatic backups to keep (default: backup.keep_auto)")

	cmd.AddCommand(create, list, restore, verify, cleanup)
	return cmd
}

func parseBackupID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid backup id %q", s)
	}
	return id, nil
}

func (c *cli) auditCmd() *cobra.Command {
	var q audit.Query
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent mutation attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			entries, err := e.audit.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			if c.output == "json" {
				return writeJSON(c.stdout, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.stdout, "No audit entries.")
				return nil
			}
			rows := make([][]string, len(entries))
			for i, en := range entries {
				result := "ok"
				if !en.Success {
					result = en.Error
				}
				rows[i] = []string{
					en.Timestamp.Local().Format(time.DateTime),
					en.Source,
					en.Operation,
					strconv.Itoa(en.Count),
					result,
				}
			}
			fmt.Fprintln(c.stdout, listTable([]string{"Time", "Source", "Operation", "Count", "Result"}, rows))
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "only entries newer than this (0 for all)")
	cmd.Flags().StringVar(&q.Operation, "operation", "", "only this operation, e.g. delete_contact")
	cmd.Flags().BoolVar(&q.Failures, "failures", false, "only failed or cancelled attempts")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum entries to show")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count records per entity type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.open()
			if err != nil {
				return err
			}
			defer e.Close()

			stats, err := e.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if c.output == "json" {
				return writeJSON(c.stdout, stats)
			}
			for _, k := range slices.Sorted(maps.Keys(stats)) {
				fmt.Fprintf(c.stdout, "%-14s %d\n", k+":", stats[k])
			}
			fmt.Fprintf(c.stdout, "%-14s %d\n", "backups:", len(e.backups.List()))
			return nil
		},
	}
}

// listTable renders rows under headers without borders.
func listTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle()
			if col < len(headers)-1 {
				s = s.PaddingRight(2)
			}
			return s
		}).
		Render()
}
