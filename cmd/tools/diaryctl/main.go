// Command diaryctl inspects and maintains the diary store offline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	diarymodel "github.com/zhouzirui/mood-diary/backend/internal/model/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/service/diary"
	"github.com/zhouzirui/mood-diary/backend/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	dbPath string
}

func (a *app) open() (storage.Store, *diary.Service, error) {
	store, err := storage.Open(a.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store %q: %w", a.dbPath, err)
	}
	return store, diary.NewService(store, nil, nil), nil
}

// withService opens the store for the duration of fn.
func (a *app) withService(fn func(ctx context.Context, svc *diary.Service) error) error {
	store, svc, err := a.open()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), svc)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "diaryctl",
		Short:         "Inspect and maintain the mood diary store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", envOr("STORAGE_PATH", "mood-diary.db"), "path to the sqlite store")

	root.AddCommand(
		a.listCmd(),
		a.showCmd(),
		a.trashCmd(),
		a.restoreCmd(),
		a.purgeCmd(),
		a.exportCmd(),
		a.prefsCmd(),
	)
	return root
}

func (a *app) listCmd() *cobra.Command {
	var trashed bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List diary entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(ctx context.Context, svc *diary.Service) error {
				list := svc.List
				if trashed {
					list = svc.ListTrash
				}
				entries, err := list(ctx)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No entries.")
					return nil
				}
				for _, e := range entries {
					printEntryLine(cmd.OutOrStdout(), e)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&trashed, "trash", false, "list the trash instead")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [entry-id]",
		Short: "Print one entry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(ctx context.Context, svc *diary.Service) error {
				entry, err := svc.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("entry %s: %w", args[0], err)
				}
				return writeJSON(cmd.OutOrStdout(), entry)
			})
		},
	}
}

func (a *app) trashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trash [entry-id]",
		Short: "Move an entry to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(ctx context.Context, svc *diary.Service) error {
				if _, err := svc.Trash(ctx, args[0]); err != nil {
					return fmt.Errorf("entry %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to trash.\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [entry-id]",
		Short: "Restore an entry from the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(ctx context.Context, svc *diary.Service) error {
				if _, err := svc.Restore(ctx, args[0]); err != nil {
					return fmt.Errorf("entry %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s.\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete everything in the trash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(ctx context.Context, svc *diary.Service) error {
				n, err := svc.PurgeTrash(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entries.\n", n)
				return nil
			})
		},
	}
}

type exportDoc struct {
	Entries     []diarymodel.Entry       `json:"diaryEntries"`
	Trash       []diarymodel.Entry       `json:"trashEntries"`
	Preferences []string                 `json:"musicPreferences"`
	PublicMusic []diarymodel.PublicMusic `json:"publicMusic"`
}

func (a *app) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every collection as one JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(ctx context.Context, svc *diary.Service) error {
				var doc exportDoc
				var err error
				if doc.Entries, err = svc.List(ctx); err != nil {
					return err
				}
				if doc.Trash, err = svc.ListTrash(ctx); err != nil {
					return err
				}
				if doc.Preferences, err = svc.Preferences(ctx); err != nil {
					return err
				}
				if doc.PublicMusic, err = svc.PublicMusic(ctx); err != nil {
					return err
				}

				if out == "" || out == "-" {
					return writeJSON(cmd.OutOrStdout(), doc)
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				return writeJSON(f, doc)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	return cmd
}

func (a *app) prefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefs [genre...]",
		Short: "Show or replace the music genre preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(ctx context.Context, svc *diary.Service) error {
				var genres []string
				var err error
				if len(args) == 0 {
					genres, err = svc.Preferences(ctx)
				} else {
					genres, err = svc.SetPreferences(ctx, args)
				}
				if err != nil {
					return err
				}
				if len(genres) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No genre preferences.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(genres, ", "))
				return nil
			})
		},
	}
}

func printEntryLine(w io.Writer, e diarymodel.Entry) {
	track := "-"
	if t, ok := e.Track(); ok {
		track = string(t.Status)
		if t.Fallback {
			track += " (placeholder)"
		}
	}
	fmt.Fprintf(w, "%s  %s %s  %-6s  %s  [%s]\n", e.ID, e.Date, e.Time, e.Mood, truncate(e.Summary, 40), track)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
