package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kinobot/internal/domain"
	"kinobot/internal/domain/ports"
	"kinobot/internal/search"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	opts := search.DefaultMatchOptions()
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a query through the matcher",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withCatalog(cmd.Context(), func(catalog ports.Catalog, _ ports.SearchLogRepository) error {
				results, err := search.NewMatcher(catalog).FindTopMatches(cmd.Context(), query, opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "query %q normalized %q: %d results\n", query, search.Normalize(query), len(results))
				if len(results) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(results))
				for i, r := range results {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						strconv.Itoa(r.Score),
						r.Title,
						r.Locator().String(),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "Score", "Title", "Locator"}, rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum results")
	cmd.Flags().Float64Var(&opts.ScoreCutoff, "cutoff", opts.ScoreCutoff, "Minimum fuzzy score (0-100)")
	return cmd
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var containerID, itemID int64
	var title string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Insert or replace one catalog entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" || itemID == 0 {
				return fmt.Errorf("--title and --item are required")
			}
			return ctx.withCatalog(cmd.Context(), func(catalog ports.Catalog, _ ports.SearchLogRepository) error {
				entry := newEntry(containerID, itemID, title)
				if err := catalog.Upsert(cmd.Context(), entry); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s as %q\n", entry.Locator(), entry.TitleNormalized)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&containerID, "container", 0, "Source channel id")
	cmd.Flags().Int64Var(&itemID, "item", 0, "Source message id")
	cmd.Flags().StringVar(&title, "title", "", "Raw title")
	return cmd
}

type importRecord struct {
	ContainerID int64  `json:"containerId"`
	ItemID      int64  `json:"itemId"`
	Title       string `json:"title"`
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Upsert entries from a JSON lines file ({containerId, itemId, title})",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			return ctx.withCatalog(cmd.Context(), func(catalog ports.Catalog, _ ports.SearchLogRepository) error {
				scanner := bufio.NewScanner(file)
				scanner.Buffer(make([]byte, 64*1024), 1<<20)
				imported, skipped, line := 0, 0, 0
				for scanner.Scan() {
					line++
					raw := strings.TrimSpace(scanner.Text())
					if raw == "" {
						continue
					}
					var rec importRecord
					if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.ItemID == 0 || strings.TrimSpace(rec.Title) == "" {
						skipped++
						fmt.Fprintf(cmd.ErrOrStderr(), "line %d skipped\n", line)
						continue
					}
					if err := catalog.Upsert(cmd.Context(), newEntry(rec.ContainerID, rec.ItemID, rec.Title)); err != nil {
						return fmt.Errorf("line %d: %w", line, err)
					}
					imported++
				}
				if err := scanner.Err(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries, skipped %d\n", imported, skipped)
				return nil
			})
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var containerID, itemID int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove one catalog entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd.Context(), func(catalog ports.Catalog, _ ports.SearchLogRepository) error {
				loc := domain.Locator{ContainerID: containerID, ItemID: itemID}
				if err := catalog.DeleteEntry(cmd.Context(), loc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", loc)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&containerID, "container", 0, "Source channel id")
	cmd.Flags().Int64Var(&itemID, "item", 0, "Source message id")
	return cmd
}

func newRebuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-norms",
		Short: "Recompute normalized titles with the current normalizer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd.Context(), func(catalog ports.Catalog, _ ports.SearchLogRepository) error {
				start := time.Now()
				changed, err := catalog.RebuildNormalized(cmd.Context(), search.Normalize)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d entries in %s\n", changed, time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog size and newest entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd.Context(), func(catalog ports.Catalog, _ ports.SearchLogRepository) error {
				count, err := catalog.Count(cmd.Context())
				if err != nil {
					return err
				}
				recent, err := catalog.Recent(cmd.Context(), 5)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "backend %s: %d entries\n", ctx.cfg.CatalogBackend, count)
				rows := make([][]string, 0, len(recent))
				for _, e := range recent {
					rows = append(rows, []string{e.CreatedAt.Format(time.DateTime), e.Locator().String(), e.TitleRaw})
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"Added", "Locator", "Title"}, rows, nil))
				}
				return nil
			})
		},
	}
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	limit := 20
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent user searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(cmd.Context(), func(_ ports.Catalog, logs ports.SearchLogRepository) error {
				entries, err := logs.RecentSearches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					found := "no"
					if e.Found {
						found = "yes"
					}
					rows = append(rows, []string{e.CreatedAt.Format(time.DateTime), strconv.FormatInt(e.UserID, 10), e.Query, found})
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no searches recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Time", "User", "Query", "Found"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", limit, "Number of searches to show")
	return cmd
}

func newEntry(containerID, itemID int64, title string) domain.CatalogEntry {
	title = strings.TrimSpace(title)
	return domain.CatalogEntry{
		TitleRaw:        title,
		TitleNormalized: search.Normalize(title),
		ContainerID:     containerID,
		ItemID:          itemID,
		CreatedAt:       time.Now().UTC(),
	}
}
