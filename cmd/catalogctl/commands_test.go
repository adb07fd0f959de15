package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kinobot/internal/app"
	"kinobot/internal/domain"
	"kinobot/internal/domain/ports"
	"kinobot/internal/repository/memory"
)

// runCommand executes catalogctl against a shared in-memory catalog.
func runCommand(t *testing.T, catalog *memory.Catalog, args ...string) (string, error) {
	t.Helper()
	ctx := &commandContext{
		cfg:    app.Config{CatalogBackend: "memory"},
		logger: slog.Default(),
		open: func(context.Context, app.Config, *slog.Logger) (ports.Catalog, ports.SearchLogRepository, func(), error) {
			return catalog, catalog, func() {}, nil
		},
	}
	cmd := newRootCommandWith(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAddAndSearch(t *testing.T) {
	catalog := memory.NewCatalog()

	out, err := runCommand(t, catalog, "add", "--container=-100", "--item", "5", "--title", "Avatar 2009 1080p")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, `"avatar"`) {
		t.Fatalf("expected normalized title in output, got %q", out)
	}

	out, err = runCommand(t, catalog, "search", "avatar")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "1 results") || !strings.Contains(out, "-100/5") {
		t.Fatalf("unexpected search output %q", out)
	}
}

func TestAddRequiresTitle(t *testing.T) {
	if _, err := runCommand(t, memory.NewCatalog(), "add", "--item", "5"); err == nil {
		t.Fatal("expected error without --title")
	}
}

func TestImportSkipsBadLines(t *testing.T) {
	catalog := memory.NewCatalog()
	path := filepath.Join(t.TempDir(), "entries.jsonl")
	data := strings.Join([]string{
		`{"containerId":-1,"itemId":1,"title":"Sevgi ortidan 5 qism"}`,
		`not json`,
		``,
		`{"containerId":-1,"itemId":2,"title":"Sevgi ortidan 6 qism"}`,
		`{"containerId":-1,"itemId":3,"title":""}`,
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runCommand(t, catalog, "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 2 entries, skipped 2") {
		t.Fatalf("unexpected output %q", out)
	}
	if n, _ := catalog.Count(context.Background()); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
}

func TestRebuildNorms(t *testing.T) {
	catalog := memory.NewCatalog(domain.CatalogEntry{TitleRaw: "Dark S01E03", TitleNormalized: "stale", ContainerID: -1, ItemID: 1})

	out, err := runCommand(t, catalog, "rebuild-norms")
	if err != nil {
		t.Fatalf("rebuild-norms: %v", err)
	}
	if !strings.Contains(out, "updated 1 entries") {
		t.Fatalf("unexpected output %q", out)
	}
	entry, _ := catalog.Get(context.Background(), domain.Locator{ContainerID: -1, ItemID: 1})
	if entry.TitleNormalized != "dark s01e03" {
		t.Fatalf("expected renormalized title, got %q", entry.TitleNormalized)
	}
}

func TestDeleteAndStats(t *testing.T) {
	catalog := memory.NewCatalog(
		domain.CatalogEntry{TitleRaw: "A", TitleNormalized: "a", ContainerID: -1, ItemID: 1},
		domain.CatalogEntry{TitleRaw: "B", TitleNormalized: "b", ContainerID: -1, ItemID: 2},
	)
	if _, err := runCommand(t, catalog, "delete", "--container=-1", "--item", "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err := runCommand(t, catalog, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "1 entries") {
		t.Fatalf("unexpected stats output %q", out)
	}
}

func TestLogs(t *testing.T) {
	catalog := memory.NewCatalog()
	out, err := runCommand(t, catalog, "logs")
	if err != nil || !strings.Contains(out, "no searches recorded") {
		t.Fatalf("expected empty log output, got %q (%v)", out, err)
	}

	_ = catalog.LogSearch(context.Background(), domain.SearchLogEntry{UserID: 42, Query: "avatar", Found: true})
	out, err = runCommand(t, catalog, "logs", "--limit", "5")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "avatar") || !strings.Contains(out, "42") {
		t.Fatalf("unexpected logs output %q", out)
	}
}

func TestRenderTable(t *testing.T) {
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty table for no headers")
	}
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}}, []columnAlignment{alignRight})
	if !strings.Contains(out, "A") || !strings.Contains(out, "1") {
		t.Fatalf("unexpected table %q", out)
	}
}
