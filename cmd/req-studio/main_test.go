package main

import (
	"context"
	"errors"
	"testing"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/stories"
	"req-studio/internal/store"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	fs, err := gateway.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	docs := store.New(fs)
	return &app{
		logger:  helpers.DiscardLogger(),
		fs:      fs,
		docs:    docs,
		stories: stories.New(fs, docs, nil),
	}
}

func TestSelectProjectByNameOrID(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	p, err := a.docs.CreateProject(ctx, "Alpha", "", "")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	for _, ref := range []string{p.ID, "alpha", p.Dir} {
		got, err := a.selectProject(ctx, ref)
		if err != nil {
			t.Fatalf("selectProject(%q) failed: %v", ref, err)
		}
		if got.ID != p.ID {
			t.Errorf("selectProject(%q) = %s, want %s", ref, got.ID, p.ID)
		}
	}

	if _, err := a.selectProject(ctx, "missing"); !errors.Is(err, store.ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestPRDPaths(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if _, _, err := a.prdPaths("PRD01"); !errors.Is(err, store.ErrNoProjectSelected) {
		t.Errorf("expected ErrNoProjectSelected, got %v", err)
	}

	p, err := a.docs.CreateProject(ctx, "Alpha", "", "")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if _, err := a.selectProject(ctx, p.ID); err != nil {
		t.Fatalf("selectProject failed: %v", err)
	}

	for _, ref := range []string{"PRD03", "prd3", "3"} {
		base, feature, err := a.prdPaths(ref)
		if err != nil {
			t.Fatalf("prdPaths(%q) failed: %v", ref, err)
		}
		if base != p.Dir+"/PRD/PRD03-base.json" || feature != p.Dir+"/PRD/PRD03-feature.json" {
			t.Errorf("prdPaths(%q) = %s, %s", ref, base, feature)
		}
	}

	if _, _, err := a.prdPaths("BRD01"); err == nil {
		t.Errorf("expected an error for a non-PRD reference")
	}
}

func TestParseType(t *testing.T) {
	if rt, err := parseType("brd"); err != nil || rt != "BRD" {
		t.Errorf("parseType(brd) = %s, %v", rt, err)
	}
	if _, err := parseType("csv"); err == nil {
		t.Errorf("expected an error for an unknown type")
	}
}
