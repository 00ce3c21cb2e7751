package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/iksnae/session-bridge/internal/provider"
)

func TestRelativeDate(t *testing.T) {
	if got := relativeDate(0); got != "—" {
		t.Errorf("relativeDate(0) = %q, want placeholder", got)
	}

	recent := time.Now().Add(-30 * time.Minute).UnixMilli()
	if got := relativeDate(recent); !strings.HasPrefix(got, "Today ") {
		t.Errorf("relativeDate(30m ago) = %q, want Today prefix", got)
	}

	old := time.Now().AddDate(-2, 0, 0).UnixMilli()
	got := relativeDate(old)
	if len(got) != len("2006-01-02") || strings.Count(got, "-") != 2 {
		t.Errorf("relativeDate(2y ago) = %q, want plain date", got)
	}
}

func TestFilterAndSort(t *testing.T) {
	summaries := func() []provider.SessionSummary {
		return []provider.SessionSummary{
			{SessionID: "b", Workspace: "/data/projects/api", MessageCount: 2},
			{SessionID: "a", Workspace: "/data/projects/web", MessageCount: 9},
			{SessionID: "c", Workspace: "/tmp/scratch", MessageCount: 5},
		}
	}
	reset := func() {
		listWorkspace, listLimit, listSort = "", 0, "updated"
	}
	defer reset()

	reset()
	listWorkspace = "projects"
	got, err := filterAndSort(summaries())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("workspace filter kept %d sessions, want 2", len(got))
	}

	reset()
	listSort = "messages"
	got, err = filterAndSort(summaries())
	if err != nil {
		t.Fatal(err)
	}
	if got[0].SessionID != "a" {
		t.Errorf("messages sort put %q first, want a", got[0].SessionID)
	}

	reset()
	listSort = "id"
	listLimit = 1
	got, err = filterAndSort(summaries())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SessionID != "a" {
		t.Errorf("id sort + limit = %v", got)
	}

	reset()
	listSort = "bogus"
	if _, err := filterAndSort(summaries()); err == nil {
		t.Error("unknown sort key should error")
	}
}
