package history

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/docstore/internal/docdb"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(t.TempDir(), "Test", "test@example.com")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return r
}

func writeFile(t *testing.T, r *Repo, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.Dir(), name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRepo(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		r := newTestRepo(t)
		commits, err := r.Log("", 0)
		if err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
		if len(commits) != 0 {
			t.Errorf("expected no commits, got %d", len(commits))
		}
		if _, err := r.FileAt("HEAD", "t.json"); err == nil {
			t.Error("FileAt(HEAD) on an empty repo expected an error")
		}
	})

	t.Run("CommitAndLog", func(t *testing.T) {
		r := newTestRepo(t)
		writeFile(t, r, "a.json", `{"k":1}`)
		writeFile(t, r, ".docstore.lock", "")
		if err := r.Commit("write a/k", "a.json"); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
		writeFile(t, r, "b.json", `{}`)
		if err := r.Commit("create b\n\nwith details", "b.json", "b-rules.json"); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
		writeFile(t, r, "a.json", `{"k":2}`)
		if err := r.Commit("write a/k", "a.json"); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}

		all, err := r.Log("", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("Log() returned %d commits, want 3", len(all))
		}
		if all[1].Message != "create b" || all[1].Body != "with details" {
			t.Errorf("unexpected commit %+v", all[1])
		}
		if all[0].Author != "Test" || all[0].AuthorEmail != "test@example.com" {
			t.Errorf("unexpected author %+v", all[0])
		}

		a, err := r.Log("a.json", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(a) != 2 {
			t.Fatalf("Log(a.json) returned %d commits, want 2", len(a))
		}
		limited, err := r.Log("", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 1 || limited[0].Hash != all[0].Hash {
			t.Errorf("Log(n=1) = %+v", limited)
		}

		old, err := r.FileAt(a[1].Hash, "a.json")
		if err != nil {
			t.Fatalf("FileAt() failed: %v", err)
		}
		if string(old) != `{"k":1}` {
			t.Errorf("FileAt(old) = %q", old)
		}
		head, err := r.FileAt("HEAD", "a.json")
		if err != nil {
			t.Fatal(err)
		}
		if string(head) != `{"k":2}` {
			t.Errorf("FileAt(HEAD) = %q", head)
		}
		if _, err := r.FileAt("HEAD", ".docstore.lock"); err == nil {
			t.Error("the lock file must not be committed")
		}
	})

	t.Run("NoChange", func(t *testing.T) {
		r := newTestRepo(t)
		writeFile(t, r, "a.json", `{}`)
		if err := r.Commit("first", "a.json"); err != nil {
			t.Fatal(err)
		}
		if err := r.Commit("again", "a.json"); err != nil {
			t.Fatal(err)
		}
		if err := r.Commit("missing", "never.json"); err != nil {
			t.Fatalf("Commit() of a never tracked missing file failed: %v", err)
		}
		if err := r.Commit("nothing"); err != nil {
			t.Fatal(err)
		}
		commits, err := r.Log("", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(commits) != 1 {
			t.Errorf("expected 1 commit, got %d", len(commits))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		r := newTestRepo(t)
		writeFile(t, r, "a.json", `{}`)
		if err := r.Commit("create a", "a.json"); err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(filepath.Join(r.Dir(), "a.json")); err != nil {
			t.Fatal(err)
		}
		if err := r.Commit("drop a", "a.json"); err != nil {
			t.Fatalf("Commit() of a deleted file failed: %v", err)
		}
		commits, err := r.Log("", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(commits) != 2 || commits[0].Message != "drop a" {
			t.Fatalf("unexpected log %+v", commits)
		}
		if _, err := r.FileAt("HEAD", "a.json"); err == nil {
			t.Error("a.json must be gone at HEAD")
		}
	})

	t.Run("Reopen", func(t *testing.T) {
		r := newTestRepo(t)
		writeFile(t, r, "a.json", `{}`)
		if err := r.Commit("create a", "a.json"); err != nil {
			t.Fatal(err)
		}
		r2, err := Open(r.Dir(), "Other", "other@example.com")
		if err != nil {
			t.Fatalf("Open() of an existing repo failed: %v", err)
		}
		commits, err := r2.Log("a.json", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(commits) != 1 {
			t.Errorf("expected 1 commit, got %d", len(commits))
		}
	})

	t.Run("Author", func(t *testing.T) {
		if _, err := Open(t.TempDir(), "", "x@example.com"); err == nil {
			t.Error("expected an error without an author name")
		}
	})
}

func TestStoreHistory(t *testing.T) {
	r := newTestRepo(t)
	s, err := docdb.Open(r.Dir(), &docdb.Options{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Committer: r,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateTable("users", docdb.Rules{"id": docdb.KindAutoIncrement, "name": docdb.KindString}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("users", "u1", map[string]any{"id": docdb.AutoIncrement, "name": "ann"}); err != nil {
		t.Fatal(err)
	}
	if err := s.EditField("users", "u1", "name", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveTable("users"); err != nil {
		t.Fatal(err)
	}

	commits, err := r.Log("", 0)
	if err != nil {
		t.Fatal(err)
	}
	var msgs []string
	for _, c := range commits {
		msgs = append(msgs, c.Message)
	}
	if got, want := strings.Join(msgs, ","), "drop users,edit users/u1.name,write users/u1,create users"; got != want {
		t.Errorf("history = %q, want %q", got, want)
	}
	counter, err := r.FileAt("HEAD", "increment.json")
	if err != nil {
		t.Fatalf("counter file not committed: %v", err)
	}
	if !strings.Contains(string(counter), `"users": 1`) {
		t.Errorf("unexpected counter file %s", counter)
	}
	rules, err := r.FileAt(commits[1].Hash, "users-rules.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(rules), "AUTO_INCREMENT") {
		t.Errorf("unexpected rules %s", rules)
	}
}
