package gitrepo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bobboyms/git-storage/pkg/gitrepo"
	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"
)

func TestGoGit_InitCheckoutCommit_NoRemote(t *testing.T) {
	dir := t.TempDir()
	repo := gitrepo.New(dir, zerolog.Nop())

	if err := repo.EnsureInitialized("main"); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if err := repo.EnsureBranch("main"); err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}
	if repo.HasRemote() {
		t.Fatalf("expected no remote configured")
	}

	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data", "00.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed, err := repo.StageAll()
	if err != nil {
		t.Fatalf("StageAll: %v", err)
	}
	if !changed {
		t.Fatalf("expected a new file to require staging")
	}
	if err := repo.Commit("sync: manual"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	changed, err = repo.StageAll()
	if err != nil {
		t.Fatalf("StageAll after commit: %v", err)
	}
	if changed {
		t.Fatalf("expected nothing to stage immediately after a clean commit")
	}
}

func TestGoGit_PushFetchAgainstLocalBareRemote(t *testing.T) {
	remoteDir := t.TempDir()
	if _, err := git.PlainInit(remoteDir, true); err != nil {
		t.Fatalf("init bare remote: %v", err)
	}

	writerDir := t.TempDir()
	writer := gitrepo.New(writerDir, zerolog.Nop())
	if err := writer.EnsureInitialized("main"); err != nil {
		t.Fatalf("writer init: %v", err)
	}
	if err := writer.EnsureRemote(remoteDir); err != nil {
		t.Fatalf("writer add remote: %v", err)
	}
	if err := writer.EnsureBranch("main"); err != nil {
		t.Fatalf("writer checkout: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(writerDir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(writerDir, "data", "00.json"), []byte(`{"k":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := writer.StageAll(); err != nil {
		t.Fatalf("writer stage: %v", err)
	}
	if err := writer.Commit("sync: manual"); err != nil {
		t.Fatalf("writer commit: %v", err)
	}
	if err := writer.Push("main", true); err != nil {
		t.Fatalf("writer push: %v", err)
	}

	readerDir := t.TempDir()
	reader := gitrepo.New(readerDir, zerolog.Nop())
	if err := reader.EnsureInitialized("main"); err != nil {
		t.Fatalf("reader init: %v", err)
	}
	if err := reader.EnsureRemote(remoteDir); err != nil {
		t.Fatalf("reader add remote: %v", err)
	}
	if err := reader.Fetch("main"); err != nil {
		t.Fatalf("reader fetch: %v", err)
	}

	files, err := reader.ListRemoteBucketFiles("main")
	if err != nil {
		t.Fatalf("ListRemoteBucketFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "data/00.json" {
		t.Fatalf("unexpected remote bucket listing: %v", files)
	}

	contents, err := reader.ReadRemoteFile("main", "data/00.json")
	if err != nil {
		t.Fatalf("ReadRemoteFile: %v", err)
	}
	if string(contents) != `{"k":1}` {
		t.Fatalf("unexpected remote file contents: %s", contents)
	}
}

func TestGoGit_FetchUnknownBranchIsAbsent(t *testing.T) {
	remoteDir := t.TempDir()
	if _, err := git.PlainInit(remoteDir, true); err != nil {
		t.Fatalf("init bare remote: %v", err)
	}

	dir := t.TempDir()
	repo := gitrepo.New(dir, zerolog.Nop())
	if err := repo.EnsureInitialized("main"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := repo.EnsureRemote(remoteDir); err != nil {
		t.Fatalf("add remote: %v", err)
	}

	err := repo.Fetch("main")
	if err == nil {
		t.Fatalf("expected an error fetching a branch that was never pushed")
	}
	if !gitrepo.IsRemoteBranchAbsent(err) {
		t.Fatalf("expected IsRemoteBranchAbsent to classify %v as branch-absent", err)
	}
}
