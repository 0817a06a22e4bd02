package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bobboyms/git-storage/pkg/kverrors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog"
)

const originName = "origin"

// GoGit is the Repo implementation backed by go-git/go-git/v5.
type GoGit struct {
	dir string
	log zerolog.Logger

	mu       sync.Mutex
	repo     *git.Repository
	remote   string
	username string
	token    string
}

// New opens (or prepares to create) the repository rooted at dir.
func New(dir string, log zerolog.Logger) *GoGit {
	return &GoGit{dir: dir, log: log}
}

func (g *GoGit) SetAuth(username, token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.username = username
	g.token = token
}

func (g *GoGit) auth() transport.AuthMethod {
	if g.token == "" {
		return nil
	}
	user := g.username
	if user == "" {
		user = "git"
	}
	return &githttp.BasicAuth{Username: user, Password: g.token}
}

func (g *GoGit) EnsureInitialized(defaultBranch string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if repo, err := git.PlainOpen(g.dir); err == nil {
		g.repo = repo
		return nil
	}

	repo, err := git.PlainInitWithOptions(g.dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName(defaultBranch),
		},
	})
	if err != nil {
		return fmt.Errorf("git init: %w", err)
	}
	g.repo = repo
	g.log.Debug().Str("dir", g.dir).Str("branch", defaultBranch).Msg("initialized repository")
	return nil
}

func (g *GoGit) EnsureRemote(url string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if url == "" {
		return nil
	}
	g.remote = url

	if _, err := g.repo.Remote(originName); err == nil {
		return nil
	}
	_, err := g.repo.CreateRemote(&config.RemoteConfig{
		Name: originName,
		URLs: []string{url},
	})
	if err != nil {
		return fmt.Errorf("add remote origin: %w", err)
	}
	return nil
}

func (g *GoGit) HasRemote() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remote != ""
}

func (g *GoGit) EnsureBranch(branch string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	localRef := plumbing.NewBranchReferenceName(branch)
	if _, err := g.repo.Reference(localRef, true); err == nil {
		return wt.Checkout(&git.CheckoutOptions{Branch: localRef})
	}

	remoteRef := plumbing.NewRemoteReferenceName(originName, branch)
	if ref, err := g.repo.Reference(remoteRef, true); err == nil {
		if err := wt.Checkout(&git.CheckoutOptions{
			Hash:   ref.Hash(),
			Branch: localRef,
			Create: true,
		}); err != nil {
			return fmt.Errorf("checkout from origin/%s: %w", branch, err)
		}
		return nil
	}

	if _, err := g.repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Unborn repository: there is no commit to branch from yet, so HEAD
		// is pointed at the branch and the first commit creates it.
		return g.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, localRef))
	}
	return wt.Checkout(&git.CheckoutOptions{Branch: localRef, Create: true})
}

func (g *GoGit) Fetch(branch string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.remote == "" {
		return nil
	}

	err := g.repo.Fetch(&git.FetchOptions{
		RemoteName: originName,
		Auth:       g.auth(),
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch)),
		},
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if IsRemoteBranchAbsent(err) {
		return &kverrors.RemoteBranchAbsentError{Branch: branch, Cause: err}
	}
	return fmt.Errorf("fetch origin/%s: %w", branch, err)
}

func (g *GoGit) remoteTree(branch string) (*object.Tree, error) {
	ref, err := g.repo.Reference(plumbing.NewRemoteReferenceName(originName, branch), true)
	if err != nil {
		return nil, err
	}
	commit, err := g.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}

func (g *GoGit) ListRemoteBucketFiles(branch string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tree, err := g.remoteTree(branch)
	if err != nil {
		return nil, nil
	}

	var files []string
	walker := tree.Files()
	defer walker.Close()
	for {
		f, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return files, err
		}
		if path.Dir(f.Name) == "data" && strings.HasSuffix(f.Name, ".json") {
			files = append(files, f.Name)
		}
	}
	return files, nil
}

func (g *GoGit) ReadRemoteFile(branch, filePath string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tree, err := g.remoteTree(branch)
	if err != nil {
		return nil, err
	}
	f, err := tree.File(filePath)
	if err != nil {
		return nil, err
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return []byte(contents), nil
}

func (g *GoGit) StageAll() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	wt, err := g.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}

	changed := false
	for file, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		changed = true
		if st.Worktree == git.Deleted {
			if _, err := wt.Remove(file); err != nil {
				return changed, fmt.Errorf("stage removal of %s: %w", file, err)
			}
			continue
		}
		if _, err := wt.Add(file); err != nil {
			return changed, fmt.Errorf("stage %s: %w", file, err)
		}
	}
	return changed, nil
}

func (g *GoGit) Commit(message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  AuthorName,
			Email: AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (g *GoGit) Push(branch string, force bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.remote == "" {
		return nil
	}

	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if force {
		refspec = "+" + refspec
	}
	err := g.repo.Push(&git.PushOptions{
		RemoteName: originName,
		RefSpecs:   []config.RefSpec{config.RefSpec(refspec)},
		Auth:       g.auth(),
		Force:      force,
	})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return fmt.Errorf("push origin/%s: %w", branch, err)
}

func (g *GoGit) RemoveGitDir() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.repo = nil
	return os.RemoveAll(filepath.Join(g.dir, ".git"))
}
