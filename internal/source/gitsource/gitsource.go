// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package gitsource implements source.Source against a git remote using
// go-git, replacing the teacher's shelled-out git invocations with an
// in-process library (spec.md §4.7).
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"g8r/pkg/model"
)

// Config describes a git-backed Source.
type Config struct {
	URL        string
	Branch     string
	Token      string // falls back to GITHUB_TOKEN if empty
	LocalPath  string
	ConfigFile string // path to the entry config file, relative to LocalPath
}

// Source is a source.Source backed by a git working copy, guarded by a
// mutex so a single stack's reconciliation loop never races fetch/reset
// operations against itself.
type Source struct {
	cfg  Config
	mu   sync.Mutex
	repo *git.Repository
}

// New builds a git Source. If cfg.Token is empty, GITHUB_TOKEN from the
// environment is used, mirroring the teacher's fallback.
func New(cfg Config) *Source {
	if cfg.Token == "" {
		cfg.Token = os.Getenv("GITHUB_TOKEN")
	}
	return &Source{cfg: cfg}
}

func (s *Source) auth() *http.BasicAuth {
	if s.cfg.Token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "oauth2", Password: s.cfg.Token}
}

// Init clones the working copy if absent, or opens and fast-forwards it to
// the tracked branch's remote tip if it already exists.
func (s *Source) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.cfg.LocalPath); errors.Is(err, os.ErrNotExist) {
		return s.clone(ctx)
	}

	repo, err := git.PlainOpen(s.cfg.LocalPath)
	if err != nil {
		return fmt.Errorf("%w: opening existing working copy at %s: %v", model.ErrSource, s.cfg.LocalPath, err)
	}
	s.repo = repo

	if err := s.fetchLocked(ctx); err != nil {
		return err
	}
	return s.hardResetToRemoteLocked()
}

func (s *Source) clone(ctx context.Context) error {
	repo, err := git.PlainCloneContext(ctx, s.cfg.LocalPath, false, &git.CloneOptions{
		URL:           s.cfg.URL,
		Auth:          s.auth(),
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		return fmt.Errorf("%w: cloning %s: %v", model.ErrSource, s.cfg.URL, err)
	}
	s.repo = repo
	return nil
}

// Fetch pulls the latest content from the tracked branch without altering
// the working copy's checked-out state.
func (s *Source) Fetch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchLocked(ctx)
}

func (s *Source) fetchLocked(ctx context.Context) error {
	if s.repo == nil {
		return fmt.Errorf("%w: source not initialized", model.ErrState)
	}
	err := s.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       s.auth(),
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", s.cfg.Branch, s.cfg.Branch)),
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: fetching from origin: %v", model.ErrSource, err)
	}
	return nil
}

func (s *Source) hardResetToRemoteLocked() error {
	remoteRef, err := s.repo.Reference(plumbing.NewRemoteReferenceName("origin", s.cfg.Branch), true)
	if err != nil {
		return fmt.Errorf("%w: resolving origin/%s: %v", model.ErrSource, s.cfg.Branch, err)
	}
	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrSource, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("%w: resetting to %s: %v", model.ErrSource, remoteRef.Hash(), err)
	}
	return nil
}

// Version returns the working copy's current HEAD commit SHA.
func (s *Source) Version(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		return "", fmt.Errorf("%w: source not initialized", model.ErrState)
	}
	head, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("%w: resolving HEAD: %v", model.ErrSource, err)
	}
	return head.Hash().String(), nil
}

// ConfigPath returns the absolute path to the stack's entry config file.
func (s *Source) ConfigPath(ctx context.Context) (string, error) {
	return filepath.Join(s.cfg.LocalPath, s.cfg.ConfigFile), nil
}

// HasUpdates fetches and compares the remote tracking branch's tip against
// both the local HEAD and the caller's last known version.
func (s *Source) HasUpdates(ctx context.Context, lastVersion string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fetchLocked(ctx); err != nil {
		return false, err
	}

	localHead, err := s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("%w: resolving HEAD: %v", model.ErrSource, err)
	}
	remoteRef, err := s.repo.Reference(plumbing.NewRemoteReferenceName("origin", s.cfg.Branch), true)
	if err != nil {
		return false, fmt.Errorf("%w: resolving origin/%s: %v", model.ErrSource, s.cfg.Branch, err)
	}

	localSHA := localHead.Hash().String()
	remoteSHA := remoteRef.Hash().String()
	return localSHA != remoteSHA || localSHA != lastVersion, nil
}
