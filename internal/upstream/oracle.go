package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
)

const remoteName = "origin"

// Classifier is the read side of the oracle, consumed by the prober and the
// scoring engine.
type Classifier interface {
	Head() string
	Classify(versionURL string) domain.VersionStatus
}

// Oracle tracks the head of one branch of the upstream repository. It keeps
// a bare scratch repository up to date by fetching refs only (no checkout,
// no working tree) and answers whether a commit an instance reports is the
// branch head, behind it, or off on a fork.
//
// Single writer (the refresh loop), many readers. A failed refresh keeps the
// previous state; the process runs fine on a stale head.
type Oracle struct {
	mu     sync.Mutex
	repo   *git.Repository
	branch string
	gitURL string
	log    *zap.Logger

	head      string
	branchSet map[string]struct{} // full hashes reachable from head
	cache     map[string]cacheEntry
	epoch     uint8
}

type cacheEntry struct {
	status domain.VersionStatus
	epoch  uint8
}

// Open opens or initializes the scratch repository and points its remote at
// gitURL. No network traffic happens until Refresh.
func Open(scratchDir, gitURL, branch string, log *zap.Logger) (*Oracle, error) {
	repo, err := git.PlainOpen(scratchDir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(scratchDir, true)
	}
	if err != nil {
		return nil, fmt.Errorf("open scratch repo: %w", err)
	}

	remote, err := repo.Remote(remoteName)
	switch {
	case errors.Is(err, git.ErrRemoteNotFound):
		_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: remoteName,
			URLs: []string{gitURL},
		})
		if err != nil {
			return nil, fmt.Errorf("create remote: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("find remote: %w", err)
	default:
		if urls := remote.Config().URLs; len(urls) == 0 || urls[0] != gitURL {
			log.Warn("oracle_remote_url_changed", zap.Strings("found", urls), zap.String("expected", gitURL))
			if err := repo.DeleteRemote(remoteName); err != nil {
				return nil, fmt.Errorf("reset remote: %w", err)
			}
			if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
				Name: remoteName,
				URLs: []string{gitURL},
			}); err != nil {
				return nil, fmt.Errorf("recreate remote: %w", err)
			}
		}
	}

	return &Oracle{
		repo:   repo,
		branch: branch,
		gitURL: gitURL,
		log:    log,
		cache:  make(map[string]cacheEntry),
	}, nil
}

// Refresh fetches all branch heads and rebuilds the set of commits reachable
// from the tracked branch. On any failure the previous state stays in place.
func (o *Oracle) Refresh(ctx context.Context) error {
	remote, err := o.repo.Remote(remoteName)
	if err != nil {
		return fmt.Errorf("find remote: %w", err)
	}
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remoteName)),
		},
		Tags:  git.NoTags,
		Force: true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s: %w", o.gitURL, err)
	}

	ref, err := o.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, o.branch), true)
	if err != nil {
		return fmt.Errorf("branch %q not found: %w", o.branch, err)
	}
	head := ref.Hash()

	iter, err := o.repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return fmt.Errorf("walk branch: %w", err)
	}
	branchSet := make(map[string]struct{}, 4096)
	err = iter.ForEach(func(c *object.Commit) error {
		branchSet[c.Hash.String()] = struct{}{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk branch: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.head != head.String() {
		// a new head can flip Latest entries to Outdated
		o.cache = make(map[string]cacheEntry)
	} else {
		o.evictStaleLocked()
	}
	o.epoch++
	o.head = head.String()
	o.branchSet = branchSet
	o.log.Debug("oracle_refreshed",
		zap.String("head", o.head),
		zap.Int("branch_commits", len(branchSet)))
	return nil
}

// evictStaleLocked drops cache entries not used within the last two epochs.
func (o *Oracle) evictStaleLocked() {
	for sha, e := range o.cache {
		if o.epoch-e.epoch > 1 {
			delete(o.cache, sha)
		}
	}
}

// Head returns the current branch head, empty until the first successful
// refresh.
func (o *Oracle) Head() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.head
}

// Classify relates a version URL from an instance about page (e.g.
// ".../commit/a92e79e") to the tracked branch. Abbreviated hashes resolve;
// anything that can't be resolved is Unknown.
func (o *Oracle) Classify(versionURL string) domain.VersionStatus {
	sha := commitRef(versionURL)
	if sha == "" {
		return domain.VersionUnknown
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.head == "" {
		return domain.VersionUnknown
	}
	if e, ok := o.cache[sha]; ok {
		e.epoch = o.epoch
		o.cache[sha] = e
		return e.status
	}
	status := o.classifyLocked(sha)
	o.cache[sha] = cacheEntry{status: status, epoch: o.epoch}
	return status
}

func (o *Oracle) classifyLocked(sha string) domain.VersionStatus {
	full, onBranch := o.expandOnBranchLocked(sha)
	if onBranch {
		if full == o.head {
			return domain.VersionLatest
		}
		return domain.VersionOutdated
	}
	// Not reachable from the branch head. If the object exists at all in
	// the fetched refs it lives on some other upstream branch.
	if _, err := o.repo.ResolveRevision(plumbing.Revision(sha)); err == nil {
		return domain.VersionFork
	}
	return domain.VersionUnknown
}

// expandOnBranchLocked matches sha (possibly abbreviated) against the
// commits reachable from the branch head.
func (o *Oracle) expandOnBranchLocked(sha string) (string, bool) {
	if len(sha) == 40 {
		_, ok := o.branchSet[sha]
		return sha, ok
	}
	for full := range o.branchSet {
		if strings.HasPrefix(full, sha) {
			return full, true
		}
	}
	return "", false
}

// commitRef pulls the commit hash out of a version URL or bare ref.
func commitRef(versionURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(versionURL), "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.ToLower(trimmed)
	if len(trimmed) < 7 || len(trimmed) > 40 {
		return ""
	}
	for _, r := range trimmed {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}
	return trimmed
}
