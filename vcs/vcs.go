// Package vcs reports which test files changed between two revisions of a
// git repository.
package vcs

import (
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/teranos/wptmeta/catalog"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/logger"
)

// ChangeKind is how a path changed between two revisions
type ChangeKind int

const (
	Modified ChangeKind = iota
	Added
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "new"
	case Deleted:
		return "deleted"
	default:
		return "modified"
	}
}

// MarshalText renders the kind by name in JSON and YAML reports
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Changes maps slash-separated repository paths to how they changed.
// Renames appear as a deletion and an addition.
type Changes map[string]ChangeKind

// Under returns the changes inside dir with paths made relative to it
func (c Changes) Under(dir string) Changes {
	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir == "" {
		return c
	}
	out := make(Changes)
	for p, kind := range c {
		if rel, ok := strings.CutPrefix(p, dir+"/"); ok {
			out[rel] = kind
		}
	}
	return out
}

// Paths returns the changed paths in order
func (c Changes) Paths() []string {
	out := make([]string, 0, len(c))
	for p := range c {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ChangedPaths diffs the trees of two revisions of the repository
// containing repoPath. Revisions accept anything git rev-parse understands
// that go-git supports: hashes, branch and tag names, HEAD~n.
func ChangedPaths(repoPath, revOld, revNew string) (Changes, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening repository %s", repoPath)
	}

	oldTree, err := revisionTree(repo, revOld)
	if err != nil {
		return nil, err
	}
	newTree, err := revisionTree(repo, revNew)
	if err != nil {
		return nil, err
	}

	diff, err := object.DiffTree(oldTree, newTree)
	if err != nil {
		return nil, errors.Wrapf(err, "diffing %s..%s", revOld, revNew)
	}

	out := make(Changes, len(diff))
	for _, ch := range diff {
		action, err := ch.Action()
		if err != nil {
			return nil, errors.Wrap(err, "classifying change")
		}
		switch action {
		case merkletrie.Insert:
			out[ch.To.Name] = Added
		case merkletrie.Delete:
			out[ch.From.Name] = Deleted
		case merkletrie.Modify:
			out[ch.To.Name] = Modified
		}
	}

	logger.ComponentLogger("vcs").Debugw("computed changed paths",
		"rev_old", revOld,
		"rev_new", revNew,
		logger.FieldCount, len(out))
	return out, nil
}

func revisionTree(repo *git.Repository, rev string) (*object.Tree, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, errors.Wrapf(err, "resolving revision %q", rev)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, errors.Wrapf(err, "loading commit %s", hash)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, errors.Wrapf(err, "loading tree of %s", hash)
	}
	return tree, nil
}

// UnexpectedChanges returns the test files of the root served at url base
// "/" that changed other than by modification. Paths in changes must be
// relative to the test root (see Changes.Under).
func UnexpectedChanges(roots []*catalog.Root, changes Changes) []string {
	var root *catalog.Root
	for _, r := range roots {
		if r.URLBase == "/" {
			root = r
			break
		}
	}
	if root == nil {
		return nil
	}

	var out []string
	for _, item := range root.Tests() {
		if kind, ok := changes[item.Path]; ok && kind != Modified {
			out = append(out, item.Path)
		}
	}
	sort.Strings(out)
	return out
}
