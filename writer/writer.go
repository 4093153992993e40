// Package writer persists coalesced expectation trees.
//
// A metadata root is replaced as a whole: the new tree is assembled in a
// temporary directory next to the root and swapped in with two renames, so
// readers see either the old or the new tree. A lock file beside the root
// keeps concurrent writers out.
package writer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/wptmeta/catalog"
	"github.com/teranos/wptmeta/errors"
	"github.com/teranos/wptmeta/expected"
	"github.com/teranos/wptmeta/logger"
)

const (
	lockSuffix   = ".lock"
	backupInfix  = ".bak-"
	manifestExt  = ".ini"
	dirPerm      = 0o755
	manifestPerm = 0o644
)

// Result summarizes one root write
type Result struct {
	Metadata  string
	Unchanged bool
	Written   int
	Removed   int
	Copied    int
}

// LockPath returns the lock file guarding a metadata directory
func LockPath(metadata string) string {
	return filepath.Clean(metadata) + lockSuffix
}

// WriteRoot writes every non-empty manifest of root and swaps the result
// into place. Roots without modified manifests are left untouched.
func WriteRoot(ctx context.Context, root *catalog.Root) (Result, error) {
	res := Result{Metadata: root.Metadata}
	log := logger.ChildLogger(logger.ComponentLogger("writer"), logger.FieldMetadata, root.Metadata)

	manifests := root.Manifests()
	if !anyModified(manifests) {
		res.Unchanged = true
		log.Debugw("no manifest changed, skipping write")
		return res, nil
	}

	lock := flock.New(LockPath(root.Metadata))
	if err := os.MkdirAll(filepath.Dir(lock.Path()), dirPerm); err != nil {
		return res, errors.Wrap(err, "creating metadata parent directory")
	}
	ok, err := lock.TryLock()
	if err != nil {
		return res, errors.Wrapf(err, "locking %s", lock.Path())
	}
	if !ok {
		return res, errors.WithHintf(errors.Wrapf(errors.ErrLocked, "%s", root.Metadata),
			"another update holds %s", lock.Path())
	}
	defer func() { _ = lock.Close() }()

	tmp, err := os.MkdirTemp(filepath.Dir(root.Metadata), "."+filepath.Base(root.Metadata)+".new-")
	if err != nil {
		return res, errors.Wrap(err, "creating temporary metadata directory")
	}
	if err := os.Chmod(tmp, dirPerm); err != nil {
		_ = os.RemoveAll(tmp)
		return res, errors.Wrap(err, "setting temporary directory permissions")
	}

	if err := build(ctx, log, tmp, root.Metadata, manifests, &res); err != nil {
		if rmErr := os.RemoveAll(tmp); rmErr != nil {
			log.Warnw("failed to remove temporary directory", logger.FieldPath, tmp, logger.FieldError, rmErr)
		}
		return res, err
	}

	if err := swap(log, tmp, root.Metadata); err != nil {
		return res, err
	}
	log.Infow("wrote metadata",
		logger.FieldCount, res.Written,
		"removed", res.Removed,
		"copied", res.Copied)
	return res, nil
}

func anyModified(manifests []*expected.Manifest) bool {
	for _, m := range manifests {
		if m.Modified() {
			return true
		}
	}
	return false
}

// build fills dst with the serialized manifests and a copy of every file of
// src that no manifest owns.
func build(ctx context.Context, log *zap.SugaredLogger, dst, src string, manifests []*expected.Manifest, res *Result) error {
	owned := make(map[string]*expected.Manifest, len(manifests))
	for _, m := range manifests {
		owned[filepath.FromSlash(m.TestPath)+manifestExt] = m
	}

	if err := copyUnowned(ctx, log, dst, src, owned, res); err != nil {
		return err
	}

	for rel, m := range owned {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "writing manifests")
		}
		if m.IsEmpty() {
			if _, err := os.Stat(filepath.Join(src, rel)); err == nil {
				res.Removed++
				log.Debugw("removing empty manifest", logger.FieldFile, rel)
			}
			continue
		}
		if err := writeFile(filepath.Join(dst, rel), []byte(m.Serialize()), manifestPerm); err != nil {
			return errors.Wrapf(err, "writing %s", rel)
		}
		res.Written++
	}
	return nil
}

func copyUnowned(ctx context.Context, log *zap.SugaredLogger, dst, src string, owned map[string]*expected.Manifest, res *Result) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return nil
		case !d.Type().IsRegular():
			log.Warnw("skipping non-regular file", logger.FieldPath, p)
			return nil
		case owned[rel] != nil:
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := copyFile(filepath.Join(dst, rel), p, info.Mode().Perm()); err != nil {
			return errors.Wrapf(err, "copying %s", rel)
		}
		res.Copied++
		return nil
	})
}

// swap moves dst over the live root, keeping a backup until the rename
// succeeded
func swap(log *zap.SugaredLogger, tmp, metadata string) error {
	var backup string
	if _, err := os.Stat(metadata); err == nil {
		backup = metadata + backupInfix + uuid.NewString()
		if err := os.Rename(metadata, backup); err != nil {
			_ = os.RemoveAll(tmp)
			return errors.Wrap(err, "moving metadata to backup")
		}
	}

	if err := os.Rename(tmp, metadata); err != nil {
		if backup != "" {
			if restoreErr := os.Rename(backup, metadata); restoreErr != nil {
				return errors.WithHintf(
					errors.CombineErrors(errors.Wrap(err, "installing new metadata"), restoreErr),
					"the previous metadata is preserved at %s", backup)
			}
		}
		_ = os.RemoveAll(tmp)
		return errors.Wrap(err, "installing new metadata")
	}

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			log.Warnw("failed to remove metadata backup", logger.FieldPath, backup, logger.FieldError, err)
		}
	}
	return nil
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

func copyFile(dst, src string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
