package bucket

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
)

// SweepReport summarises one retention sweep. Err aggregates every path that
// could not be listed or removed; the sweep itself never stops early.
type SweepReport struct {
	FilesDeleted int
	DirsDeleted  int
	Err          error
}

type sweep struct {
	s      *Store
	now    time.Time
	report SweepReport
	errs   *multierror.Error
}

// Sweep applies the retention tiers to every year directory under the root:
//
//	ancient  (year < now.year-1)               whole year tree removed
//	current  (this year, month >= this month)  untouched
//	previous (this year, month == this month-1) last file of each day kept
//	older    (anything else)                   every file of each day removed
//
// Emptied day directories are removed while walking, then empty month and
// year directories. Entries whose names are not numbers are ignored.
func (s *Store) Sweep(now time.Time) SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw := &sweep{s: s, now: now}
	s.metrics.SweepRuns.Inc()
	s.logger.Info("retention sweep started", "root", s.root, "now", now.Format(time.DateOnly))

	for _, year := range sw.numericDirs(s.root) {
		if _, ancient := ClassifyYear(year.n, now); ancient {
			sw.removeTree(year.path)
			continue
		}
		for _, month := range sw.numericDirs(year.path) {
			tier := Classify(year.n, month.n, now)
			if tier == TierCurrent {
				continue
			}
			for _, day := range sw.numericDirs(month.path) {
				sw.pruneDay(day.path, tier)
			}
			s.logger.Debug("month processed", "path", month.path, "tier", tier.String())
		}
	}

	for _, year := range sw.numericDirs(s.root) {
		for _, month := range sw.numericDirs(year.path) {
			sw.removeIfEmpty(month.path)
		}
	}
	for _, year := range sw.numericDirs(s.root) {
		sw.removeIfEmpty(year.path)
	}

	sw.report.Err = sw.errs.ErrorOrNil()
	s.logger.Info("retention sweep finished",
		"files_deleted", sw.report.FilesDeleted,
		"dirs_deleted", sw.report.DirsDeleted,
		"errors", sw.errCount(),
	)
	return sw.report
}

func (sw *sweep) pruneDay(dayPath string, tier Tier) {
	files := sw.files(dayPath)
	var doomed []string
	switch tier {
	case TierPrevious:
		if len(files) > 1 {
			doomed = files[:len(files)-1]
		}
	case TierOlder:
		doomed = files
	}
	for _, name := range doomed {
		sw.removeFile(filepath.Join(dayPath, name))
	}
	sw.removeIfEmpty(dayPath)
}

type numberedDir struct {
	n    int
	path string
}

// numericDirs lists the subdirectories of dir whose names parse as
// non-negative integers, in name order.
func (sw *sweep) numericDirs(dir string) []numberedDir {
	entries, err := os.ReadDir(dir)
	if err != nil {
		sw.fail("list", dir, err)
		return nil
	}
	var out []numberedDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n < 0 {
			sw.s.logger.Debug("skipping non-bucket directory", "path", filepath.Join(dir, e.Name()))
			continue
		}
		out = append(out, numberedDir{n: n, path: filepath.Join(dir, e.Name())})
	}
	return out
}

// files lists regular entries of dir sorted by name.
func (sw *sweep) files(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		sw.fail("list", dir, err)
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out
}

func (sw *sweep) removeTree(root string) {
	var paths []string
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			sw.fail("walk", p, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if walkErr != nil {
		sw.fail("walk", root, walkErr)
	}
	// Reverse pre-order removes children before their parents.
	for i := len(paths) - 1; i >= 0; i-- {
		info, err := os.Lstat(paths[i])
		if err != nil {
			sw.fail("stat", paths[i], err)
			continue
		}
		if info.IsDir() {
			sw.removeDir(paths[i])
		} else {
			sw.removeFile(paths[i])
		}
	}
	sw.s.logger.Info("deleted year tree", "path", root)
}

func (sw *sweep) removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		sw.fail("list", dir, err)
		return
	}
	if len(entries) == 0 {
		sw.removeDir(dir)
	}
}

func (sw *sweep) removeFile(p string) {
	if err := os.Remove(p); err != nil {
		sw.fail("remove", p, err)
		return
	}
	sw.report.FilesDeleted++
	sw.s.metrics.SweepDeletions.WithLabelValues("file").Inc()
}

func (sw *sweep) removeDir(p string) {
	if err := os.Remove(p); err != nil {
		sw.fail("rmdir", p, err)
		return
	}
	sw.report.DirsDeleted++
	sw.s.metrics.SweepDeletions.WithLabelValues("dir").Inc()
}

func (sw *sweep) fail(op, p string, err error) {
	sw.s.logger.Error("retention sweep", "op", op, "path", p, "error", err)
	sw.s.metrics.SweepErrors.Inc()
	sw.errs = multierror.Append(sw.errs, fmt.Errorf("%s %s: %w", op, p, err))
}

func (sw *sweep) errCount() int {
	if sw.errs == nil {
		return 0
	}
	return len(sw.errs.Errors)
}
