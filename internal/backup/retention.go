package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SnapshotInfo holds metadata for listing and retention decisions.
type SnapshotInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Records   int       `json:"records"`
	// Valid is false when the header could not be parsed.
	Valid bool `json:"valid"`
}

// RetentionPolicy decides which snapshots to keep.
type RetentionPolicy interface {
	Apply(snapshots []SnapshotInfo) (keep []SnapshotInfo)
}

// CountPolicy keeps the N most recent snapshots.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount snapshots (assumed sorted newest-first).
func (p *CountPolicy) Apply(snapshots []SnapshotInfo) []SnapshotInfo {
	if len(snapshots) <= p.MaxCount {
		return snapshots
	}
	return snapshots[:p.MaxCount]
}

// AgePolicy keeps snapshots newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Apply keeps snapshots whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(snapshots []SnapshotInfo) []SnapshotInfo {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []SnapshotInfo
	for _, s := range snapshots {
		if s.CreatedAt.After(cutoff) {
			keep = append(keep, s)
		}
	}
	return keep
}

// SizePolicy keeps snapshots until their total size exceeds MaxTotalBytes.
// The newest snapshot is always kept.
type SizePolicy struct {
	MaxTotalBytes int64
}

// Apply keeps snapshots (newest-first) until adding the next would exceed the limit.
func (p *SizePolicy) Apply(snapshots []SnapshotInfo) []SnapshotInfo {
	var keep []SnapshotInfo
	var total int64
	for _, s := range snapshots {
		if total+s.Size > p.MaxTotalBytes && len(keep) > 0 {
			break
		}
		keep = append(keep, s)
		total += s.Size
	}
	return keep
}

// CompositePolicy keeps a snapshot only if EVERY sub-policy keeps it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the intersection of snapshots kept by the sub-policies.
func (p *CompositePolicy) Apply(snapshots []SnapshotInfo) []SnapshotInfo {
	votes := make(map[string]int)
	for _, policy := range p.Policies {
		for _, s := range policy.Apply(snapshots) {
			votes[s.Path]++
		}
	}

	var result []SnapshotInfo
	for _, s := range snapshots {
		if votes[s.Path] == len(p.Policies) {
			result = append(result, s)
		}
	}
	return result
}

// NewPolicy builds a retention policy from configuration values. Unset
// limits are skipped; nil means keep everything.
func NewPolicy(maxCount int, maxAge, maxTotalSize string) (RetentionPolicy, error) {
	var policies []RetentionPolicy
	if maxCount > 0 {
		policies = append(policies, &CountPolicy{MaxCount: maxCount})
	}
	if maxAge != "" {
		d, err := ParseDuration(maxAge)
		if err != nil {
			return nil, fmt.Errorf("backup.max_age: %w", err)
		}
		policies = append(policies, &AgePolicy{MaxAge: d})
	}
	if maxTotalSize != "" {
		n, err := ParseSize(maxTotalSize)
		if err != nil {
			return nil, fmt.Errorf("backup.max_total_size: %w", err)
		}
		policies = append(policies, &SizePolicy{MaxTotalBytes: n})
	}

	switch len(policies) {
	case 0:
		return nil, nil
	case 1:
		return policies[0], nil
	default:
		return &CompositePolicy{Policies: policies}, nil
	}
}

// List scans dir for snapshot files and returns them sorted newest-first.
// A missing directory yields no snapshots.
func List(dir string) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var snapshots []SnapshotInfo
	for _, e := range entries {
		if e.IsDir() || !isSnapshotFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		si := SnapshotInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if header, err := ReadHeader(si.Path); err == nil {
			si.CreatedAt = header.CreatedAt
			si.Records = header.Records
			si.Valid = true
		}
		snapshots = append(snapshots, si)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		a, b := snapshots[i], snapshots[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return filepath.Base(a.Path) > filepath.Base(b.Path)
	})
	return snapshots, nil
}

// ApplyRetention deletes snapshots in dir not kept by policy.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	if policy == nil {
		return nil, nil
	}
	snapshots, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, s := range policy.Apply(snapshots) {
		keep[s.Path] = true
	}

	for _, s := range snapshots {
		if keep[s.Path] {
			continue
		}
		if err := os.Remove(s.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(s.Path), err)
		}
		deleted = append(deleted, s.Path)
	}
	return deleted, nil
}

// ParseDuration parses duration strings like "30d", "2w", "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}

// ParseSize parses size strings like "100MB", "1GB", "500KB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longer suffixes first so "MB" is not read as "B".
	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}
	for _, ss := range suffixes {
		if !strings.HasSuffix(s, ss.suffix) {
			continue
		}
		num, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(s, ss.suffix)), 10, 64)
		if err != nil || num < 0 {
			return 0, fmt.Errorf("invalid size: %q", s)
		}
		return num * ss.multiplier, nil
	}
	return 0, fmt.Errorf("invalid size: %q (expected suffix: B, KB, MB, GB)", s)
}
