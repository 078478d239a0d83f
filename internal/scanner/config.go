package scanner

import (
	"fmt"
	"strings"
)

// DefaultMaxFileSize is the size above which files are skipped.
const DefaultMaxFileSize int64 = 1 << 20

// ProgressStyle selects how a scan reports progress.
type ProgressStyle int

const (
	Silent ProgressStyle = iota
	Dots
	Bar
	Verbose
)

func (p ProgressStyle) String() string {
	switch p {
	case Dots:
		return "dots"
	case Bar:
		return "bar"
	case Verbose:
		return "verbose"
	default:
		return "silent"
	}
}

// ParseProgressStyle accepts the names returned by String.
func ParseProgressStyle(s string) (ProgressStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "silent":
		return Silent, nil
	case "dots":
		return Dots, nil
	case "bar":
		return Bar, nil
	case "verbose":
		return Verbose, nil
	}
	return Silent, fmt.Errorf("unknown progress style %q", s)
}

// Config controls file discovery and the worker pool.
type Config struct {
	FollowSymlinks     bool
	UseGitignore       bool
	UseGlobalGitignore bool
	IncludeHidden      bool

	// MaxDepth caps directory recursion; 1 means only files directly under
	// a root. Zero is unlimited.
	MaxDepth int

	// Extensions whitelists file extensions, with or without the dot.
	// Empty means every registered language.
	Extensions []string

	// ExcludePatterns are doublestar globs matched against root-relative
	// slash paths and against base names.
	ExcludePatterns []string

	// Incremental skips files whose content hash matches the hasher.
	Incremental bool

	// Threads bounds concurrent file pipelines. Zero is one per core.
	Threads int

	Progress ProgressStyle

	// MaxFileSize skips larger files. Zero is unlimited.
	MaxFileSize int64

	// BaseDir, when set, keys explicit file arguments relative to it so
	// they match the paths a directory scan of BaseDir produces.
	BaseDir string
}

// DefaultConfig honors ignore files and caps files at DefaultMaxFileSize.
func DefaultConfig() Config {
	return Config{
		UseGitignore: true,
		MaxFileSize:  DefaultMaxFileSize,
	}
}
