package scanner

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/lang"
)

var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
}

// candidate is one discovered file. Rel is the slash path analyses are
// keyed by: relative to the directory root it was found under, or for
// explicit files relative to Config.BaseDir (else the cleaned argument).
type candidate struct {
	Abs      string
	Rel      string
	Language lang.Language
	Size     int64
	Err      error
}

// Discover lists the root-relative paths a scan of paths would visit, in
// sorted order.
func Discover(cfg Config, paths ...string) ([]string, error) {
	cands, err := discover(cfg, paths)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		if c.Err == nil {
			out = append(out, c.Rel)
		}
	}
	return out, nil
}

// discover returns candidates sorted by Rel. Explicit file arguments with an
// unsupported extension come back with Err set instead of being dropped.
func discover(cfg Config, paths []string) ([]candidate, error) {
	for _, p := range cfg.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errs.Newf(errs.Config, "", "invalid exclude pattern %q", p)
		}
	}
	exts := extensionSet(cfg.Extensions)

	seen := make(map[string]bool)
	var out []candidate
	add := func(c candidate) {
		if seen[c.Rel] {
			return
		}
		seen[c.Rel] = true
		out = append(out, c)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, errs.New(errs.Io, root, "stat", err)
		}
		if !info.IsDir() {
			rel := fileRel(cfg.BaseDir, root)
			l, lerr := lang.ForPath(root)
			if lerr != nil {
				add(candidate{Abs: root, Rel: rel, Err: errs.New(errs.UnsupportedLanguage, rel, "discover", lerr)})
				continue
			}
			add(candidate{Abs: root, Rel: rel, Language: l, Size: info.Size()})
			continue
		}

		w := &walker{
			cfg:     cfg,
			exts:    exts,
			ignore:  loadIgnore(root, cfg),
			visited: make(map[string]bool),
			emit:    add,
		}
		if err := w.walk(root, "", 0); err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out, nil
}

// fileRel keys an explicit file argument: relative to base when the file
// lies under it, otherwise the cleaned argument.
func fileRel(base, file string) string {
	if base != "" {
		absBase, err1 := filepath.Abs(base)
		absFile, err2 := filepath.Abs(file)
		if err1 == nil && err2 == nil {
			if rel, err := filepath.Rel(absBase, absFile); err == nil && !strings.HasPrefix(rel, "..") {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.ToSlash(filepath.Clean(file))
}

type walker struct {
	cfg     Config
	exts    map[string]bool
	ignore  *ignore.GitIgnore
	visited map[string]bool
	emit    func(candidate)
}

// walk lists dir, whose root-relative slash path is rel, at the given depth.
func (w *walker) walk(dir, rel string, depth int) error {
	// Only directories on the current path count, so a symlink loop stops
	// while two links to the same directory are both listed.
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		if w.visited[real] {
			return nil
		}
		w.visited[real] = true
		defer delete(w.visited, real)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errs.New(errs.Io, dir, "read dir", err)
	}
	for _, e := range entries {
		name := e.Name()
		abs := filepath.Join(dir, name)
		childRel := path.Join(rel, name)

		if !w.cfg.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		typ := e.Type()
		isDir := e.IsDir()
		if typ&fs.ModeSymlink != 0 {
			if !w.cfg.FollowSymlinks {
				continue
			}
			target, err := os.Stat(abs)
			if err != nil {
				continue
			}
			isDir = target.IsDir()
		}

		if isDir {
			if skipDirs[name] || w.excluded(childRel, name, true) {
				continue
			}
			if w.cfg.MaxDepth > 0 && depth+1 >= w.cfg.MaxDepth {
				continue
			}
			if err := w.walk(abs, childRel, depth+1); err != nil {
				return err
			}
			continue
		}

		if w.excluded(childRel, name, false) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		l, ok := lang.ForExtension(ext)
		if !ok {
			continue
		}
		if len(w.exts) > 0 && !w.exts[ext] {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		w.emit(candidate{Abs: abs, Rel: childRel, Language: l, Size: info.Size()})
	}
	return nil
}

func (w *walker) excluded(rel, name string, dir bool) bool {
	for _, p := range w.cfg.ExcludePatterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	if w.ignore == nil {
		return false
	}
	if dir && w.ignore.MatchesPath(rel+"/") {
		return true
	}
	return w.ignore.MatchesPath(rel)
}

// loadIgnore combines the root .gitignore, .git/info/exclude and, when
// enabled, the user's global excludes file.
func loadIgnore(root string, cfg Config) *ignore.GitIgnore {
	var files []string
	if cfg.UseGitignore {
		files = append(files,
			filepath.Join(root, ".gitignore"),
			filepath.Join(root, ".git", "info", "exclude"),
		)
	}
	if cfg.UseGlobalGitignore {
		if p := globalIgnoreFile(); p != "" {
			files = append(files, p)
		}
	}

	var lines []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

// globalIgnoreFile returns git's default global excludes path.
func globalIgnoreFile() string {
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		return filepath.Join(x, "git", "ignore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "git", "ignore")
}

func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
