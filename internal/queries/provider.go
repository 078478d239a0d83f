// Package queries loads and compiles the per-language query packs: the
// definition, reference and import patterns the extractors run.
package queries

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/jward/agentmap/internal/lang"
)

//go:embed queries
var embedded embed.FS

// Kind names one of the three pattern sets of a pack.
type Kind string

const (
	Defs    Kind = "defs"
	Uses    Kind = "uses"
	Imports Kind = "imports"
)

// Kinds lists every pattern set in load order.
func Kinds() []Kind { return []Kind{Defs, Uses, Imports} }

// FileName returns the query file name for k.
func (k Kind) FileName() string { return string(k) + ".scm" }

// Provider supplies query source. Load reports ok=false when the provider
// has nothing for the language and kind, letting the next provider answer.
type Provider interface {
	Name() string
	Load(l lang.Language, k Kind) (src []byte, ok bool, err error)
}

// fsProvider reads "<lang>/<kind>.scm" from a filesystem.
type fsProvider struct {
	name string
	fsys fs.FS
}

// Embedded returns the provider for the patterns compiled into the binary.
func Embedded() Provider {
	sub, err := fs.Sub(embedded, "queries")
	if err != nil {
		panic(fmt.Sprintf("queries: embedded fs: %v", err))
	}
	return &fsProvider{name: "embedded", fsys: sub}
}

// FS returns a provider reading query files from fsys.
func FS(name string, fsys fs.FS) Provider {
	return &fsProvider{name: name, fsys: fsys}
}

func (p *fsProvider) Name() string { return p.name }

func (p *fsProvider) Load(l lang.Language, k Kind) ([]byte, bool, error) {
	data, err := fs.ReadFile(p.fsys, path.Join(string(l), k.FileName()))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("queries: %s: read %s/%s: %w", p.name, l, k.FileName(), err)
	}
	return data, true, nil
}

// Dir returns a provider for an override directory laid out like the
// embedded pack. A missing directory provides nothing.
func Dir(dir string) Provider {
	return &dirProvider{dir: dir}
}

type dirProvider struct {
	dir string
}

func (p *dirProvider) Name() string { return "dir:" + p.dir }

func (p *dirProvider) Load(l lang.Language, k Kind) ([]byte, bool, error) {
	if p.dir == "" {
		return nil, false, nil
	}
	if info, err := os.Stat(p.dir); err != nil || !info.IsDir() {
		return nil, false, nil
	}
	data, err := os.ReadFile(filepath.Join(p.dir, string(l), k.FileName()))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("queries: read override %s: %w", p.dir, err)
	}
	return data, true, nil
}

// Chain asks each provider in order and returns the first answer.
type Chain []Provider

func (c Chain) Name() string {
	name := "chain("
	for i, p := range c {
		if i > 0 {
			name += ","
		}
		name += p.Name()
	}
	return name + ")"
}

func (c Chain) Load(l lang.Language, k Kind) ([]byte, bool, error) {
	for _, p := range c {
		src, ok, err := p.Load(l, k)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return src, true, nil
		}
	}
	return nil, false, nil
}

// DefaultProvider resolves overrides from dir first, then the embedded pack.
func DefaultProvider(dir string) Provider {
	if dir == "" {
		return Embedded()
	}
	return Chain{Dir(dir), Embedded()}
}
