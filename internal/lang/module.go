package lang

import (
	"path"
	"strings"
)

// ModuleSeparator joins module path segments for l.
func ModuleSeparator(l Language) string {
	switch l {
	case Rust:
		return "::"
	case Go:
		return "/"
	default:
		return "."
	}
}

// ModulePath derives the module a file belongs to from its slash-separated
// project-relative path:
//
//	python      pkg/sub/mod.py       -> pkg.sub.mod    (__init__ dropped)
//	ts/js       src/a/index.ts       -> src.a          (index dropped)
//	go          internal/foo/x.go    -> internal/foo   (package directory)
//	rust        src/net/mod.rs       -> net            (src/, mod, lib, main dropped)
//	dart        lib/src/user.dart    -> src.user       (lib/ dropped)
//	java        com/acme/App.java    -> com.acme       (overridden by the package clause)
func ModulePath(l Language, file string) string {
	file = strings.TrimPrefix(path.Clean(strings.ReplaceAll(file, "\\", "/")), "./")
	dir, base := path.Split(file)
	dir = strings.TrimSuffix(dir, "/")
	stem := strings.TrimSuffix(base, path.Ext(base))

	var segs []string
	if dir != "" && dir != "." {
		segs = strings.Split(dir, "/")
	}

	switch l {
	case Go:
		return strings.Join(segs, "/")
	case Java:
		return strings.Join(segs, ".")
	case Python:
		if stem != "__init__" {
			segs = append(segs, stem)
		}
	case TypeScript, JavaScript:
		if stem != "index" {
			segs = append(segs, stem)
		}
	case Rust:
		if len(segs) > 0 && segs[0] == "src" {
			segs = segs[1:]
		}
		if stem != "mod" && stem != "lib" && stem != "main" {
			segs = append(segs, stem)
		}
	case Dart:
		if len(segs) > 0 && segs[0] == "lib" {
			segs = segs[1:]
		}
		if stem != "main" {
			segs = append(segs, stem)
		}
	default:
		segs = append(segs, stem)
	}
	return strings.Join(segs, ModuleSeparator(l))
}
