package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/queries"
	"github.com/jward/agentmap/internal/syntax"
)

func analyze(t *testing.T, path, src string) *model.CodeAnalysis {
	t.Helper()
	l, err := lang.ForPath(path)
	require.NoError(t, err)
	eng := syntax.NewEngine()
	t.Cleanup(eng.Close)
	pf, err := eng.Parse(context.Background(), path, []byte(src), l)
	require.NoError(t, err)
	t.Cleanup(pf.Close)
	a, err := New(queries.NewRegistry(queries.Embedded(), 0)).Analyze(pf)
	require.NoError(t, err)
	return a
}

func symbolNamed(t *testing.T, a *model.CodeAnalysis, name string) model.Symbol {
	t.Helper()
	for _, s := range a.Symbols {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "symbol not found", "%s in %s", name, a.Path)
	return model.Symbol{}
}

func targets(a *model.CodeAnalysis, kind model.RelationshipKind) []string {
	var out []string
	for _, r := range a.Relationships {
		if r.Kind == kind {
			out = append(out, string(r.To))
		}
	}
	return out
}

func hasEdge(a *model.CodeAnalysis, from, to model.SymbolID, kind model.RelationshipKind) bool {
	for _, r := range a.Relationships {
		if r.From == from && r.To == to && r.Kind == kind {
			return true
		}
	}
	return false
}

func TestAnalyze_RustCalls(t *testing.T) {
	t.Parallel()
	a := analyze(t, "src/main.rs", `fn main() {
    let data = process_data(5);
    handle_result(data);
}

fn process_data(x: i32) -> i32 {
    calculate_value(x) * 2
}

fn calculate_value(x: i32) -> i32 {
    x + 1
}

fn handle_result(r: i32) {
    println!("{}", r);
}
`)

	assert.ElementsMatch(t, []string{"process_data", "handle_result", "calculate_value"}, targets(a, model.RelCalls))
	assert.Len(t, a.Symbols, 4)
	main := symbolNamed(t, a, "main")
	assert.Equal(t, model.SymbolID("src/main.rs:1:main"), main.ID)
	assert.True(t, hasEdge(a, main.ID, "process_data", model.RelCalls))
	assert.Equal(t, model.Private, main.Visibility)
}

func TestAnalyze_RustImplAndTrait(t *testing.T) {
	t.Parallel()
	a := analyze(t, "src/shapes.rs", `/// A point.
pub struct Point { x: i32 }

impl Shape for Point {
    fn area(&self) -> i32 { self.x }
}

use crate::geo::{Shape, Circle as C};
pub use crate::util::*;
`)

	point := symbolNamed(t, a, "Point")
	assert.Equal(t, model.KindStruct, point.Kind)
	assert.Equal(t, model.Public, point.Visibility)
	assert.Equal(t, "A point.", point.Documentation)
	assert.Equal(t, "shapes::Point", point.FQN())

	area := symbolNamed(t, a, "area")
	assert.Equal(t, model.KindMethod, area.Kind)
	assert.Equal(t, "Point::area", area.QualifiedName)
	assert.True(t, hasEdge(a, point.ID, area.ID, model.RelHasMethod))
	assert.True(t, hasEdge(a, point.ID, "Shape", model.RelImplements))

	file := model.FileScope("src/shapes.rs")
	assert.True(t, hasEdge(a, file, "crate::geo::Shape", model.RelImports))
	assert.True(t, hasEdge(a, file, "crate::geo::Circle", model.RelImports))
	assert.True(t, hasEdge(a, file, "crate::util::*", model.RelReExports))
	require.Len(t, a.Imports, 3)
	assert.Equal(t, "C", a.Imports[1].Names[0].Alias)
}

func TestAnalyze_PythonClassAndUses(t *testing.T) {
	t.Parallel()
	a := analyze(t, "person.py", `class Person:
    def __init__(self, name):
        self.name = name

def greet(p):
    return p.name
`)

	person := symbolNamed(t, a, "Person")
	assert.Equal(t, model.KindClass, person.Kind)
	assert.Equal(t, model.Public, person.Visibility)

	init := symbolNamed(t, a, "__init__")
	assert.Equal(t, model.KindConstructor, init.Kind)
	assert.True(t, hasEdge(a, person.ID, init.ID, model.RelHasMethod))

	uses := targets(a, model.RelUses)
	assert.Contains(t, uses, "p.name")
	assert.NotContains(t, uses, "self.name")
}

func TestAnalyze_PythonImports(t *testing.T) {
	t.Parallel()
	a := analyze(t, "app/main.py", `import os.path
from models.user import User as U, load
from .helpers import *

def run(a):
    """Run the app."""
    U()
    os.path.join(a, "x")
    load()
`)

	require.Len(t, a.Imports, 3)
	assert.Equal(t, "os.path", a.Imports[0].Source)
	assert.Equal(t, "models.user", a.Imports[1].Source)
	assert.Equal(t, "U", a.Imports[1].Names[0].Local())
	assert.True(t, a.Imports[2].Wildcard)

	calls := targets(a, model.RelCalls)
	assert.ElementsMatch(t, []string{"U", "os.path.join", "load"}, calls)
	assert.Equal(t, "Run the app.", symbolNamed(t, a, "run").Documentation)
	assert.Equal(t, "app.main", a.Metadata.Properties["module"])
}

func TestAnalyze_PythonVisibility(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want model.Visibility
	}{
		{name: "public_fn", want: model.Public},
		{name: "_protected_fn", want: model.Protected},
		{name: "__private_fn", want: model.Private},
		{name: "__dunder__", want: model.Public},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := analyze(t, "v.py", fmt.Sprintf("def %s():\n    pass\n", tt.name))
			assert.Equal(t, tt.want, symbolNamed(t, a, tt.name).Visibility)
		})
	}
}

func TestAnalyze_TypeScriptVisibility(t *testing.T) {
	t.Parallel()
	a := analyze(t, "src/mod.ts", `export function foo() {
  return bar();
}

function bar() {
  return 1;
}
`)

	assert.Equal(t, model.Public, symbolNamed(t, a, "foo").Visibility)
	assert.Equal(t, model.Private, symbolNamed(t, a, "bar").Visibility)
	assert.Equal(t, []string{"bar"}, targets(a, model.RelCalls))
}

func TestAnalyze_TypeScriptClass(t *testing.T) {
	t.Parallel()
	a := analyze(t, "src/widget.ts", `import Default, { a as b } from './lib';
import * as ns from './ns';

/** A widget. */
export class Widget extends Base implements Props {
  private secret() {}
  render() {
    ns.draw();
    b();
    new Panel();
  }
}

function make() {}
export default make;
`)

	widget := symbolNamed(t, a, "Widget")
	assert.Equal(t, model.Public, widget.Visibility)
	assert.Equal(t, "A widget.", widget.Documentation)
	assert.True(t, hasEdge(a, widget.ID, "Base", model.RelInherits))
	assert.True(t, hasEdge(a, widget.ID, "Props", model.RelImplements))

	secret := symbolNamed(t, a, "secret")
	assert.Equal(t, model.Private, secret.Visibility)
	render := symbolNamed(t, a, "render")
	assert.Equal(t, model.Public, render.Visibility)
	assert.Equal(t, "Widget::render", render.QualifiedName)
	assert.True(t, hasEdge(a, widget.ID, render.ID, model.RelHasMethod))

	assert.True(t, hasEdge(a, render.ID, "ns.draw", model.RelCalls))
	assert.True(t, hasEdge(a, render.ID, "b", model.RelCalls))
	assert.True(t, hasEdge(a, render.ID, "Panel", model.RelInstantiates))

	assert.Equal(t, "default", symbolNamed(t, a, "make").Properties["export"])

	require.Len(t, a.Imports, 2)
	assert.Equal(t, "./lib", a.Imports[0].Source)
	assert.Equal(t, []model.ImportedName{{Name: "default", Alias: "Default"}, {Name: "a", Alias: "b"}}, a.Imports[0].Names)
	assert.Equal(t, "ns", a.Imports[1].ModuleAlias)
}

func TestAnalyze_JavaScriptRequire(t *testing.T) {
	t.Parallel()
	a := analyze(t, "lib/index.js", `const fs = require('fs');
const { join } = require('path');

export function load(p) {
  console.log(p);
  return fs.readFileSync(join(p));
}
`)

	require.Len(t, a.Imports, 2)
	assert.Equal(t, "fs", a.Imports[0].ModuleAlias)
	assert.Equal(t, "join", a.Imports[1].Names[0].Name)
	assert.ElementsMatch(t, []string{"fs.readFileSync", "join"}, targets(a, model.RelCalls))
	assert.Equal(t, model.Public, symbolNamed(t, a, "load").Visibility)
}

func TestAnalyze_Go(t *testing.T) {
	t.Parallel()
	a := analyze(t, "pkg/server/server.go", `package server

import (
	"fmt"

	yaml "gopkg.in/yaml.v3"
	"github.com/cespare/xxhash/v2"
)

// Server serves requests.
type Server struct {
	Base
	name string
}

func (s *Server) Start() error {
	fmt.Println(s.name)
	_ = xxhash.Sum64String(s.name)
	return yaml.Unmarshal(nil, nil)
}

func helper() *Server {
	return &Server{}
}
`)

	srv := symbolNamed(t, a, "Server")
	assert.Equal(t, model.KindStruct, srv.Kind)
	assert.Equal(t, model.Unspecified, srv.Visibility)
	assert.Equal(t, "true", srv.Properties["exported"])
	assert.Equal(t, "Server serves requests.", srv.Documentation)
	assert.True(t, hasEdge(a, srv.ID, "Base", model.RelInherits))

	start := symbolNamed(t, a, "Start")
	assert.Equal(t, model.KindMethod, start.Kind)
	assert.Equal(t, "Server::Start", start.QualifiedName)
	assert.Equal(t, "pkg/server", start.Module)
	assert.True(t, hasEdge(a, srv.ID, start.ID, model.RelHasMethod))

	assert.ElementsMatch(t, []string{"fmt.Println", "xxhash.Sum64String", "yaml.Unmarshal"}, targets(a, model.RelCalls))
	helper := symbolNamed(t, a, "helper")
	assert.Equal(t, "false", helper.Properties["exported"])
	assert.True(t, hasEdge(a, helper.ID, "Server", model.RelInstantiates))

	require.Len(t, a.Imports, 3)
	assert.Equal(t, "fmt", a.Imports[0].ModuleAlias)
	assert.Equal(t, "yaml", a.Imports[1].ModuleAlias)
	assert.Equal(t, "xxhash", a.Imports[2].ModuleAlias)
}

func TestGoPackageName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want string
	}{
		{path: "fmt", want: "fmt"},
		{path: "net/http", want: "http"},
		{path: "github.com/cespare/xxhash/v2", want: "xxhash"},
		{path: "gopkg.in/yaml.v3", want: "yaml"},
		{path: "github.com/sabhiram/go-gitignore", want: "go_gitignore"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, goPackageName(tt.path))
		})
	}
}

func TestAnalyze_Java(t *testing.T) {
	t.Parallel()
	a := analyze(t, "src/main/java/com/example/app/UserService.java", `package com.example.app;

import com.example.models.User;
import java.util.*;

/** Looks users up. */
public class UserService extends BaseService implements Runnable {
    private final Repo repo;

    public UserService() {}

    @Transactional
    User find(String id) {
        User u = new User(id);
        repo.save(u);
        System.out.println(id);
        return u;
    }
}
`)

	svc := symbolNamed(t, a, "UserService")
	require.Equal(t, model.KindClass, svc.Kind)
	assert.Equal(t, model.Public, svc.Visibility)
	assert.Equal(t, "Looks users up.", svc.Documentation)
	assert.Equal(t, "com.example.app", svc.Module)
	assert.Equal(t, "com.example.app::UserService", svc.FQN())
	assert.True(t, hasEdge(a, svc.ID, "BaseService", model.RelInherits))
	assert.True(t, hasEdge(a, svc.ID, "Runnable", model.RelImplements))

	find := symbolNamed(t, a, "find")
	assert.Equal(t, model.Internal, find.Visibility)
	assert.True(t, hasEdge(a, svc.ID, find.ID, model.RelHasMethod))
	assert.True(t, hasEdge(a, find.ID, "Transactional", model.RelDecoratedBy))
	assert.True(t, hasEdge(a, find.ID, "User", model.RelInstantiates))
	assert.True(t, hasEdge(a, find.ID, "save", model.RelCalls))

	var ctors []model.Symbol
	for _, s := range a.Symbols {
		if s.Kind == model.KindConstructor {
			ctors = append(ctors, s)
		}
	}
	require.Len(t, ctors, 1)

	file := model.FileScope(a.Path)
	assert.True(t, hasEdge(a, file, "com.example.models::User", model.RelImports))
	assert.True(t, hasEdge(a, file, "java.util::*", model.RelImports))
}

func TestAnalyze_Dart(t *testing.T) {
	t.Parallel()
	a := analyze(t, "lib/greeter.dart", `import 'package:app/models/user.dart' show User;

/// Greets people.
@immutable
class Greeter extends Base {
  void greet(User user) {
    print(user.name);
    helper();
  }
}
`)

	g := symbolNamed(t, a, "Greeter")
	assert.Equal(t, model.KindClass, g.Kind)
	assert.Equal(t, "Greets people.", g.Documentation)
	assert.True(t, hasEdge(a, g.ID, "Base", model.RelInherits))

	greet := symbolNamed(t, a, "greet")
	assert.Equal(t, model.KindMethod, greet.Kind)
	assert.True(t, hasEdge(a, g.ID, greet.ID, model.RelHasMethod))
	assert.True(t, hasEdge(a, greet.ID, "helper", model.RelCalls))
	assert.True(t, hasEdge(a, greet.ID, "user.name", model.RelUses))
	assert.NotContains(t, targets(a, model.RelCalls), "print")

	require.Len(t, a.Imports, 1)
	assert.Equal(t, "package:app/models/user.dart", a.Imports[0].Source)
	assert.Equal(t, "User", a.Imports[0].Names[0].Name)
}

func TestAnalyze_EmptyAndCommentOnly(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		path  string
		src   string
		lines int
	}{
		{name: "empty rust", path: "a.rs", src: "", lines: 0},
		{name: "empty python", path: "a.py", src: "", lines: 0},
		{name: "comment python", path: "b.py", src: "# just a comment\n", lines: 1},
		{name: "comment go", path: "c.go", src: "// nothing here\n", lines: 1},
		{name: "comment dart", path: "d.dart", src: "// nothing here\n", lines: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := analyze(t, tt.path, tt.src)
			assert.Empty(t, a.Symbols)
			assert.Empty(t, a.Relationships)
			assert.Equal(t, tt.lines, a.Metadata.LineCount)
		})
	}
}

func TestAnalyze_NameCollisions(t *testing.T) {
	t.Parallel()
	a := analyze(t, "c.py", `class A:
    def run(self):
        pass

class B:
    def run(self):
        pass

run()
`)

	var qualified []string
	for _, s := range a.Symbols {
		if s.Name == "run" {
			qualified = append(qualified, s.QualifiedName)
		}
	}
	assert.ElementsMatch(t, []string{"A::run", "B::run"}, qualified)

	for _, r := range a.Relationships {
		if r.Kind == model.RelCalls {
			assert.InDelta(t, model.AmbiguousConfidence, r.Confidence, 1e-9)
		}
	}
}

func TestAnalyze_DeepNesting(t *testing.T) {
	t.Parallel()
	const depth = 20
	var b strings.Builder
	for i := 0; i < depth; i++ {
		fmt.Fprintf(&b, "%sdef f%d():\n", strings.Repeat("    ", i), i)
	}
	fmt.Fprintf(&b, "%spass\n", strings.Repeat("    ", depth))

	a := analyze(t, "deep.py", b.String())
	require.Len(t, a.Symbols, depth)
	inner := symbolNamed(t, a, fmt.Sprintf("f%d", depth-1))
	assert.Len(t, strings.Split(inner.QualifiedName, "::"), depth)
}

func TestAnalyze_Deterministic(t *testing.T) {
	t.Parallel()
	src := `class Person:
    def __init__(self, name):
        self.name = name

def greet(p):
    print(p.name)
    return Person(p.name)
`
	first := analyze(t, "p.py", src)
	second := analyze(t, "p.py", src)
	first.Metadata.AnalysisTimeMs = 0
	second.Metadata.AnalysisTimeMs = 0
	assert.Equal(t, first, second)
}

func TestAnalyze_UnsupportedLanguage(t *testing.T) {
	t.Parallel()
	pf := &syntax.ParsedFile{Path: "x.cob", Language: lang.Language("cobol"), Content: []byte("x")}
	_, err := New(queries.NewRegistry(queries.Embedded(), 0)).Analyze(pf)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.UnsupportedLanguage))
}
