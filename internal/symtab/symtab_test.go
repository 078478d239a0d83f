package symtab

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
)

func sym(file string, line int, name, module string) model.Symbol {
	return model.Symbol{
		ID:            model.NewSymbolID(file, line, name),
		Name:          name,
		Kind:          model.KindFunction,
		Location:      model.SourceLocation{File: file, StartLine: line},
		QualifiedName: name,
		Module:        module,
	}
}

func analysis(path, module string, syms ...model.Symbol) *model.CodeAnalysis {
	return &model.CodeAnalysis{
		Path:     path,
		Language: lang.Python,
		Symbols:  syms,
		Metadata: model.Metadata{Properties: map[string]string{"module": module}},
	}
}

func TestTable_NameCollisionKeepsBoth(t *testing.T) {
	t.Parallel()
	tbl := New()
	tbl.Load(
		analysis("a/util.py", "a.util", sym("a/util.py", 3, "helper", "a.util")),
		analysis("b/util.py", "b.util", sym("b/util.py", 7, "helper", "b.util")),
	)

	assert.Equal(t, []model.SymbolID{"a/util.py:3:helper", "b/util.py:7:helper"}, tbl.ByName("helper"))

	id, ok := tbl.ByFQN("b.util::helper")
	require.True(t, ok)
	assert.Equal(t, model.SymbolID("b/util.py:7:helper"), id)
	id, ok = tbl.ByFQN("a.util::helper")
	require.True(t, ok)
	assert.Equal(t, model.SymbolID("a/util.py:3:helper"), id)
	assert.Equal(t, 2, tbl.Len())
}

func TestTable_FQNCollisionSmallestIDWins(t *testing.T) {
	t.Parallel()
	tbl := New()
	tbl.Insert(sym("m.py", 20, "run", "m"))
	tbl.Insert(sym("m.py", 10, "run", "m"))

	id, ok := tbl.ByFQN("m::run")
	require.True(t, ok)
	assert.Equal(t, model.SymbolID("m.py:10:run"), id)

	tbl.RemoveFile("m.py")
	_, ok = tbl.ByFQN("m::run")
	assert.False(t, ok)
}

func TestTable_RemoveFileHandsOverFQN(t *testing.T) {
	t.Parallel()
	tbl := New()
	tbl.Load(
		analysis("pkg/a.go", "pkg", sym("pkg/a.go", 1, "Run", "pkg")),
		analysis("pkg/b.go", "pkg", sym("pkg/b.go", 1, "Run", "pkg")),
	)

	tbl.RemoveFile("pkg/a.go")
	id, ok := tbl.ByFQN("pkg::Run")
	require.True(t, ok)
	assert.Equal(t, model.SymbolID("pkg/b.go:1:Run"), id)
	assert.Empty(t, tbl.ByFile("pkg/a.go"))
	assert.Equal(t, []string{"pkg/b.go"}, tbl.Files())
}

func TestTable_Indices(t *testing.T) {
	t.Parallel()
	tbl := New()
	tbl.Load(analysis("svc/users.py", "svc.users",
		sym("svc/users.py", 1, "load_user", "svc.users"),
		sym("svc/users.py", 9, "LoadUser", "svc.users"),
	))

	assert.Len(t, tbl.ByFile("svc/users.py"), 2)
	assert.Len(t, tbl.ByModule("svc.users"), 2)
	assert.Len(t, tbl.ByFolded(Fold("loadUser")), 2)
	assert.Equal(t, []string{"svc.users"}, tbl.Modules())

	info, ok := tbl.File("svc/users.py")
	require.True(t, ok)
	assert.Equal(t, "svc.users", info.Module)
	assert.Equal(t, lang.Python, info.Language)

	s, ok := tbl.Get("svc/users.py:9:LoadUser")
	require.True(t, ok)
	assert.Equal(t, "LoadUser", s.Name)
}

func TestTable_ReExports(t *testing.T) {
	t.Parallel()
	a := analysis("src/index.ts", "src")
	rel := model.Relationship{From: model.FileScope("src/index.ts"), To: "./user::User", Kind: model.RelReExports}
	rel.SetProperty(model.PropQualifier, "./user")
	rel.SetProperty(model.PropDisplayName, "Person")
	a.Relationships = append(a.Relationships, rel)

	tbl := New()
	tbl.Load(a)
	got := tbl.ReExports("src")
	require.Len(t, got, 1)
	assert.Equal(t, ReExport{File: "src/index.ts", Source: "./user", Name: "User", Alias: "Person"}, got[0])
	assert.Equal(t, "Person", got[0].Local())
}

func TestTable_ConcurrentReads(t *testing.T) {
	t.Parallel()
	tbl := New()
	for i := 0; i < 50; i++ {
		file := fmt.Sprintf("f%d.py", i)
		tbl.Load(analysis(file, fmt.Sprintf("f%d", i), sym(file, 1, "shared", fmt.Sprintf("f%d", i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, tbl.ByName("shared"), 50)
		}()
	}
	wg.Wait()
}
