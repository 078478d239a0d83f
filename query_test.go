package agentmap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolvedProject(t *testing.T) *QueryBuilder {
	t.Helper()
	root := writeTree(t, map[string]string{
		"models/user.py":  "class User:\n    pass\n",
		"models/admin.py": "from models.user import User\n\nclass Admin(User):\n    pass\n",
		"services/svc.py": "from models.user import User\n\ndef make():\n    return User()\n\ndef run():\n    make()\n",
	})
	e := newTestEngine(t, "")
	ctx := context.Background()
	_, err := e.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	_, err = e.Resolve(ctx)
	require.NoError(t, err)
	return e.Query()
}

func TestQuery_Symbols(t *testing.T) {
	t.Parallel()
	q := newResolvedProject(t)

	users, err := q.SymbolsByName("User")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "models/user.py:1:User", users[0].ID)
	assert.Equal(t, "class", users[0].Kind)

	s, err := q.Symbol("models/user.py:1:User")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "models/user.py", s.Path)

	missing, err := q.Symbol("nowhere.py:1:Nothing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	inFile, err := q.SymbolsInFile("services/svc.py")
	require.NoError(t, err)
	var names []string
	for _, s := range inFile {
		names = append(names, s.Name)
	}
	assert.Subset(t, names, []string{"make", "run"})

	at, err := q.SymbolAt("services/svc.py", 4)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, "make", at.Name)
}

func TestQuery_CallGraph(t *testing.T) {
	t.Parallel()
	q := newResolvedProject(t)

	callers, err := q.Callers("models/user.py:1:User")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "services/svc.py:3:make", callers[0].From)
	assert.Equal(t, "services/svc.py", callers[0].Path)
	assert.Equal(t, "resolved", callers[0].Resolution)

	callees, err := q.Callees("services/svc.py:6:run")
	require.NoError(t, err)
	require.Len(t, callees, 1)
	assert.Equal(t, "services/svc.py:3:make", callees[0].To)

	refs, err := q.References("models/user.py:1:User")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(refs), 2)
}

func TestQuery_Implementations(t *testing.T) {
	t.Parallel()
	q := newResolvedProject(t)

	impls, err := q.Implementations("models/user.py:1:User")
	require.NoError(t, err)
	require.Len(t, impls, 1)
	assert.Equal(t, "Admin", impls[0].Name)
}

func TestQuery_FileDependencies(t *testing.T) {
	t.Parallel()
	q := newResolvedProject(t)

	deps, err := q.Dependencies("services/svc.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"models/user.py"}, deps)

	dependents, err := q.Dependents("models/user.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"models/admin.py", "services/svc.py"}, dependents)
}
