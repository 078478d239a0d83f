package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModulePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lang Language
		path string
		want string
	}{
		{Python, "models/user.py", "models.user"},
		{Python, "models/__init__.py", "models"},
		{Python, "main.py", "main"},
		{TypeScript, "src/models/index.ts", "src.models"},
		{TypeScript, "./src/app.tsx", "src.app"},
		{JavaScript, "lib/util.js", "lib.util"},
		{Go, "internal/store/store.go", "internal/store"},
		{Go, "main.go", ""},
		{Rust, "src/net/mod.rs", "net"},
		{Rust, "src/net/tcp.rs", "net::tcp"},
		{Rust, "src/lib.rs", ""},
		{Rust, "test.rs", "test"},
		{Dart, "lib/src/user.dart", "src.user"},
		{Java, "com/acme/App.java", "com.acme"},
		{Python, `pkg\mod.py`, "pkg.mod"},
	}
	for _, tt := range tests {
		t.Run(string(tt.lang)+"/"+tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ModulePath(tt.lang, tt.path))
		})
	}
}
