package agentmap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/model"
)

// TestGoCorpus indexes each fixture under testdata/go and checks the
// declarations every level must surface.
func TestGoCorpus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level string
		want  []string
		calls map[string][]string
	}{
		{level: "level-02-structs-interfaces", want: []string{"Config", "Handler", "Server", "Handle", "Close", "NewServer"}},
		{level: "level-04-enums-iota", want: []string{"Color", "LogLevel", "String"}},
		{level: "level-05-embedding", want: []string{"Reader", "Writer", "ReadWriter", "MyReader", "MyReadWriter", "Read", "Write"}},
		{level: "level-06-generics", want: []string{"Pair", "NewPair", "Map"}},
		{level: "level-07-closures-higher-order", want: []string{"Apply", "Adder", "main"}},
		{level: "level-08-multi-file-interfaces", want: []string{"Dog", "Animal", "Mover", "NewDog", "Sound", "Move"}},
		{level: "level-09-scope-leak-intrafile", want: []string{"Response", "HandleA", "HandleB"}},
		{
			level: "level-11-method-value-dispatch",
			want:  []string{"Counter", "Logger", "UseCounter", "UseLogger", "Increment", "SetPrefix"},
			calls: map[string][]string{"main.go": {"Increment", "Value", "SetPrefix", "Info"}},
		},
		{level: "level-12-type-assertion-flow", want: []string{"Circle", "Square", "Area", "TypeAssert", "TypeSwitch"}},
		{level: "level-15-variadic-multiple-returns", want: []string{"Sum", "Divide", "Swap"}},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()
			e := newTestEngine(t, "")
			ctx := context.Background()

			scan, err := e.AnalyzeDirectory(ctx, filepath.Join("testdata", "go", tt.level, "src"))
			require.NoError(t, err)
			require.Empty(t, scan.Errors)
			require.NotEmpty(t, scan.Analyses)
			_, err = e.Resolve(ctx)
			require.NoError(t, err)

			var names []string
			for _, a := range e.Analyses() {
				for _, s := range a.Symbols {
					names = append(names, s.Name)
				}
			}
			assert.Subset(t, names, tt.want)

			for file, callees := range tt.calls {
				a := analysisFor(t, e.Analyses(), file)
				assert.Subset(t, targetNames(a, model.RelCalls), callees)
			}
		})
	}
}
