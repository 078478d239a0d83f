package agentmap

import (
	"github.com/jward/agentmap/internal/linker"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/scanner"
	"github.com/jward/agentmap/internal/store"
)

// Public type aliases for the internal types used by the Engine and
// QueryBuilder API. They are identical to the internal types, so no
// conversion is needed.

type CodeAnalysis = model.CodeAnalysis
type Symbol = model.Symbol
type SymbolID = model.SymbolID
type Relationship = model.Relationship
type Import = model.Import

type ScanResult = scanner.Result
type FileError = scanner.FileError

type ProjectResolution = linker.ProjectResolution
type Reference = linker.Reference
type Policy = linker.Policy

// Unresolved-reference policies.
const (
	Keep   = linker.Keep
	Remove = linker.Remove
	Flag   = linker.Flag
)

type Store = store.Store
type StoredSymbol = store.SymbolRow
type Edge = store.Edge
type File = store.File
