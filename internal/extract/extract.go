// Package extract turns a parsed file into a CodeAnalysis: the symbols it
// declares, the relationships among them and the imports it pulls in.
//
// Definitions come from the language's query pack, with a per-language
// node-kind walker as fallback. A single pre-order traversal then attributes
// calls, member uses, type references, heritage and decorators to the
// innermost enclosing declaration while a scope tracker builds qualified
// names.
package extract

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/hasher"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/queries"
	"github.com/jward/agentmap/internal/scope"
	"github.com/jward/agentmap/internal/syntax"
)

// Extractor produces CodeAnalysis records. It is safe for concurrent use.
type Extractor struct {
	queries *queries.Registry
	logger  *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for extraction diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an extractor over the given query registry.
func New(reg *queries.Registry, opts ...Option) *Extractor {
	e := &Extractor{
		queries: reg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze extracts symbols, relationships and imports from pf. Query pack
// failures are returned as Query errors; a violated traversal invariant is
// reported as an Analysis error for the file.
func (e *Extractor) Analyze(pf *syntax.ParsedFile) (analysis *model.CodeAnalysis, err error) {
	start := time.Now()
	r, ok := rulesFor(pf.Language)
	if !ok {
		return nil, errs.New(errs.UnsupportedLanguage, pf.Path, "extract", fmt.Errorf("no extraction rules for %q", pf.Language))
	}
	pack, err := e.queries.Pack(pf.Language, pf.Path)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			analysis = nil
			err = errs.New(errs.Analysis, pf.Path, "extract", fmt.Errorf("panic: %v", rec))
		}
	}()

	w := newWalker(pf, r, pack)
	if err := w.run(); err != nil {
		return nil, err
	}

	a := w.analysis
	a.Metadata.AnalysisTimeMs = time.Since(start).Milliseconds()
	e.logger.Debug("extracted file",
		"path", pf.Path,
		"symbols", len(a.Symbols),
		"relationships", len(a.Relationships),
		"imports", len(a.Imports),
	)
	return a, nil
}

type spanKey struct {
	kind       string
	start, end int
}

func keyOf(n syntax.Node) spanKey {
	return spanKey{kind: n.Kind(), start: n.StartByte(), end: n.EndByte()}
}

// def is a definition found by the query pack or the fallback walker.
type def struct {
	node syntax.Node
	name syntax.Node
	kind model.SymbolKind
}

// owner is a declaration relationships are attributed to.
type owner struct {
	key  spanKey
	id   model.SymbolID
	kind model.SymbolKind
}

type walker struct {
	pf      *syntax.ParsedFile
	src     []byte
	path    string
	rules   *rules
	pack    *queries.Pack
	tracker *scope.Tracker
	module  string

	defs       map[spanKey]def
	refs       map[spanKey]bool
	importKeys map[spanKey]bool
	handled    map[spanKey]bool
	frames     []spanKey
	owners     []owner

	nameCounts  map[string]int
	localTypes  map[string]model.SymbolID
	importNames map[string]bool
	seen        map[string]bool

	analysis *model.CodeAnalysis
}

func newWalker(pf *syntax.ParsedFile, r *rules, pack *queries.Pack) *walker {
	lines := model.LineCount(pf.Content)
	w := &walker{
		pf:          pf,
		src:         pf.Content,
		path:        pf.Path,
		rules:       r,
		pack:        pack,
		tracker:     scope.NewTracker(pf.Path, lines),
		defs:        make(map[spanKey]def),
		refs:        make(map[spanKey]bool),
		importKeys:  make(map[spanKey]bool),
		handled:     make(map[spanKey]bool),
		nameCounts:  make(map[string]int),
		localTypes:  make(map[string]model.SymbolID),
		importNames: make(map[string]bool),
		seen:        make(map[string]bool),
	}
	if r.module != nil {
		w.module = r.module(pf.Path, pf.Root, pf.Content)
	} else {
		w.module = lang.ModulePath(pf.Language, pf.Path)
	}
	w.analysis = &model.CodeAnalysis{
		Path:          pf.Path,
		Language:      pf.Language,
		Symbols:       []model.Symbol{},
		Relationships: []model.Relationship{},
		Imports:       []model.Import{},
		Metadata: model.Metadata{
			LineCount:   lines,
			ContentHash: hasher.Hash(pf.Content),
			Properties: map[string]string{
				"module":  w.module,
				"grammar": pf.GrammarKey(),
			},
		},
	}
	return w
}

func (w *walker) run() error {
	if w.pf.Root == nil {
		return errs.New(errs.Analysis, w.path, "extract", fmt.Errorf("parsed file has no tree"))
	}
	w.collectDefs()
	w.collectRefs()
	w.collectImports()

	syntax.Walk(w.pf.Root, w.enter, w.leave)

	if w.tracker.Depth() != 1 {
		return errs.New(errs.Analysis, w.path, "extract", fmt.Errorf("scope stack not unwound: depth %d", w.tracker.Depth()))
	}
	if w.rules.postProcess != nil {
		w.rules.postProcess(w)
	}
	return nil
}

// defKinds maps query capture names to symbol kinds.
var defKinds = map[string]model.SymbolKind{
	"def.fn":          model.KindFunction,
	"def.method":      model.KindMethod,
	"def.constructor": model.KindConstructor,
	"def.struct":      model.KindStruct,
	"def.enum":        model.KindEnum,
	"def.trait":       model.KindTrait,
	"def.module":      model.KindModule,
	"def.namespace":   model.KindNamespace,
	"def.const":       model.KindConstant,
	"def.static":      model.KindVariable,
	"def.type_alias":  model.KindTypeAlias,
	"def.macro":       model.KindMacro,
	"def.class":       model.KindClass,
	"def.interface":   model.KindInterface,
	"class_name":      model.KindClass,
	"func_name":       model.KindFunction,
}

func (w *walker) addDef(d def) {
	if d.node == nil || d.name == nil {
		return
	}
	k := keyOf(d.node)
	if prev, ok := w.defs[k]; ok && prev.kind != model.KindTypeAlias {
		return
	}
	w.defs[k] = d
}

func (w *walker) collectDefs() {
	for _, m := range w.pack.Run(queries.Defs, w.pf.Root, w.src) {
		var d def
		for _, c := range m.Captures {
			switch {
			case c.Name == "name":
				d.name = c.Node
			case c.Name == "class_name" || c.Name == "func_name":
				d.name = c.Node
				d.node = c.Node.Parent()
				d.kind = defKinds[c.Name]
			default:
				if kind, ok := defKinds[c.Name]; ok {
					d.node = c.Node
					d.kind = kind
				}
			}
		}
		w.addDef(d)
	}
	if len(w.defs) == 0 {
		w.collectFallbackDefs()
	}

	for _, d := range w.defs {
		name := syntax.Text(d.name, w.src)
		w.nameCounts[name]++
		if d.kind.IsType() || d.kind == model.KindTypeAlias {
			id := model.NewSymbolID(w.path, d.node.StartPoint().Row+1, name)
			if prev, ok := w.localTypes[name]; !ok || id < prev {
				w.localTypes[name] = id
			}
		}
	}
}

// collectFallbackDefs walks the tree for definition node kinds.
func (w *walker) collectFallbackDefs() {
	if len(w.rules.fallback) == 0 {
		return
	}
	syntax.Walk(w.pf.Root, func(n syntax.Node) bool {
		kind, ok := w.rules.fallback[n.Kind()]
		if !ok {
			return true
		}
		var name syntax.Node
		if w.rules.defName != nil {
			name = w.rules.defName(n)
		} else {
			name = n.ChildByField("name")
		}
		if name != nil && syntax.Text(name, w.src) != "" {
			w.addDef(def{node: n, name: name, kind: kind})
		}
		return true
	}, nil)
}

func (w *walker) collectRefs() {
	if w.pack.Has(queries.Uses) {
		for _, m := range w.pack.Run(queries.Uses, w.pf.Root, w.src) {
			for _, c := range m.Captures {
				if strings.HasPrefix(c.Name, "ref") {
					w.refs[keyOf(c.Node)] = true
				}
			}
		}
		return
	}
	if len(w.rules.refKinds) == 0 {
		return
	}
	syntax.Walk(w.pf.Root, func(n syntax.Node) bool {
		if w.rules.refKinds[n.Kind()] {
			w.refs[keyOf(n)] = true
		}
		return true
	}, nil)
}

func (w *walker) collectImports() {
	var nodes []syntax.Node
	if w.pack.Has(queries.Imports) {
		for _, m := range w.pack.Run(queries.Imports, w.pf.Root, w.src) {
			if n, ok := m.Get("import"); ok {
				nodes = append(nodes, n)
			}
		}
	} else if len(w.rules.importKinds) > 0 {
		syntax.Walk(w.pf.Root, func(n syntax.Node) bool {
			if w.rules.importKinds[n.Kind()] {
				nodes = append(nodes, n)
				return false
			}
			return true
		}, nil)
	}
	if w.rules.imports == nil {
		return
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].StartByte() < nodes[j].StartByte() })

	from := model.FileScope(w.path)
	for _, n := range nodes {
		k := keyOf(n)
		if w.importKeys[k] {
			continue
		}
		w.importKeys[k] = true
		imps, reexport := w.rules.imports(n, w.src)
		for _, imp := range imps {
			if imp.Source == "" {
				continue
			}
			imp.Location = w.location(n)
			w.analysis.Imports = append(w.analysis.Imports, imp)
			w.bindImport(imp)

			kind := model.RelImports
			if reexport {
				kind = model.RelReExports
			}
			targets := []string{"*"}
			if len(imp.Names) > 0 {
				targets = targets[:0]
				for _, name := range imp.Names {
					targets = append(targets, name.Name)
				}
			}
			for _, t := range targets {
				rel := w.relationship(from, model.SymbolID(imp.Source+"::"+t), kind, n)
				rel.SetProperty(model.PropQualifier, imp.Source)
				if kind == model.RelReExports && len(imp.Names) > 0 {
					for _, name := range imp.Names {
						if name.Name == t && name.Alias != "" {
							rel.SetProperty(model.PropDisplayName, name.Alias)
						}
					}
				}
				w.analysis.Relationships = append(w.analysis.Relationships, rel)
			}
		}
	}
}

// bindImport records the local names an import introduces.
func (w *walker) bindImport(imp model.Import) {
	for _, n := range imp.Names {
		w.importNames[n.Local()] = true
	}
	if imp.ModuleAlias != "" {
		w.importNames[imp.ModuleAlias] = true
	}
	if len(imp.Names) == 0 && imp.ModuleAlias == "" && !imp.Wildcard {
		w.importNames[firstSegment(imp.Source)] = true
	}
}

func (w *walker) enter(n syntax.Node) bool {
	k := keyOf(n)
	if w.importKeys[k] {
		return false
	}
	if d, ok := w.defs[k]; ok {
		w.enterDef(n, d)
	}
	if fk, ok := scope.KindFor(w.pf.Language, n.Kind()); ok {
		name := ""
		if d, ok := w.defs[k]; ok {
			name = syntax.Text(d.name, w.src)
		} else if w.rules.scopeName != nil {
			name = w.rules.scopeName(n, w.src)
		}
		w.tracker.Push(scope.Frame{
			Kind:      fk,
			Name:      name,
			StartLine: n.StartPoint().Row + 1,
			EndLine:   n.EndPoint().Row + 1,
		})
		w.frames = append(w.frames, k)
	}
	if !w.handled[k] {
		w.relations(n)
	}
	return true
}

func (w *walker) leave(n syntax.Node) {
	k := keyOf(n)
	if len(w.frames) > 0 && w.frames[len(w.frames)-1] == k {
		w.frames = w.frames[:len(w.frames)-1]
		w.tracker.Pop()
	}
	if len(w.owners) > 0 && w.owners[len(w.owners)-1].key == k {
		w.owners = w.owners[:len(w.owners)-1]
	}
}

func (w *walker) location(n syntax.Node) model.SourceLocation {
	sp, ep := n.StartPoint(), n.EndPoint()
	return model.SourceLocation{
		File:        w.path,
		StartLine:   sp.Row + 1,
		StartColumn: sp.Column,
		EndLine:     ep.Row + 1,
		EndColumn:   ep.Column,
		ByteOffset:  n.StartByte(),
		ByteLength:  n.EndByte() - n.StartByte(),
	}
}

// current returns the declaration edges found at this point belong to.
func (w *walker) current() model.SymbolID {
	if len(w.owners) == 0 {
		return model.FileScope(w.path)
	}
	return w.owners[len(w.owners)-1].id
}

// currentType returns the innermost enclosing type declaration, falling
// back to a same-file type named by the scope stack (Rust impl blocks).
func (w *walker) currentType() (model.SymbolID, bool) {
	for i := len(w.owners) - 1; i >= 0; i-- {
		if w.owners[i].kind.IsType() {
			return w.owners[i].id, true
		}
		if w.owners[i].kind.IsCallable() {
			break
		}
	}
	if f, ok := w.tracker.EnclosingType(); ok {
		id, found := w.localTypes[f.Name]
		return id, found
	}
	return "", false
}

func (w *walker) relationship(from, to model.SymbolID, kind model.RelationshipKind, at syntax.Node) model.Relationship {
	return model.Relationship{
		From:       from,
		To:         to,
		Kind:       kind,
		Location:   w.location(at),
		Confidence: model.DefaultConfidence,
	}
}

func (w *walker) emit(rel model.Relationship) {
	w.analysis.Relationships = append(w.analysis.Relationships, rel)
}

// emitResolved records an edge whose target was declared in this file.
func (w *walker) emitResolved(from, to model.SymbolID, kind model.RelationshipKind, at syntax.Node) {
	rel := w.relationship(from, to, kind, at)
	rel.SetProperty(model.PropResolution, model.ResolutionResolved)
	w.emit(rel)
}

func (w *walker) enterDef(n syntax.Node, d def) {
	name := syntax.Text(d.name, w.src)
	inType := w.tracker.DirectlyInType()
	kind := d.kind
	if kind == model.KindFunction && inType {
		kind = model.KindMethod
	}
	if w.rules.adjustKind != nil {
		kind = w.rules.adjustKind(n, kind, name, inType)
	}

	qualified := w.tracker.QualifiedName(name)
	module := w.module
	if w.rules.qualify != nil {
		qualified, module = w.rules.qualify(n, name, qualified, w.src)
		if module == "" {
			module = w.module
		}
	}

	loc := w.location(n)
	sym := model.Symbol{
		ID:            model.NewSymbolID(w.path, loc.StartLine, name),
		Name:          name,
		Kind:          kind,
		Location:      loc,
		Visibility:    model.Unspecified,
		CodeContent:   syntax.Text(n, w.src),
		QualifiedName: qualified,
		Module:        module,
	}
	if w.rules.visibility != nil {
		sym.Visibility = w.rules.visibility(n, name, w.src, inType)
	}
	if w.rules.docs != nil {
		sym.Documentation = w.rules.docs(n, w.src)
	}
	if w.rules.properties != nil {
		sym.Properties = w.rules.properties(n, name, w.src)
	}
	w.analysis.Symbols = append(w.analysis.Symbols, sym)

	if kind == model.KindMethod || kind == model.KindConstructor {
		if typ, ok := w.currentType(); ok {
			w.emitResolved(typ, sym.ID, model.RelHasMethod, n)
		}
	}
	if w.rules.heritage != nil {
		for _, h := range w.rules.heritage(n, w.src) {
			w.emit(w.relationship(sym.ID, model.BareRef(h.name), h.kind, h.node))
		}
	}
	if w.rules.decorators != nil {
		for _, dec := range w.rules.decorators(n, w.src) {
			name := w.decoratorName(dec)
			if name == "" || w.rules.builtins[name] {
				continue
			}
			w.emit(w.relationship(sym.ID, model.BareRef(name), model.RelDecoratedBy, dec))
		}
	}

	w.owners = append(w.owners, owner{key: keyOf(n), id: sym.ID, kind: kind})
}

// decoratorName reduces a decorator or annotation expression to the name
// it applies.
func (w *walker) decoratorName(n syntax.Node) string {
	for n != nil {
		switch {
		case n.ChildByField("name") != nil && n.Kind() != "call":
			return typeName(n.ChildByField("name"), w.src)
		case n.ChildByField("function") != nil:
			n = n.ChildByField("function")
			continue
		}
		break
	}
	if n == nil {
		return ""
	}
	text := strings.TrimPrefix(syntax.Text(n, w.src), "@")
	if i := strings.IndexByte(text, '('); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func (w *walker) relations(n syntax.Node) {
	kind := n.Kind()
	if field, ok := w.rules.calls[kind]; ok {
		w.call(n, field)
	}
	if field, ok := w.rules.instantiations[kind]; ok {
		w.instantiate(n, n.ChildByField(field))
	}
	if a, ok := w.rules.accesses[kind]; ok {
		w.use(n, a)
	}
	if w.refs[keyOf(n)] {
		w.reference(n)
	}
	if w.rules.extra != nil {
		w.rules.extra(w, n)
	}
}

// callee splits a call target into its receiver (possibly nil) and the
// node naming the invoked function.
func (w *walker) callee(call syntax.Node, field string) (recv, name syntax.Node) {
	target := call.ChildByField(field)
	if target == nil {
		return nil, nil
	}
	if obj := call.ChildByField("object"); obj != nil && field == "name" {
		return obj, target
	}
	if a, ok := w.rules.accesses[target.Kind()]; ok {
		w.handled[keyOf(target)] = true
		return target.ChildByField(a.object), target.ChildByField(a.member)
	}
	return nil, target
}

func (w *walker) call(n syntax.Node, field string) {
	recv, nameNode := w.callee(n, field)
	if nameNode == nil {
		return
	}
	var name string
	if w.rules.calleeName != nil {
		name = w.rules.calleeName(nameNode, w.src)
	} else {
		name = typeName(nameNode, w.src)
	}
	if name == "" || w.rules.builtins[name] || w.rules.stdTypes[firstSegment(name)] && strings.ContainsAny(name, ".:") {
		return
	}
	if w.rules.stdTypes[name] {
		return
	}

	ref := name
	var qualifier string
	if recv != nil {
		recvText := syntax.Text(recv, w.src)
		root := firstSegment(recvText)
		if w.rules.builtinReceivers[root] {
			return
		}
		switch {
		case w.rules.receivers[root]:
			qualifier = recvText
		case !isIdent(strings.ReplaceAll(recvText, ".", "")):
		case w.importNames[root]:
			ref = recvText + "." + name
		default:
			qualifier = recvText
		}
	}

	rel := w.relationship(w.current(), model.BareRef(ref), model.RelCalls, n)
	if w.nameCounts[lastSegment(name)] > 1 {
		rel.Confidence = model.AmbiguousConfidence
	}
	if qualifier != "" {
		rel.SetProperty(model.PropQualifier, qualifier)
	}
	w.emit(rel)
}

func (w *walker) instantiate(n, typ syntax.Node) {
	if typ == nil {
		return
	}
	name := typeName(typ, w.src)
	if name == "" || w.rules.builtins[lastSegment(name)] || w.rules.stdTypes[lastSegment(name)] {
		return
	}
	rel := w.relationship(w.current(), model.BareRef(name), model.RelInstantiates, n)
	if w.nameCounts[lastSegment(name)] > 1 {
		rel.Confidence = model.AmbiguousConfidence
	}
	w.emit(rel)
}

// chain renders a member-access object as a dotted identifier path, marking
// nested accesses as handled. It reports false for anything that is not a
// plain path (calls, indexing, literals).
func (w *walker) chain(n syntax.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	if isLeaf(n, w.src) {
		return syntax.Text(n, w.src), true
	}
	a, ok := w.rules.accesses[n.Kind()]
	if !ok {
		return "", false
	}
	w.handled[keyOf(n)] = true
	obj, ok := w.chain(n.ChildByField(a.object))
	if !ok {
		return "", false
	}
	mem := n.ChildByField(a.member)
	if !isLeaf(mem, w.src) {
		return "", false
	}
	return obj + "." + syntax.Text(mem, w.src), true
}

func (w *walker) use(n syntax.Node, a access) {
	obj, ok := w.chain(n.ChildByField(a.object))
	if !ok {
		return
	}
	root := firstSegment(obj)
	if w.rules.receivers[root] || w.rules.builtinReceivers[root] {
		return
	}
	mem := n.ChildByField(a.member)
	if !isLeaf(mem, w.src) {
		return
	}
	w.emit(w.relationship(w.current(), model.BareRef(obj+"."+syntax.Text(mem, w.src)), model.RelUses, n))
}

func (w *walker) inHeritage(n syntax.Node) bool {
	return len(w.rules.heritageKinds) > 0 && syntax.Ancestor(n, w.rules.heritageKinds...) != nil
}

func (w *walker) reference(n syntax.Node) {
	if isFieldOf(n, "name") && !w.rules.qualifiedTypes[n.Parent().Kind()] {
		return
	}
	if w.inHeritage(n) || (w.rules.skipRef != nil && w.rules.skipRef(n)) {
		return
	}
	name := syntax.Text(n, w.src)
	short := name
	if p := n.Parent(); p != nil && w.rules.qualifiedTypes[p.Kind()] && isFieldOf(n, "name") {
		name = strings.Join(strings.Fields(syntax.Text(p, w.src)), "")
		if w.rules.stdTypes[firstSegment(name)] {
			return
		}
	}
	_, local := w.localTypes[short]
	if !local && !w.rules.looksLikeType(short) {
		return
	}
	from := w.current()
	key := string(from) + "\x00" + name
	if w.seen[key] {
		return
	}
	w.seen[key] = true
	w.emit(w.relationship(from, model.BareRef(name), model.RelReferences, n))
}
