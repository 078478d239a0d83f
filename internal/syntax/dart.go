package syntax

import (
	"fmt"
	"sort"
	"unicode"
	"unicode/utf8"
)

// Dart node kinds produced by the structural parser. They follow the
// tree-sitter-dart naming so per-language rules read the same way.
const (
	DartProgram          = "program"
	DartComment          = "comment"
	DartImport           = "import_or_export"
	DartShow             = "show_combinator"
	DartClass            = "class_definition"
	DartMixin            = "mixin_declaration"
	DartExtension        = "extension_declaration"
	DartEnum             = "enum_declaration"
	DartTypeAlias        = "type_alias"
	DartClassBody        = "class_body"
	DartSuperclass       = "superclass"
	DartMixins           = "mixins"
	DartInterfaces       = "interfaces"
	DartFunction         = "function_signature"
	DartMethod           = "method_signature"
	DartConstructor      = "constructor_signature"
	DartParameters       = "formal_parameter_list"
	DartBlock            = "function_body"
	DartInvocation       = "invocation_expression"
	DartNew              = "constructor_invocation"
	DartPropertyAccess   = "property_access"
	DartIdentifier       = "identifier"
	DartTypeIdentifier   = "type_identifier"
	DartThis             = "this"
	DartStringLiteral    = "string_literal"
	DartAnnotation       = "annotation"
)

type dartTokKind int

const (
	dtIdent dartTokKind = iota
	dtString
	dtNumber
	dtPunct
	dtComment
)

type dartToken struct {
	kind       dartTokKind
	text       string
	start, end int
}

type dartNode struct {
	kind       string
	start, end int
	sp, ep     Point
	named      bool
	children   []*dartNode
	fields     map[string]*dartNode
	parent     *dartNode
}

func (d *dartNode) Kind() string      { return d.kind }
func (d *dartNode) StartByte() int    { return d.start }
func (d *dartNode) EndByte() int      { return d.end }
func (d *dartNode) StartPoint() Point { return d.sp }
func (d *dartNode) EndPoint() Point   { return d.ep }
func (d *dartNode) IsNamed() bool     { return d.named }
func (d *dartNode) ChildCount() int   { return len(d.children) }

func (d *dartNode) Child(i int) Node {
	if i < 0 || i >= len(d.children) {
		return nil
	}
	return d.children[i]
}

func (d *dartNode) NamedChildCount() int {
	n := 0
	for _, c := range d.children {
		if c.named {
			n++
		}
	}
	return n
}

func (d *dartNode) NamedChild(i int) Node {
	for _, c := range d.children {
		if !c.named {
			continue
		}
		if i == 0 {
			return c
		}
		i--
	}
	return nil
}

func (d *dartNode) ChildByField(name string) Node {
	if c, ok := d.fields[name]; ok && c != nil {
		return c
	}
	return nil
}

func (d *dartNode) Parent() Node {
	if d.parent == nil {
		return nil
	}
	return d.parent
}

func (d *dartNode) add(c *dartNode) *dartNode {
	if c == nil {
		return d
	}
	c.parent = d
	d.children = append(d.children, c)
	return d
}

func (d *dartNode) setField(name string, c *dartNode) {
	if c == nil {
		return
	}
	if d.fields == nil {
		d.fields = make(map[string]*dartNode)
	}
	d.fields[name] = c
	d.add(c)
}

// sortChildren restores source order after fields were attached out of order.
func (d *dartNode) sortChildren() {
	sort.SliceStable(d.children, func(i, j int) bool {
		return d.children[i].start < d.children[j].start
	})
}

var dartControlWords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "assert": true, "await": true, "yield": true, "throw": true,
	"do": true, "else": true, "try": true, "finally": true, "case": true,
	"super": true, "this": true, "new": true, "const": true, "is": true,
	"as": true, "in": true, "var": true, "final": true, "late": true,
}

var dartClassModifiers = map[string]bool{
	"abstract": true, "base": true, "final": true, "sealed": true, "interface": true,
}

type dartParser struct {
	src   []byte
	toks  []dartToken
	lines []int
}

// parseDart builds a structural tree for Dart source: declarations with
// their headers and bodies, plus the calls, instantiations and property
// accesses found inside bodies.
func parseDart(src []byte) (Node, error) {
	if !utf8.Valid(src) {
		return nil, fmt.Errorf("dart: source is not valid UTF-8")
	}
	p := &dartParser{src: src}
	p.lines = lineStarts(src)
	toks, err := lexDart(src)
	if err != nil {
		return nil, err
	}
	p.toks = toks

	root := p.node(DartProgram, 0, len(src))
	p.parseDecls(root, 0, len(p.toks), "")
	root.sortChildren()
	return root, nil
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (p *dartParser) point(off int) Point {
	row := sort.Search(len(p.lines), func(i int) bool { return p.lines[i] > off }) - 1
	if row < 0 {
		row = 0
	}
	return Point{Row: row, Column: off - p.lines[row]}
}

func (p *dartParser) node(kind string, start, end int) *dartNode {
	return &dartNode{kind: kind, start: start, end: end, sp: p.point(start), ep: p.point(end), named: true}
}

func (p *dartParser) tokNode(kind string, i int) *dartNode {
	t := p.toks[i]
	return p.node(kind, t.start, t.end)
}

func (p *dartParser) isPunct(i int, s string) bool {
	return i >= 0 && i < len(p.toks) && p.toks[i].kind == dtPunct && p.toks[i].text == s
}

func (p *dartParser) isIdent(i int) bool {
	return i >= 0 && i < len(p.toks) && p.toks[i].kind == dtIdent
}

func (p *dartParser) isWord(i int, w string) bool {
	return p.isIdent(i) && p.toks[i].text == w
}

// matching returns the index of the token closing the bracket at i, or
// limit-1 when the source is unbalanced.
func (p *dartParser) matching(i, limit int) int {
	open := p.toks[i].text
	var close string
	switch open {
	case "(":
		close = ")"
	case "{":
		close = "}"
	case "[":
		close = "]"
	case "<":
		close = ">"
	default:
		return i
	}
	depth := 0
	for j := i; j < limit; j++ {
		if p.toks[j].kind != dtPunct {
			continue
		}
		switch p.toks[j].text {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return j
			}
		}
		if open == "<" && (p.toks[j].text == ";" || p.toks[j].text == "{") {
			return i
		}
	}
	return limit - 1
}

// skipStatement advances past the next ';' at bracket depth zero.
func (p *dartParser) skipStatement(i, limit int) int {
	for i < limit {
		if p.toks[i].kind == dtPunct {
			switch p.toks[i].text {
			case ";":
				return i + 1
			case "(", "{", "[":
				i = p.matching(i, limit) + 1
				continue
			}
		}
		i++
	}
	return limit
}

// skipMember advances past a member whose shape was not recognised: either
// to the next ';' at depth zero or past the first top-level block.
func (p *dartParser) skipMember(i, limit int) int {
	for i < limit {
		if p.toks[i].kind == dtPunct {
			switch p.toks[i].text {
			case ";":
				return i + 1
			case "{":
				return p.matching(i, limit) + 1
			case "(", "[":
				i = p.matching(i, limit) + 1
				continue
			}
		}
		i++
	}
	return limit
}

// skipAnnotation consumes "@name(.name)*(args)?" starting at i.
func (p *dartParser) skipAnnotation(parent *dartNode, i, limit int) int {
	start := i
	i++
	if p.isIdent(i) {
		name := p.tokNode(DartIdentifier, i)
		i++
		for p.isPunct(i, ".") && p.isIdent(i+1) {
			i += 2
		}
		if p.isPunct(i, "(") {
			i = p.matching(i, limit) + 1
		}
		ann := p.node(DartAnnotation, p.toks[start].start, p.toks[i-1].end)
		ann.setField("name", name)
		parent.add(ann)
	}
	return i
}

// parseDecls parses declarations in toks[i:limit]. className is set inside
// class bodies so constructors can be recognised.
func (p *dartParser) parseDecls(parent *dartNode, i, limit int, className string) {
	for i < limit {
		t := p.toks[i]
		switch {
		case t.kind == dtComment:
			parent.add(p.tokNode(DartComment, i))
			i++
		case t.kind == dtPunct && t.text == "@":
			i = p.skipAnnotation(parent, i, limit)
		case t.kind == dtPunct && t.text == ";":
			i++
		case t.kind == dtIdent && (t.text == "import" || t.text == "export") && className == "":
			i = p.parseImport(parent, i, limit)
		case t.kind == dtIdent && (t.text == "library" || t.text == "part") && className == "":
			i = p.skipStatement(i, limit)
		case t.kind == dtIdent && t.text == "typedef":
			i = p.parseTypedef(parent, i, limit)
		case t.kind == dtIdent && p.classStart(i, limit) >= 0:
			i = p.parseClass(parent, i, p.classStart(i, limit), limit)
		case t.kind == dtIdent && t.text == "enum":
			i = p.parseEnum(parent, i, limit)
		case t.kind == dtIdent && t.text == "extension":
			i = p.parseExtension(parent, i, limit)
		default:
			i = p.parseMember(parent, i, limit, className)
		}
	}
}

// classStart returns the index of the "class" or "mixin" keyword when the
// tokens at i begin a class-like declaration, or -1.
func (p *dartParser) classStart(i, limit int) int {
	for j := i; j < limit && p.isIdent(j); j++ {
		w := p.toks[j].text
		if w == "class" || (w == "mixin" && !p.isWord(j+1, "class")) {
			return j
		}
		if w == "mixin" {
			continue
		}
		if !dartClassModifiers[w] {
			return -1
		}
	}
	return -1
}

func (p *dartParser) parseImport(parent *dartNode, i, limit int) int {
	end := p.skipStatement(i, limit)
	n := p.node(DartImport, p.toks[i].start, p.toks[end-1].end)
	for j := i + 1; j < end; j++ {
		switch {
		case p.toks[j].kind == dtString && n.fields["uri"] == nil:
			n.setField("uri", p.tokNode(DartStringLiteral, j))
		case p.isWord(j, "as") && p.isIdent(j+1):
			n.setField("alias", p.tokNode(DartIdentifier, j+1))
			j++
		case p.isWord(j, "show"):
			show := p.node(DartShow, p.toks[j].start, p.toks[j].end)
			k := j + 1
			for ; k < end && (p.isIdent(k) || p.isPunct(k, ",")); k++ {
				if p.isIdent(k) && !p.isWord(k, "hide") && !p.isWord(k, "show") {
					show.add(p.tokNode(DartIdentifier, k))
					show.end, show.ep = p.toks[k].end, p.point(p.toks[k].end)
				}
				if p.isWord(k, "hide") {
					break
				}
			}
			n.add(show)
			j = k - 1
		}
	}
	n.sortChildren()
	parent.add(n)
	return end
}

func (p *dartParser) parseTypedef(parent *dartNode, i, limit int) int {
	end := p.skipStatement(i, limit)
	n := p.node(DartTypeAlias, p.toks[i].start, p.toks[end-1].end)
	// typedef Name<T> = ...; or the legacy typedef Ret Name(args);
	for j := i + 1; j < end; j++ {
		if p.isIdent(j) && (p.isPunct(j+1, "=") || p.isPunct(j+1, "<") || p.isPunct(j+1, "(")) {
			n.setField("name", p.tokNode(DartTypeIdentifier, j))
			break
		}
	}
	parent.add(n)
	return end
}

func (p *dartParser) parseTypeList(container *dartNode, i, limit int) int {
	for i < limit {
		if !p.isIdent(i) {
			break
		}
		start := i
		for p.isPunct(i+1, ".") && p.isIdent(i+2) {
			i += 2
		}
		ti := p.node(DartTypeIdentifier, p.toks[start].start, p.toks[i].end)
		container.add(ti)
		container.end, container.ep = ti.end, ti.ep
		i++
		if p.isPunct(i, "<") {
			i = p.matching(i, limit) + 1
		}
		if p.isPunct(i, "?") {
			i++
		}
		if !p.isPunct(i, ",") {
			break
		}
		i++
	}
	return i
}

func (p *dartParser) parseClass(parent *dartNode, start, kw, limit int) int {
	kind := DartClass
	if p.toks[kw].text == "mixin" {
		kind = DartMixin
	}
	i := kw + 1
	n := p.node(kind, p.toks[start].start, p.toks[start].end)
	if p.isIdent(i) {
		n.setField("name", p.tokNode(DartIdentifier, i))
		i++
	}
	if p.isPunct(i, "<") {
		i = p.matching(i, limit) + 1
	}
	for i < limit && !p.isPunct(i, "{") && !p.isPunct(i, ";") {
		switch {
		case p.isWord(i, "extends"):
			sc := p.node(DartSuperclass, p.toks[i].start, p.toks[i].end)
			i = p.parseTypeList(sc, i+1, limit)
			n.setField("superclass", sc)
		case p.isWord(i, "with"):
			mx := p.node(DartMixins, p.toks[i].start, p.toks[i].end)
			i = p.parseTypeList(mx, i+1, limit)
			n.setField("mixins", mx)
		case p.isWord(i, "implements"):
			ifs := p.node(DartInterfaces, p.toks[i].start, p.toks[i].end)
			i = p.parseTypeList(ifs, i+1, limit)
			n.setField("interfaces", ifs)
		case p.isWord(i, "on"):
			on := p.node(DartSuperclass, p.toks[i].start, p.toks[i].end)
			i = p.parseTypeList(on, i+1, limit)
			n.setField("superclass", on)
		default:
			i++
		}
	}
	if p.isPunct(i, "{") {
		close := p.matching(i, limit)
		body := p.node(DartClassBody, p.toks[i].start, p.toks[close].end)
		name := ""
		if nm := n.fields["name"]; nm != nil {
			name = string(p.src[nm.start:nm.end])
		}
		p.parseDecls(body, i+1, close, name)
		body.sortChildren()
		n.setField("body", body)
		i = close + 1
	} else if i < limit {
		i++
	}
	n.end, n.ep = p.toks[i-1].end, p.point(p.toks[i-1].end)
	n.sortChildren()
	parent.add(n)
	return i
}

func (p *dartParser) parseEnum(parent *dartNode, i, limit int) int {
	n := p.node(DartEnum, p.toks[i].start, p.toks[i].end)
	j := i + 1
	if p.isIdent(j) {
		n.setField("name", p.tokNode(DartIdentifier, j))
		j++
	}
	for j < limit && !p.isPunct(j, "{") {
		j++
	}
	if j < limit {
		j = p.matching(j, limit) + 1
	}
	n.end, n.ep = p.toks[j-1].end, p.point(p.toks[j-1].end)
	parent.add(n)
	return j
}

func (p *dartParser) parseExtension(parent *dartNode, i, limit int) int {
	n := p.node(DartExtension, p.toks[i].start, p.toks[i].end)
	j := i + 1
	if p.isIdent(j) && !p.isWord(j, "on") {
		n.setField("name", p.tokNode(DartIdentifier, j))
		j++
	}
	if p.isPunct(j, "<") {
		j = p.matching(j, limit) + 1
	}
	if p.isWord(j, "on") {
		on := p.node(DartSuperclass, p.toks[j].start, p.toks[j].end)
		j = p.parseTypeList(on, j+1, limit)
		n.setField("type", on)
	}
	for j < limit && !p.isPunct(j, "{") {
		j++
	}
	if j < limit {
		close := p.matching(j, limit)
		body := p.node(DartClassBody, p.toks[j].start, p.toks[close].end)
		p.parseDecls(body, j+1, close, "")
		body.sortChildren()
		n.setField("body", body)
		j = close + 1
	}
	n.end, n.ep = p.toks[j-1].end, p.point(p.toks[j-1].end)
	n.sortChildren()
	parent.add(n)
	return j
}

// parseMember handles functions, methods, constructors, getters and fields.
func (p *dartParser) parseMember(parent *dartNode, i, limit int, className string) int {
	start := i
	for j := i; j < limit; j++ {
		t := p.toks[j]
		if t.kind == dtComment {
			continue
		}
		if t.kind != dtPunct {
			// Getter or setter without a parameter list.
			if (t.text == "get") && p.isIdent(j+1) && (p.isPunct(j+2, "{") || p.isPunct(j+2, "=>")) {
				return p.finishCallable(parent, start, j+1, j+2, limit, dartMethodKind(className), nil)
			}
			continue
		}
		switch t.text {
		case "<":
			j = p.matching(j, limit)
		case "(":
			nameIdx := j - 1
			if !p.isIdent(nameIdx) || dartControlWords[p.toks[nameIdx].text] {
				return p.skipMember(j, limit)
			}
			close := p.matching(j, limit)
			params := p.node(DartParameters, p.toks[j].start, p.toks[close].end)
			p.collectTypes(params, j+1, close)
			kind := dartMethodKind(className)
			// ClassName(...) and ClassName.named(...) are constructors.
			if className != "" {
				if p.toks[nameIdx].text == className {
					kind = DartConstructor
				} else if p.isPunct(nameIdx-1, ".") && p.isWord(nameIdx-2, className) {
					kind = DartConstructor
				}
			}
			return p.finishCallable(parent, start, nameIdx, close+1, limit, kind, params)
		case "=", ";":
			return p.skipMember(j, limit)
		case "{":
			return p.matching(j, limit) + 1
		}
	}
	return limit
}

// dartMethodKind returns the signature kind for a callable declared inside
// className, or at top level when className is empty.
func dartMethodKind(className string) string {
	if className == "" {
		return DartFunction
	}
	return DartMethod
}

// finishCallable builds a signature node named by toks[nameIdx] whose body
// starts at or after toks[after].
func (p *dartParser) finishCallable(parent *dartNode, start, nameIdx, after, limit int, kind string, params *dartNode) int {
	n := p.node(kind, p.toks[start].start, p.toks[nameIdx].end)
	n.setField("name", p.tokNode(DartIdentifier, nameIdx))
	if params != nil {
		n.setField("parameters", params)
	}
	p.collectTypes(n, start, nameIdx)

	j := after
	// Modifiers and initializer lists before the body.
	for j < limit && !p.isPunct(j, "{") && !p.isPunct(j, "=>") && !p.isPunct(j, ";") {
		if p.isPunct(j, "(") || p.isPunct(j, "[") {
			j = p.matching(j, limit)
		}
		j++
	}
	end := j
	switch {
	case p.isPunct(j, "{"):
		close := p.matching(j, limit)
		body := p.node(DartBlock, p.toks[j].start, p.toks[close].end)
		p.parseExpressions(body, j+1, close)
		n.setField("body", body)
		end = close + 1
	case p.isPunct(j, "=>"):
		stop := p.skipStatement(j, limit)
		last := stop - 1
		if last <= j {
			last = j
		}
		body := p.node(DartBlock, p.toks[j].start, p.toks[last].end)
		p.parseExpressions(body, j+1, stop)
		n.setField("body", body)
		end = stop
	case j < limit:
		end = j + 1
	}
	if end > len(p.toks) {
		end = len(p.toks)
	}
	n.end, n.ep = p.toks[end-1].end, p.point(p.toks[end-1].end)
	n.sortChildren()
	parent.add(n)
	return end
}

// collectTypes adds a type_identifier child for each capitalised name in
// toks[i:limit] that sits in a type position.
func (p *dartParser) collectTypes(parent *dartNode, i, limit int) {
	for j := i; j < limit; j++ {
		if !p.isIdent(j) || p.isPunct(j-1, ".") {
			continue
		}
		r, _ := utf8.DecodeRuneInString(p.toks[j].text)
		if !unicode.IsUpper(r) {
			continue
		}
		if p.isIdent(j+1) || p.isPunct(j+1, "<") || p.isPunct(j+1, "?") || p.isPunct(j+1, ">") || p.isPunct(j+1, ",") {
			parent.add(p.tokNode(DartTypeIdentifier, j))
		}
	}
}

// parseExpressions records calls, instantiations and property accesses in
// toks[i:limit] as children of body.
func (p *dartParser) parseExpressions(body *dartNode, i, limit int) {
	for i < limit {
		t := p.toks[i]
		if t.kind != dtIdent {
			i++
			continue
		}
		if (t.text == "new" || t.text == "const") && p.isIdent(i+1) {
			typeStart := i + 1
			j := typeStart
			for p.isPunct(j+1, ".") && p.isIdent(j+2) {
				j += 2
			}
			k := j + 1
			if p.isPunct(k, "<") {
				k = p.matching(k, limit) + 1
			}
			if p.isPunct(k, "(") {
				close := p.matching(k, limit)
				n := p.node(DartNew, t.start, p.toks[close].end)
				n.setField("type", p.node(DartTypeIdentifier, p.toks[typeStart].start, p.toks[typeStart].end))
				body.add(n)
				i = k + 1
				continue
			}
			i++
			continue
		}
		if p.isPunct(i-1, ".") || (dartControlWords[t.text] && t.text != "this" && t.text != "super") {
			i++
			continue
		}

		// Identifier chain: a.b?.c ...
		var expr *dartNode
		if t.text == "this" || t.text == "super" {
			expr = p.tokNode(DartThis, i)
		} else {
			expr = p.tokNode(DartIdentifier, i)
		}
		j := i
		for (p.isPunct(j+1, ".") || p.isPunct(j+1, "?.")) && p.isIdent(j+2) {
			field := p.tokNode(DartIdentifier, j+2)
			pa := p.node(DartPropertyAccess, expr.start, field.end)
			pa.setField("object", expr)
			pa.setField("field", field)
			expr = pa
			j += 2
		}
		k := j + 1
		if p.isPunct(k, "<") {
			if m := p.matching(k, limit); m > k && p.isPunct(m+1, "(") {
				k = m + 1
			}
		}
		if p.isPunct(k, "(") {
			close := p.matching(k, limit)
			call := p.node(DartInvocation, expr.start, p.toks[close].end)
			call.setField("function", expr)
			body.add(call)
		} else if expr.kind == DartPropertyAccess {
			body.add(expr)
		}
		i = j + 1
	}
	body.sortChildren()
}

func lexDart(src []byte) ([]dartToken, error) {
	var toks []dartToken
	n := len(src)
	i := 0
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '/' && i+1 < n && src[i+1] == '/':
			j := i
			for j < n && src[j] != '\n' {
				j++
			}
			toks = append(toks, dartToken{kind: dtComment, text: string(src[i:j]), start: i, end: j})
			i = j
		case c == '/' && i+1 < n && src[i+1] == '*':
			j, depth := i+2, 1
			for j < n && depth > 0 {
				switch {
				case src[j] == '/' && j+1 < n && src[j+1] == '*':
					depth++
					j += 2
				case src[j] == '*' && j+1 < n && src[j+1] == '/':
					depth--
					j += 2
				default:
					j++
				}
			}
			toks = append(toks, dartToken{kind: dtComment, text: string(src[i:j]), start: i, end: j})
			i = j
		case c == '\'' || c == '"' || (c == 'r' && i+1 < n && (src[i+1] == '\'' || src[i+1] == '"')):
			j := lexDartString(src, i)
			toks = append(toks, dartToken{kind: dtString, text: string(src[i:j]), start: i, end: j})
			i = j
		case isDartIdentStart(c):
			j := i + 1
			for j < n && (isDartIdentStart(src[j]) || (src[j] >= '0' && src[j] <= '9')) {
				j++
			}
			toks = append(toks, dartToken{kind: dtIdent, text: string(src[i:j]), start: i, end: j})
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < n && (isDartIdentStart(src[j]) || (src[j] >= '0' && src[j] <= '9') ||
				(src[j] == '.' && j+1 < n && src[j+1] >= '0' && src[j+1] <= '9')) {
				j++
			}
			toks = append(toks, dartToken{kind: dtNumber, text: string(src[i:j]), start: i, end: j})
			i = j
		case c >= utf8.RuneSelf:
			_, size := utf8.DecodeRune(src[i:])
			i += size
		default:
			text := string(c)
			if i+1 < n {
				two := string(src[i : i+2])
				switch two {
				case "=>", "?.", "..", "==", "!=", "<=", ">=", "&&", "||", "??", "++", "--", "+=", "-=":
					text = two
				}
			}
			toks = append(toks, dartToken{kind: dtPunct, text: text, start: i, end: i + len(text)})
			i += len(text)
		}
	}
	return toks, nil
}

func isDartIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// lexDartString returns the offset just past the string literal at i.
func lexDartString(src []byte, i int) int {
	n := len(src)
	raw := false
	if src[i] == 'r' {
		raw = true
		i++
	}
	q := src[i]
	if i+2 < n && src[i+1] == q && src[i+2] == q {
		j := i + 3
		for j+2 < n {
			if !raw && src[j] == '\\' {
				j += 2
				continue
			}
			if src[j] == q && src[j+1] == q && src[j+2] == q {
				return j + 3
			}
			j++
		}
		return n
	}
	j := i + 1
	for j < n {
		switch {
		case !raw && src[j] == '\\':
			j += 2
			continue
		case src[j] == q:
			return j + 1
		case src[j] == '\n':
			return j
		}
		j++
	}
	return n
}
