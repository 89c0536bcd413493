// Package server implements the aml3 language server. Documents are kept
// in full-sync mode and re-parsed on every change; diagnostics, hover,
// completion and go-to-definition are answered from the parse.
package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/amvm/compiler"
	"github.com/chazu/amvm/vm"
)

const lspName = "amvm-lsp"

var log = commonlog.GetLogger("amvm.lsp")

// document is an open text document and the result of parsing it.
type document struct {
	text    string
	errors  compiler.ErrorList
	symbols []compiler.Symbol
}

func analyze(text string) *document {
	p := compiler.NewParser(text, compiler.Options{})
	p.ParseProgram()
	return &document{text: text, errors: p.Errors(), symbols: p.Symbols()}
}

// LspServer serves aml3 editor features over LSP.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → parsed document

	builtins []string

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new language server. Builtin completions come from a
// fresh runtime so they always match what the VM accepts.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:     make(map[string]*document),
		builtins: vm.New().Builtins(),
		version:  "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("aml3 LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"@", "$", ".", "#"},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) open(uri, text string) *document {
	doc := analyze(text)
	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	log.Debugf("%s: %d symbols, %d errors", uri, len(doc.symbols), len(doc.errors))
	return doc
}

func (s *LspServer) lookup(uri string) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc := s.open(string(uri), params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.open(string(uri), whole.Text)
			s.publishDiagnostics(ctx, uri, doc)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.lookup(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(doc, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.lookup(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(doc, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc, ok := s.lookup(string(uri))
	if !ok {
		return nil, nil
	}
	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	locations := definition(uri, doc, word)
	if len(locations) == 0 {
		return nil, nil
	}
	return locations, nil
}

// ---------------------------------------------------------------------------
// Completion and hover
// ---------------------------------------------------------------------------

var commandDocs = map[string]string{
	"declare": "`@declare [const|let|mut|var] $name EXPR`\n\nDeclares a variable in the current context. The kind defaults to `const`.",
	"puts":    "`@puts EXPR`\n\nWrites the displayed value to standard output.",
	"push":    "`@push EXPR`\n\nPushes a value onto the prev stack, read back with `_`.",
	"loop":    "`@loop { ... }`\n\nRuns the body until `@break` or `@return`.",
	"if":      "`@if EXPR { ... } [@else { ... }]`\n\nThe condition must be a bool.",
	"else":    "`@else { ... }`\n\nAlternative branch of `@if`.",
	"break":   "`@break`\n\nLeaves the innermost `@loop` or `@for`.",
	"return":  "`@return [EXPR]`\n\nLeaves the current function with a value, `null` when omitted.",
	"builtin": "`@builtin .name ARGS...`\n\nCalls a VM builtin. Results are pushed onto the prev stack.",
	"call":    "`@call EXPR ARGS...`\n\nCalls a function value, or a function variable named by a string.",
	"for":     "`@for $v in EXPR { ... }`\n\nIterates over an iterator such as `.. 0 10`.",
	"fn":      "`@fn $name ($a KIND TYPE, ...) TYPE { ... }`\n\nDeclares a function. Without a name it is a function literal.",
	"struct":  "`@struct #Name { field TYPE ... }`\n\nDefines a struct type.",
}

var builtinDocs = map[string]string{
	".vm.create":          "`@builtin .vm.create`\n\nCreates a sub-VM and pushes its handle.",
	".vm.eval":            "`@builtin .vm.eval HANDLE SOURCE`\n\nRuns aml3 source inside a sub-VM and pushes its result.",
	".vm.drop":            "`@builtin .vm.drop HANDLE`\n\nReleases a sub-VM handle.",
	".io.stdout.flush":    "`@builtin .io.stdout.flush`\n\nFlushes buffered output.",
	".io.stdout.write":    "`@builtin .io.stdout.write VALUES...`\n\nWrites values without a trailing newline.",
	".io.stdin.read_line": "`@builtin .io.stdin.read_line &mut $s`\n\nAppends one line of input to a mutable string.",
	".obj.mut_access":     "`@builtin .obj.mut_access &mut $obj FIELD`\n\nPushes a mutable reference to a field.",
	".mem.replace":        "`@builtin .mem.replace &mut $x VALUE`\n\nStores a value and pushes the previous one.",
}

var primitiveTypes = []string{"#", "#bool", "#string", "#u8"}

func completionItem(label, detail string, kind protocol.CompletionItemKind) protocol.CompletionItem {
	return protocol.CompletionItem{
		Label:      label,
		Kind:       &kind,
		Detail:     &detail,
		InsertText: &label,
	}
}

func (s *LspServer) complete(doc *document, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		items = append(items, completionItem(label, detail, kind))
	}

	switch prefix[0] {
	case '@':
		names := make([]string, 0, len(commandDocs))
		for name := range commandDocs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			add("@"+name, "command", protocol.CompletionItemKindKeyword)
		}
	case '.':
		for _, name := range s.builtins {
			add(name, "builtin", protocol.CompletionItemKindFunction)
		}
	case '$':
		for _, sym := range doc.symbols {
			if sym.Kind == "struct" {
				continue
			}
			kind := protocol.CompletionItemKindVariable
			if sym.Kind == "fn" {
				kind = protocol.CompletionItemKindFunction
			}
			add("$"+sym.Name, sym.Detail, kind)
		}
	case '#':
		for _, name := range primitiveTypes {
			add(name, "type", protocol.CompletionItemKindClass)
		}
		for _, sym := range doc.symbols {
			if sym.Kind == "struct" {
				add("#"+sym.Name, sym.Detail, protocol.CompletionItemKindStruct)
			}
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func (s *LspServer) hover(doc *document, word string) *protocol.Hover {
	var text string
	switch word[0] {
	case '@':
		text = commandDocs[word[1:]]
	case '.':
		text = builtinDocs[word]
		if text == "" && s.isBuiltin(word) {
			text = fmt.Sprintf("`@builtin %s`", word)
		}
	case '$':
		text = symbolHover(doc, word[1:], func(sym compiler.Symbol) bool { return sym.Kind != "struct" })
	case '#':
		text = symbolHover(doc, word[1:], func(sym compiler.Symbol) bool { return sym.Kind == "struct" })
	}
	if text == "" {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
	}
}

func (s *LspServer) isBuiltin(name string) bool {
	for _, b := range s.builtins {
		if b == name {
			return true
		}
	}
	return false
}

// symbolHover lists every declaration of name, since aml3 allows
// shadowing in nested scopes.
func symbolHover(doc *document, name string, match func(compiler.Symbol) bool) string {
	var b strings.Builder
	for _, sym := range doc.symbols {
		if sym.Name != name || !match(sym) {
			continue
		}
		fmt.Fprintf(&b, "- `%s` (%s, line %d)\n", sym.Detail, sym.Kind, sym.Pos.Line)
	}
	return b.String()
}

// definition returns the declaration sites of a $variable or #type.
func definition(uri protocol.DocumentUri, doc *document, word string) []protocol.Location {
	if len(word) < 2 || (word[0] != '$' && word[0] != '#') {
		return nil
	}
	wantStruct := word[0] == '#'
	var locations []protocol.Location
	for _, sym := range doc.symbols {
		if sym.Name != word[1:] || (sym.Kind == "struct") != wantStruct {
			continue
		}
		start := toProtocol(sym.Pos)
		end := start
		end.Character += protocol.UInteger(len([]rune(word)))
		locations = append(locations, protocol.Location{
			URI:   uri,
			Range: protocol.Range{Start: start, End: end},
		})
	}
	return locations
}

// --- Diagnostics ---

// toProtocol converts a 1-based compiler position to a 0-based LSP one.
func toProtocol(pos compiler.Position) protocol.Position {
	line, col := pos.Line-1, pos.Column-1
	if line < 0 {
		line = 0
	}
	if col < 0 {
		col = 0
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

func diagnostics(doc *document) []protocol.Diagnostic {
	diags := []protocol.Diagnostic{}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	for _, e := range doc.errors {
		start := toProtocol(e.Pos)
		end := start
		end.Character++
		diags = append(diags, protocol.Diagnostic{
			Range:    protocol.Range{Start: start, End: end},
			Severity: &severity,
			Source:   &source,
			Message:  e.Msg,
		})
	}
	return diags
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, doc *document) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics(doc),
	})
}

// --- Text extraction helpers ---

func isWordChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

func isSigil(ch rune) bool {
	return ch == '@' || ch == '$' || ch == '#'
}

func lineAt(text string, pos protocol.Position) ([]rune, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil, 0, false
	}
	line := []rune(strings.TrimSuffix(lines[pos.Line], "\r"))
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// wordStart walks back from col over word characters and one sigil.
func wordStart(line []rune, col int) int {
	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	if start > 0 && isSigil(line[start-1]) {
		start--
	}
	return start
}

// extractPrefix returns the sigiled word fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := wordStart(line, col)
	if start == col {
		return ""
	}
	return string(line[start:col])
}

// extractWord returns the full sigiled word under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	// A cursor on the sigil itself belongs to the word after it.
	if col < len(line) && isSigil(line[col]) {
		col++
	}
	start := wordStart(line, col)
	end := col
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	if start == end {
		return ""
	}
	return string(line[start:end])
}

func boolPtr(b bool) *bool {
	return &b
}
