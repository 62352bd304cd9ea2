package core

import (
	"bytes"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"

	"noir-registry/internal/types"
)

const dependenciesTable = "dependencies"

var bareKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Manifest is a parsed Nargo.toml. Edits splice the original text line by
// line so everything outside the touched entries is kept byte for byte,
// and every edit is re-parsed and checked before its bytes are returned.
type Manifest struct {
	lines   []string
	newline string
	doc     map[string]any
	exprs   []expression
}

// ParseManifest parses data as TOML.
func ParseManifest(data []byte) (Manifest, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Manifest{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("manifest is not valid TOML").
			WithCause(err)
	}
	newline := "\n"
	if bytes.Contains(data, []byte("\r\n")) {
		newline = "\r\n"
	}
	lines := strings.Split(string(data), "\n")
	exprs, err := scanExpressions(data, lines)
	if err != nil {
		return Manifest{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("manifest is not valid TOML").
			WithCause(err)
	}
	return Manifest{
		lines:   lines,
		newline: newline,
		doc:     doc,
		exprs:   exprs,
	}, nil
}

// SanitizeDependencyKey turns a registry package name into a valid
// dependency key: any character other than letters, digits and
// underscores becomes an underscore.
func SanitizeDependencyKey(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// Dependencies returns the decoded [dependencies] table.
func (m Manifest) Dependencies() (map[string]any, error) {
	return dependencyTable(m.doc)
}

// Find looks name up under its raw and sanitized keys.
func (m Manifest) Find(name string) (types.Dependency, bool) {
	deps, err := m.Dependencies()
	if err != nil {
		return types.Dependency{}, false
	}
	for _, key := range dependencyKeys(name) {
		value, ok := deps[key]
		if !ok {
			continue
		}
		dep := types.Dependency{Key: key}
		if table, ok := value.(map[string]any); ok {
			dep.Git, _ = table["git"].(string)
			dep.Tag, _ = table["tag"].(string)
		}
		return dep, true
	}
	return types.Dependency{}, false
}

// AddDependency returns the manifest text with dep appended to the
// [dependencies] table, creating the table at the end of the document when
// it does not exist.
func (m Manifest) AddDependency(dep types.Dependency) ([]byte, error) {
	deps, err := m.Dependencies()
	if err != nil {
		return nil, err
	}
	if _, exists := deps[dep.Key]; exists {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("dependency %q already exists", dep.Key))
	}
	entry := m.terminate(renderDependency(dep))
	var lines []string
	if at, ok := m.insertionPoint(); ok {
		lines = m.insertLines(m.lines, at, entry)
	} else {
		block := []string{m.terminate("[" + dependenciesTable + "]"), entry}
		at := len(m.lines)
		if m.lines[at-1] == "" {
			at--
		}
		if hasContent(m.lines[:at]) {
			block = append([]string{m.terminate("")}, block...)
		}
		lines = m.insertLines(m.lines, at, block...)
	}
	expected := cloneTable(deps)
	expected[dep.Key] = dependencyValue(dep)
	return m.commit(lines, expected)
}

// RemoveDependencies returns the manifest text without the given keys.
// Both inline entries and [dependencies.<key>] tables are removed.
func (m Manifest) RemoveDependencies(keys []string) ([]byte, error) {
	deps, err := m.Dependencies()
	if err != nil {
		return nil, err
	}
	drop := map[string]struct{}{}
	for _, key := range keys {
		if _, ok := deps[key]; !ok {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("dependency %q not found", key))
		}
		drop[key] = struct{}{}
	}
	removed := make([]bool, len(m.lines))
	var table []string
	for i, expr := range m.exprs {
		switch expr.kind {
		case unstable.Table, unstable.ArrayTable:
			table = expr.path
			if len(expr.path) >= 2 && expr.path[0] == dependenciesTable {
				if _, hit := drop[expr.path[1]]; hit {
					m.markTable(removed, i)
				}
			}
		case unstable.KeyValue:
			if len(table) != 1 || table[0] != dependenciesTable {
				continue
			}
			if _, hit := drop[expr.path[0]]; hit {
				markLines(removed, expr.line, expr.end)
			}
		}
	}
	lines := make([]string, 0, len(m.lines))
	for i, line := range m.lines {
		if !removed[i] {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	expected := cloneTable(deps)
	for key := range drop {
		delete(expected, key)
	}
	return m.commit(lines, expected)
}

// commit joins lines and checks that the result parses, that every table
// other than [dependencies] is unchanged, and that [dependencies] holds
// exactly the expected entries.
func (m Manifest) commit(lines []string, expectedDeps map[string]any) ([]byte, error) {
	out := []byte(strings.Join(lines, "\n"))
	doc := map[string]any{}
	if err := toml.Unmarshal(out, &doc); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("edited manifest does not parse; refusing to write it").
			WithCause(err)
	}
	deps, err := dependencyTable(doc)
	if err != nil {
		return nil, err
	}
	if !reflect.DeepEqual(deps, expectedDeps) {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("edited manifest has unexpected dependencies; refusing to write it")
	}
	if !reflect.DeepEqual(withoutDependencies(doc), withoutDependencies(m.doc)) {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("edit changed content outside [dependencies]; refusing to write it")
	}
	return out, nil
}

// insertionPoint is the line after the last entry of the [dependencies]
// table, or right after its header when the table is empty.
func (m Manifest) insertionPoint() (int, bool) {
	at := -1
	inDeps := false
	for _, expr := range m.exprs {
		switch expr.kind {
		case unstable.Table, unstable.ArrayTable:
			if inDeps {
				return at, true
			}
			if expr.kind == unstable.Table && len(expr.path) == 1 && expr.path[0] == dependenciesTable {
				inDeps = true
				at = expr.line + 1
			}
		case unstable.KeyValue:
			if inDeps {
				at = expr.end
			}
		}
	}
	return at, at >= 0
}

// markTable marks a sub-table header and its body up to the next header,
// keeping the blank lines that separate it from what follows.
func (m Manifest) markTable(removed []bool, header int) {
	end := len(m.lines)
	for _, expr := range m.exprs[header+1:] {
		if expr.kind == unstable.Table || expr.kind == unstable.ArrayTable {
			end = expr.line
			break
		}
	}
	start := m.exprs[header].line
	markLines(removed, start, trimBlankTail(m.lines, start, end))
}

func markLines(removed []bool, start int, end int) {
	for i := start; i < end; i++ {
		removed[i] = true
	}
}

func (m Manifest) terminate(line string) string {
	if m.newline == "\r\n" {
		return line + "\r"
	}
	return line
}

func dependencyTable(doc map[string]any) (map[string]any, error) {
	value, ok := doc[dependenciesTable]
	if !ok {
		return map[string]any{}, nil
	}
	table, ok := value.(map[string]any)
	if !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("manifest dependencies is not a table")
	}
	return table, nil
}

func dependencyKeys(name string) []string {
	raw := strings.TrimSpace(name)
	sanitized := SanitizeDependencyKey(raw)
	if sanitized == raw {
		return []string{raw}
	}
	return []string{raw, sanitized}
}

func dependencyValue(dep types.Dependency) map[string]any {
	value := map[string]any{"git": dep.Git}
	if dep.Tag != "" {
		value["tag"] = dep.Tag
	}
	return value
}

func renderDependency(dep types.Dependency) string {
	fields := []string{"git = " + tomlQuote(dep.Git)}
	if dep.Tag != "" {
		fields = append(fields, "tag = "+tomlQuote(dep.Tag))
	}
	return fmt.Sprintf("%s = { %s }", tomlKey(dep.Key), strings.Join(fields, ", "))
}

func tomlKey(key string) string {
	if bareKeyPattern.MatchString(key) {
		return key
	}
	return tomlQuote(key)
}

func tomlQuote(value string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range value {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func cloneTable(table map[string]any) map[string]any {
	out := make(map[string]any, len(table))
	for key, value := range table {
		out[key] = value
	}
	return out
}

func withoutDependencies(doc map[string]any) map[string]any {
	out := cloneTable(doc)
	delete(out, dependenciesTable)
	return out
}

// insertLines inserts block before line at. Appending to a document that
// does not end with a newline terminates its last line and leaves the new
// last line unterminated.
func (m Manifest) insertLines(lines []string, at int, block ...string) []string {
	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:at]...)
	if at == len(lines) {
		out[at-1] = m.terminate(out[at-1])
		out = append(out, block...)
		out[len(out)-1] = strings.TrimSuffix(out[len(out)-1], "\r")
		return out
	}
	out = append(out, block...)
	return append(out, lines[at:]...)
}

func hasContent(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return true
		}
	}
	return false
}

// expression is a top-level TOML expression located by line: a comment,
// a key/value pair or a table header. end is the first line after it.
type expression struct {
	kind unstable.Kind
	path []string
	line int
	end  int
}

func scanExpressions(data []byte, lines []string) ([]expression, error) {
	p := unstable.Parser{KeepComments: true}
	p.Reset(data)
	var exprs []expression
	for p.NextExpression() {
		node := p.Expression()
		expr := expression{kind: node.Kind}
		switch node.Kind {
		case unstable.Comment:
			expr.line = lineAt(data, node.Raw.Offset)
		case unstable.KeyValue, unstable.Table, unstable.ArrayTable:
			keys := node.Key()
			for keys.Next() {
				key := keys.Node()
				if len(expr.path) == 0 {
					expr.line = lineAt(data, key.Raw.Offset)
				}
				expr.path = append(expr.path, string(key.Data))
			}
		default:
			continue
		}
		exprs = append(exprs, expr)
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	for i := range exprs {
		next := len(lines)
		for _, later := range exprs[i+1:] {
			if later.line > exprs[i].line {
				next = later.line
				break
			}
		}
		exprs[i].end = trimBlankTail(lines, exprs[i].line, next)
	}
	return exprs, nil
}

func lineAt(data []byte, offset uint32) int {
	return bytes.Count(data[:offset], []byte("\n"))
}

// trimBlankTail moves end back over blank lines, never past start+1.
func trimBlankTail(lines []string, start int, end int) int {
	for end > start+1 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return end
}
