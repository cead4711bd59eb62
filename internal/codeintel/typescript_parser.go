package codeintel

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"muninn/internal/store"
)

// TSParser extracts symbols from TypeScript/JavaScript source via
// tree-sitter, grounded in its grammar's named node types rather than
// regexes -- functions, arrow-assigned functions, classes (with their
// methods, recursively), interfaces, type aliases, enums, and top-level
// constants.
type TSParser struct{}

func (p *TSParser) Extensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}
}

func (p *TSParser) Parse(path string, content []byte) ([]store.Symbol, []Import, error) {
	lang := typescript.GetLanguage()
	if strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".jsx") ||
		strings.HasSuffix(path, ".mjs") || strings.HasSuffix(path, ".cjs") {
		lang = javascript.GetLanguage()
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, err
	}
	root := tree.RootNode()

	var symbols []store.Symbol
	var imports []Import
	walkTop(root, content, "", &symbols, &imports)
	return symbols, imports, nil
}

func walkTop(n *sitter.Node, src []byte, parent string, symbols *[]store.Symbol, imports *[]Import) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "function_declaration":
			*symbols = append(*symbols, funcSymbol(child, src, parent, store.SymbolFunction))

		case "class_declaration":
			name := childText(child, "name", src)
			*symbols = append(*symbols, store.Symbol{
				Name:       name,
				Kind:       store.SymbolClass,
				Signature:  "class " + name,
				LineStart:  int(child.StartPoint().Row) + 1,
				LineEnd:    int(child.EndPoint().Row) + 1,
				IsExported: isExportedNode(child),
			})
			if body := child.ChildByFieldName("body"); body != nil {
				walkClassMembers(body, src, name, symbols)
			}

		case "interface_declaration":
			name := childText(child, "name", src)
			*symbols = append(*symbols, store.Symbol{
				Name:       name,
				Kind:       store.SymbolInterface,
				Signature:  "interface " + name,
				LineStart:  int(child.StartPoint().Row) + 1,
				LineEnd:    int(child.EndPoint().Row) + 1,
				IsExported: isExportedNode(child),
			})

		case "type_alias_declaration":
			name := childText(child, "name", src)
			*symbols = append(*symbols, store.Symbol{
				Name:       name,
				Kind:       store.SymbolType,
				Signature:  "type " + name,
				LineStart:  int(child.StartPoint().Row) + 1,
				LineEnd:    int(child.EndPoint().Row) + 1,
				IsExported: isExportedNode(child),
			})

		case "enum_declaration":
			name := childText(child, "name", src)
			*symbols = append(*symbols, store.Symbol{
				Name:       name,
				Kind:       store.SymbolEnum,
				Signature:  "enum " + name,
				LineStart:  int(child.StartPoint().Row) + 1,
				LineEnd:    int(child.EndPoint().Row) + 1,
				IsExported: isExportedNode(child),
			})

		case "lexical_declaration", "variable_declaration":
			*symbols = append(*symbols, arrowOrConstSymbols(child, src)...)

		case "export_statement":
			// Recurse into the exported declaration, tagging it exported.
			walkTop(child, src, parent, symbols, imports)

		case "import_statement":
			if imp := parseTSImport(child, src); imp != nil {
				*imports = append(*imports, *imp)
			}
		}
	}
}

func walkClassMembers(body *sitter.Node, src []byte, className string, symbols *[]store.Symbol) {
	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		if member == nil || member.Type() != "method_definition" {
			continue
		}
		name := childText(member, "name", src)
		*symbols = append(*symbols, store.Symbol{
			Name:        name,
			Kind:        store.SymbolMethod,
			Signature:   className + "." + name + "(...)",
			LineStart:   int(member.StartPoint().Row) + 1,
			LineEnd:     int(member.EndPoint().Row) + 1,
			IsExported:  true,
			ParentClass: className,
		})
	}
}

func funcSymbol(n *sitter.Node, src []byte, parent, kind string) store.Symbol {
	name := childText(n, "name", src)
	return store.Symbol{
		Name:        name,
		Kind:        kind,
		Signature:   "function " + name + "(...)",
		LineStart:   int(n.StartPoint().Row) + 1,
		LineEnd:     int(n.EndPoint().Row) + 1,
		IsExported:  isExportedNode(n),
		ParentClass: parent,
	}
}

// arrowOrConstSymbols handles `const foo = (...) => {...}` (function kind)
// and plain top-level `const X = ...` (constant kind).
func arrowOrConstSymbols(n *sitter.Node, src []byte) []store.Symbol {
	var out []store.Symbol
	for i := 0; i < int(n.ChildCount()); i++ {
		decl := n.Child(i)
		if decl == nil || decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		valueNode := decl.ChildByFieldName("value")
		if nameNode == nil {
			continue
		}
		name := nameNode.Content(src)
		kind := store.SymbolConstant
		sig := "const " + name
		if valueNode != nil && (valueNode.Type() == "arrow_function" || valueNode.Type() == "function") {
			kind = store.SymbolFunction
			sig = "const " + name + " = (...) => {...}"
		}
		out = append(out, store.Symbol{
			Name:       name,
			Kind:       kind,
			Signature:  sig,
			LineStart:  int(n.StartPoint().Row) + 1,
			LineEnd:    int(n.EndPoint().Row) + 1,
			IsExported: isExportedNode(n),
		})
	}
	return out
}

func parseTSImport(n *sitter.Node, src []byte) *Import {
	var pathStr string
	if src2 := n.ChildByFieldName("source"); src2 != nil {
		pathStr = strings.Trim(src2.Content(src), `"'`)
	}
	if pathStr == "" {
		return nil
	}
	binding := ""
	namespace := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "import_clause":
			binding, namespace = extractImportClause(c, src)
		}
	}
	return &Import{Binding: binding, Namespace: namespace, Path: pathStr}
}

func extractImportClause(n *sitter.Node, src []byte) (string, bool) {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "identifier":
			return c.Content(src), false
		case "namespace_import":
			return c.Content(src), true
		case "named_imports":
			return "", false
		}
	}
	return "", false
}

func childText(n *sitter.Node, field string, src []byte) string {
	f := n.ChildByFieldName(field)
	if f == nil {
		return ""
	}
	return f.Content(src)
}

func isExportedNode(n *sitter.Node) bool {
	p := n.Parent()
	return p != nil && p.Type() == "export_statement"
}
