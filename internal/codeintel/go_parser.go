package codeintel

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"

	"muninn/internal/store"
)

// GoParser extracts symbols from Go source using the standard library's
// own parser -- precise, no heuristics needed for this language.
type GoParser struct{}

func (p *GoParser) Extensions() []string { return []string{".go"} }

func (p *GoParser) Parse(path string, content []byte) ([]store.Symbol, []Import, error) {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}

	var symbols []store.Symbol
	structMethods := make(map[string][]string) // struct name -> method refs, recursive parent linking

	for _, decl := range node.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			sym := p.parseFunc(fset, d)
			symbols = append(symbols, sym)
			if sym.ParentClass != "" {
				structMethods[sym.ParentClass] = append(structMethods[sym.ParentClass], sym.Name)
			}

		case *ast.GenDecl:
			symbols = append(symbols, p.parseGenDecl(fset, d)...)
		}
	}

	imports := p.parseImports(node, path)
	return symbols, imports, nil
}

func (p *GoParser) parseFunc(fset *token.FileSet, d *ast.FuncDecl) store.Symbol {
	name := d.Name.Name
	kind := store.SymbolFunction
	var parent string

	if d.Recv != nil && len(d.Recv.List) > 0 {
		kind = store.SymbolMethod
		parent = receiverTypeName(d.Recv.List[0].Type)
	}

	startLine := fset.Position(d.Pos()).Line
	endLine := fset.Position(d.End()).Line

	var params, returns []string
	if d.Type.Params != nil {
		for _, f := range d.Type.Params.List {
			params = append(params, exprString(f.Type))
		}
	}
	if d.Type.Results != nil {
		for _, f := range d.Type.Results.List {
			returns = append(returns, exprString(f.Type))
		}
	}

	return store.Symbol{
		Name:        name,
		Kind:        kind,
		Signature:   funcSignature(name, d.Type),
		LineStart:   startLine,
		LineEnd:     endLine,
		IsExported:  isExportedGoName(name),
		Parameters:  strings.Join(params, ", "),
		Returns:     strings.Join(returns, ", "),
		ParentClass: parent,
	}
}

func (p *GoParser) parseGenDecl(fset *token.FileSet, d *ast.GenDecl) []store.Symbol {
	var symbols []store.Symbol

	switch d.Tok {
	case token.TYPE:
		for _, spec := range d.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			kind := store.SymbolType
			switch ts.Type.(type) {
			case *ast.StructType:
				kind = store.SymbolClass
			case *ast.InterfaceType:
				kind = store.SymbolInterface
			}
			symbols = append(symbols, store.Symbol{
				Name:       ts.Name.Name,
				Kind:       kind,
				Signature:  "type " + ts.Name.Name,
				LineStart:  fset.Position(ts.Pos()).Line,
				LineEnd:    fset.Position(ts.End()).Line,
				IsExported: isExportedGoName(ts.Name.Name),
			})
		}
	case token.CONST:
		for _, spec := range d.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, n := range vs.Names {
				symbols = append(symbols, store.Symbol{
					Name:       n.Name,
					Kind:       store.SymbolConstant,
					Signature:  "const " + n.Name,
					LineStart:  fset.Position(vs.Pos()).Line,
					LineEnd:    fset.Position(vs.End()).Line,
					IsExported: isExportedGoName(n.Name),
				})
			}
		}
	}
	return symbols
}

func (p *GoParser) parseImports(node *ast.File, selfPath string) []Import {
	var out []Import
	dir := filepath.Dir(selfPath)
	for _, imp := range node.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		binding := filepath.Base(path)
		if imp.Name != nil {
			binding = imp.Name.Name
		}
		resolved := ""
		if strings.HasPrefix(path, ".") {
			resolved = filepath.Join(dir, path)
		}
		out = append(out, Import{Binding: binding, Namespace: true, Path: path, ResolvedFile: resolved})
	}
	return out
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	}
	return ""
}

func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.MapType:
		return "map[" + exprString(t.Key) + "]" + exprString(t.Value)
	case *ast.InterfaceType:
		return "interface{}"
	default:
		return ""
	}
}

func funcSignature(name string, t *ast.FuncType) string {
	var b strings.Builder
	b.WriteString("func ")
	b.WriteString(name)
	b.WriteString("(")
	if t.Params != nil {
		for i, f := range t.Params.List {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(exprString(f.Type))
		}
	}
	b.WriteString(")")
	if t.Results != nil && len(t.Results.List) > 0 {
		b.WriteString(" ")
		if len(t.Results.List) > 1 {
			b.WriteString("(")
		}
		for i, f := range t.Results.List {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(exprString(f.Type))
		}
		if len(t.Results.List) > 1 {
			b.WriteString(")")
		}
	}
	return b.String()
}
