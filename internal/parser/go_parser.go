package parser

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"codeplane/internal/model"
)

// GoParser implements CodeParser for Go source using the standard library
// go/ast instead of tree-sitter: Go already ships a complete, exact parser
// for its own grammar, so reaching for tree-sitter here would trade a more
// precise AST for a weaker one. Every other supported language lacks that
// luxury and goes through tree-sitter instead.
type GoParser struct{}

func NewGoParser() *GoParser { return &GoParser{} }

func (p *GoParser) Language() string             { return "go" }
func (p *GoParser) SupportedExtensions() []string { return []string{".go"} }

func (p *GoParser) Parse(path string, content []byte) (Extraction, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return Extraction{}, err
	}

	var ext Extraction
	pkgName := file.Name.Name

	structNames := make(map[string]bool)
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			if _, isStruct := ts.Type.(*ast.StructType); isStruct {
				structNames[ts.Name.Name] = true
			}
		}
	}

	for _, imp := range file.Imports {
		lit := strings.Trim(imp.Path.Value, `"`)
		name := ""
		if imp.Name != nil {
			name = imp.Name.Name
		}
		line := fset.Position(imp.Pos()).Line
		names := []string{}
		if name != "" {
			names = append(names, name)
		}
		ext.Imports = append(ext.Imports, model.ImportFact{
			SourceLiteral: lit,
			ImportedNames: names,
			Line:          line,
		})
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			def := p.parseFunc(fset, d, pkgName, content)
			ext.Defs = append(ext.Defs, def)
			scope, refs, access, shapes, binds, dyn := p.extractBody(fset, d, def.DefUID)
			ext.Scopes = append(ext.Scopes, scope)
			ext.Refs = append(ext.Refs, refs...)
			ext.MemberAccess = append(ext.MemberAccess, access...)
			ext.ReceiverShape = append(ext.ReceiverShape, shapes...)
			ext.LocalBinds = append(ext.LocalBinds, binds...)
			ext.Dynamic = append(ext.Dynamic, dyn...)
		case *ast.GenDecl:
			ext.Defs = append(ext.Defs, p.parseGenDecl(fset, d, pkgName, content)...)
			for _, df := range p.parseGenDecl(fset, d, pkgName, content) {
				if df.Kind == "type" {
					ext.TypeMembers = append(ext.TypeMembers, p.structMembers(d, df)...)
				}
			}
		}
	}
	return ext, nil
}

func (p *GoParser) parseFunc(fset *token.FileSet, d *ast.FuncDecl, pkgName string, content []byte) model.DefFact {
	name := d.Name.Name
	kind := "function"
	lexPath := name
	parent := ""
	if d.Recv != nil && len(d.Recv.List) > 0 {
		kind = "method"
		recvType := exprString(d.Recv.List[0].Type)
		recvType = strings.TrimPrefix(recvType, "*")
		parent = recvType
		lexPath = recvType + "." + name
	}
	start := fset.Position(d.Pos()).Line
	end := fset.Position(d.End()).Line
	sig := funcSignature(d)
	visibility := model.VisibilityPrivate
	if ast.IsExported(name) {
		visibility = model.VisibilityPublic
	}
	return model.DefFact{
		DefUID:        lexPath,
		Kind:          kind,
		Name:          name,
		LexicalPath:   lexPath,
		Signature:     sig,
		SignatureHash: SignatureHash(sig),
		Body:          string(content[clamp(d.Pos()-1, content):clamp(d.End()-1, content)]),
		StartLine:     start,
		EndLine:       end,
		Visibility:    visibility,
		ParentDefUID:  parent,
	}
}

func (p *GoParser) parseGenDecl(fset *token.FileSet, d *ast.GenDecl, pkgName string, content []byte) []model.DefFact {
	var out []model.DefFact
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			kind := "type"
			vis := model.VisibilityPrivate
			if ast.IsExported(s.Name.Name) {
				vis = model.VisibilityPublic
			}
			start := fset.Position(s.Pos()).Line
			end := fset.Position(s.End()).Line
			sig := "type " + s.Name.Name + " " + exprString(s.Type)
			out = append(out, model.DefFact{
				DefUID:        s.Name.Name,
				Kind:          kind,
				Name:          s.Name.Name,
				LexicalPath:   s.Name.Name,
				Signature:     sig,
				SignatureHash: SignatureHash(sig),
				Body:          string(content[clamp(s.Pos()-1, content):clamp(s.End()-1, content)]),
				StartLine:     start,
				EndLine:       end,
				Visibility:    vis,
			})
		case *ast.ValueSpec:
			kind := "variable"
			if d.Tok == token.CONST {
				kind = "constant"
			}
			for _, name := range s.Names {
				if name.Name == "_" {
					continue
				}
				vis := model.VisibilityPrivate
				if ast.IsExported(name.Name) {
					vis = model.VisibilityPublic
				}
				start := fset.Position(name.Pos()).Line
				out = append(out, model.DefFact{
					DefUID:      name.Name,
					Kind:        kind,
					Name:        name.Name,
					LexicalPath: name.Name,
					StartLine:   start,
					EndLine:     start,
					Visibility:  vis,
				})
			}
		}
	}
	return out
}

// structMembers emits TypeMemberFacts for a struct's fields (methods are
// linked separately via parseFunc's receiver parent).
func (p *GoParser) structMembers(d *ast.GenDecl, typeDef model.DefFact) []model.TypeMemberFact {
	var out []model.TypeMemberFact
	for _, spec := range d.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok || ts.Name.Name != typeDef.Name {
			continue
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			continue
		}
		for _, field := range st.Fields.List {
			for _, name := range field.Names {
				out = append(out, model.TypeMemberFact{
					TypeName:   typeDef.Name,
					MemberName: name.Name,
					IsMethod:   false,
				})
			}
		}
	}
	return out
}

func funcSignature(d *ast.FuncDecl) string {
	var b strings.Builder
	b.WriteString("func ")
	if d.Recv != nil && len(d.Recv.List) > 0 {
		b.WriteString("(" + exprString(d.Recv.List[0].Type) + ") ")
	}
	b.WriteString(d.Name.Name)
	b.WriteString(exprString(d.Type))
	return b.String()
}

func exprString(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.FuncType:
		return funcTypeString(t)
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return "map[" + exprString(t.Key) + "]" + exprString(t.Value)
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{}"
	default:
		return ""
	}
}

func funcTypeString(t *ast.FuncType) string {
	var b strings.Builder
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
	if t.Results != nil {
		if len(t.Results.List) == 1 {
			b.WriteString(" " + exprString(t.Results.List[0].Type))
		} else if len(t.Results.List) > 1 {
			b.WriteString(" (")
			for i, f := range t.Results.List {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(exprString(f.Type))
			}
			b.WriteString(")")
		}
	}
	return b.String()
}

func clamp(pos token.Pos, content []byte) int {
	i := int(pos)
	if i < 0 {
		return 0
	}
	if i > len(content) {
		return len(content)
	}
	return i
}
