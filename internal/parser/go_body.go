package parser

import (
	"go/ast"
	"go/token"
	"strings"

	"codeplane/internal/model"
)

// shapeAccum collects the fields and methods observed on one receiver
// expression within one scope, the input ReceiverShapeFact snapshots.
type shapeAccum struct {
	fields  map[string]bool
	methods map[string]bool
}

// extractBody walks one function/method body and emits the scope, ref,
// member-access, receiver-shape, local-bind and dynamic-access facts
// attributed to it. Go has no dynamic dispatch without reflection or an
// interface, so the unknowns this pass leaves behind are narrower than the
// tree-sitter languages': only unexported call targets and shape-only
// receivers stay unresolved until the resolver passes run.
func (p *GoParser) extractBody(fset *token.FileSet, d *ast.FuncDecl, defUID string) (
	scope model.ScopeFact,
	refs []model.RefFact,
	access []model.MemberAccessFact,
	shapes []model.ReceiverShapeFact,
	binds []model.LocalBindFact,
	dyn []model.DynamicAccessSite,
) {
	start := fset.Position(d.Pos()).Line
	end := fset.Position(d.End()).Line
	scope = model.ScopeFact{DefUID: defUID, StartLine: start, EndLine: end}

	shapeAccums := make(map[string]*shapeAccum)
	shapeFor := func(recv string) *shapeAccum {
		a, ok := shapeAccums[recv]
		if !ok {
			a = &shapeAccum{fields: map[string]bool{}, methods: map[string]bool{}}
			shapeAccums[recv] = a
		}
		return a
	}

	bindLocal := func(name string, typeName string, pos token.Pos) {
		if name == "" || name == "_" || typeName == "" {
			return
		}
		binds = append(binds, model.LocalBindFact{
			ScopeDefUID: defUID, Name: name, BoundTypeName: typeName,
			Line: fset.Position(pos).Line,
		})
	}

	if d.Recv != nil {
		for _, f := range d.Recv.List {
			typeName := strings.TrimPrefix(exprString(f.Type), "*")
			for _, n := range f.Names {
				bindLocal(n.Name, typeName, n.Pos())
			}
		}
	}
	if d.Type.Params != nil {
		for _, f := range d.Type.Params.List {
			typeName := namedTypeOf(f.Type)
			if typeName == "" {
				continue
			}
			for _, n := range f.Names {
				bindLocal(n.Name, typeName, n.Pos())
			}
		}
	}

	if d.Body == nil {
		return
	}

	visitedSelectors := make(map[token.Pos]bool)

	ast.Inspect(d.Body, func(n ast.Node) bool {
		switch nd := n.(type) {
		case *ast.AssignStmt:
			if nd.Tok != token.DEFINE {
				return true
			}
			for i, lhs := range nd.Lhs {
				ident, ok := lhs.(*ast.Ident)
				if !ok || i >= len(nd.Rhs) {
					continue
				}
				if tn := constructedTypeName(nd.Rhs[i]); tn != "" {
					bindLocal(ident.Name, tn, ident.Pos())
				}
			}
		case *ast.DeclStmt:
			gd, ok := nd.Decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.VAR {
				return true
			}
			for _, spec := range gd.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				typeName := ""
				if vs.Type != nil {
					typeName = namedTypeOf(vs.Type)
				}
				for i, n := range vs.Names {
					tn := typeName
					if tn == "" && i < len(vs.Values) {
						tn = constructedTypeName(vs.Values[i])
					}
					bindLocal(n.Name, tn, n.Pos())
				}
			}
		case *ast.TypeAssertExpr:
			dyn = append(dyn, model.DynamicAccessSite{
				Line: fset.Position(nd.Pos()).Line, Reason: "type_assertion",
			})
		case *ast.CallExpr:
			switch fn := nd.Fun.(type) {
			case *ast.Ident:
				refs = append(refs, model.RefFact{FromDefUID: defUID, Name: fn.Name, Line: fset.Position(fn.Pos()).Line})
			case *ast.SelectorExpr:
				if recvIdent, ok := fn.X.(*ast.Ident); ok {
					if recvIdent.Name == "reflect" {
						dyn = append(dyn, model.DynamicAccessSite{
							Line: fset.Position(nd.Pos()).Line, Reason: "reflect_call:" + fn.Sel.Name,
						})
						break
					}
					visitedSelectors[fn.Pos()] = true
					recordAccess(&access, shapeFor(recvIdent.Name), recvIdent.Name, fn.Sel.Name, fset.Position(fn.Pos()).Line, true)
				}
			}
		case *ast.SelectorExpr:
			if visitedSelectors[nd.Pos()] {
				return true
			}
			if recvIdent, ok := nd.X.(*ast.Ident); ok {
				recordAccess(&access, shapeFor(recvIdent.Name), recvIdent.Name, nd.Sel.Name, fset.Position(nd.Pos()).Line, false)
			}
		}
		return true
	})

	for recv, acc := range shapeAccums {
		shapes = append(shapes, model.ReceiverShapeFact{
			ScopeDefUID:      defUID,
			ReceiverExprHash: ExprHash(recv),
			ObservedFields:   sortedKeys(acc.fields),
			ObservedMethods:  sortedKeys(acc.methods),
		})
	}

	return
}

func recordAccess(access *[]model.MemberAccessFact, acc *shapeAccum, recv, member string, line int, isMethod bool) {
	*access = append(*access, model.MemberAccessFact{
		ReceiverExprHash: ExprHash(recv), MemberName: member, Line: line,
	})
	if isMethod {
		acc.methods[member] = true
	} else {
		acc.fields[member] = true
	}
}

// namedTypeOf returns the bare type name for a parameter/field type
// expression when it names a single known type (possibly through a
// pointer), or "" for builtins, slices, maps and other shapes a
// LocalBindFact can't usefully carry.
func namedTypeOf(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.Ident:
		if t.Obj == nil && isBuiltinType(t.Name) {
			return ""
		}
		return t.Name
	case *ast.StarExpr:
		return namedTypeOf(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	default:
		return ""
	}
}

func isBuiltinType(name string) bool {
	switch name {
	case "string", "bool", "byte", "rune", "error",
		"int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
		"float32", "float64", "complex64", "complex128", "any":
		return true
	default:
		return false
	}
}

// constructedTypeName recognizes `Foo{...}`, `&Foo{...}` and `new(Foo)`
// expressions as binding their target to type Foo.
func constructedTypeName(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.CompositeLit:
		return namedTypeOf(t.Type)
	case *ast.UnaryExpr:
		if t.Op == token.AND {
			return constructedTypeName(t.X)
		}
	case *ast.CallExpr:
		if ident, ok := t.Fun.(*ast.Ident); ok && ident.Name == "new" && len(t.Args) == 1 {
			return namedTypeOf(t.Args[0])
		}
	}
	return ""
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
