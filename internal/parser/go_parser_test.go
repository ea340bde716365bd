package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeplane/internal/model"
)

const goFixture = `package sample

import "fmt"

type Widget struct {
	Name string
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}

func (w *Widget) Describe() string {
	label := w.Name
	other := Widget{Name: "shadow"}
	helper := NewWidget("dup")
	fmt.Println(other.Describe())
	fmt.Println(helper.Name)
	if v, ok := interface{}(label).(string); ok {
		return v
	}
	return label
}
`

func TestGoParser_Parse_Defs(t *testing.T) {
	p := NewGoParser()

	ext, err := p.Parse("sample.go", []byte(goFixture))
	require.NoError(t, err)

	names := make(map[string]model.DefFact)
	for _, d := range ext.Defs {
		names[d.Name] = d
	}

	require.Contains(t, names, "Widget")
	assert.Equal(t, "type", names["Widget"].Kind)

	require.Contains(t, names, "NewWidget")
	assert.Equal(t, "function", names["NewWidget"].Kind)

	require.Contains(t, names, "Describe")
	assert.Equal(t, "method", names["Describe"].Kind)
	assert.Equal(t, "Widget", names["Describe"].ParentDefUID)
	assert.Equal(t, "Widget.Describe", names["Describe"].LexicalPath)
}

func TestGoParser_Parse_Imports(t *testing.T) {
	p := NewGoParser()

	ext, err := p.Parse("sample.go", []byte(goFixture))
	require.NoError(t, err)

	require.Len(t, ext.Imports, 1)
	assert.Equal(t, "fmt", ext.Imports[0].SourceLiteral)
}

func TestGoParser_Parse_RefsFromCallSites(t *testing.T) {
	p := NewGoParser()

	ext, err := p.Parse("sample.go", []byte(goFixture))
	require.NoError(t, err)

	var calledNames []string
	for _, r := range ext.Refs {
		calledNames = append(calledNames, r.Name)
	}
	assert.Contains(t, calledNames, "NewWidget")
}

func TestGoParser_Parse_MemberAccessOnSelector(t *testing.T) {
	p := NewGoParser()

	ext, err := p.Parse("sample.go", []byte(goFixture))
	require.NoError(t, err)

	var members []string
	for _, a := range ext.MemberAccess {
		members = append(members, a.MemberName)
	}
	assert.Contains(t, members, "Name")
	assert.Contains(t, members, "Describe")
}

func TestGoParser_Parse_ReceiverShapeTracksFieldsAndMethods(t *testing.T) {
	p := NewGoParser()

	ext, err := p.Parse("sample.go", []byte(goFixture))
	require.NoError(t, err)

	require.NotEmpty(t, ext.ReceiverShape)
	var found bool
	for _, s := range ext.ReceiverShape {
		if s.ReceiverExprHash == ExprHash("other") {
			found = true
			assert.Contains(t, s.ObservedMethods, "Describe")
		}
	}
	assert.True(t, found, "expected a receiver-shape fact for the 'other' local")
}

func TestGoParser_Parse_LocalBindsFromShortDeclAndConstructedLit(t *testing.T) {
	p := NewGoParser()

	ext, err := p.Parse("sample.go", []byte(goFixture))
	require.NoError(t, err)

	byName := make(map[string]model.LocalBindFact)
	for _, b := range ext.LocalBinds {
		byName[b.Name] = b
	}

	require.Contains(t, byName, "other")
	assert.Equal(t, "Widget", byName["other"].BoundTypeName)
}

func TestGoParser_Parse_DynamicAccessFromTypeAssertion(t *testing.T) {
	p := NewGoParser()

	ext, err := p.Parse("sample.go", []byte(goFixture))
	require.NoError(t, err)

	require.Len(t, ext.Dynamic, 1)
	assert.Equal(t, "type_assertion", ext.Dynamic[0].Reason)
}

func TestGoParser_Parse_ScopeSpansWholeFunctionBody(t *testing.T) {
	p := NewGoParser()

	ext, err := p.Parse("sample.go", []byte(goFixture))
	require.NoError(t, err)

	require.Len(t, ext.Scopes, 2)
	for _, s := range ext.Scopes {
		assert.Greater(t, s.EndLine, s.StartLine)
	}
}

func TestGoParser_SupportedExtensionsAndLanguage(t *testing.T) {
	p := NewGoParser()
	assert.Equal(t, "go", p.Language())
	assert.Equal(t, []string{".go"}, p.SupportedExtensions())
}

func TestGoParser_Parse_RejectsInvalidSyntax(t *testing.T) {
	p := NewGoParser()
	_, err := p.Parse("bad.go", []byte("package sample\nfunc broken( {\n"))
	assert.Error(t, err)
}
