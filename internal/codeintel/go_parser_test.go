package codeintel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muninn/internal/store"
)

const sampleGoSource = `package sample

import "fmt"

type Widget struct {
	Name string
}

func (w *Widget) Describe() string {
	return fmt.Sprintf("widget: %s", w.Name)
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}

const MaxWidgets = 10

type Kind int
`

func TestGoParser_ExtractsSymbolKinds(t *testing.T) {
	p := &GoParser{}
	symbols, imports, err := p.Parse("sample.go", []byte(sampleGoSource))
	require.NoError(t, err)
	require.NotEmpty(t, symbols)

	byName := make(map[string]store.Symbol)
	for _, s := range symbols {
		byName[s.Name] = s
	}

	require.Contains(t, byName, "Describe")
	assert.Equal(t, store.SymbolMethod, byName["Describe"].Kind)
	assert.Equal(t, "Widget", byName["Describe"].ParentClass)

	require.Contains(t, byName, "NewWidget")
	assert.Equal(t, store.SymbolFunction, byName["NewWidget"].Kind)

	require.Contains(t, byName, "MaxWidgets")
	assert.Equal(t, store.SymbolConstant, byName["MaxWidgets"].Kind)

	require.Len(t, imports, 1)
	assert.Equal(t, "fmt", imports[0].Path)
}

func TestGoParser_RejectsInvalidSyntax(t *testing.T) {
	p := &GoParser{}
	_, _, err := p.Parse("broken.go", []byte("this is not valid go `{"))
	assert.Error(t, err)
}

func TestGoParser_Extensions(t *testing.T) {
	p := &GoParser{}
	assert.Equal(t, []string{".go"}, p.Extensions())
}
