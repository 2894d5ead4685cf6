package chunkparser

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/opencoderank/coderank/internal/hash"
	"github.com/opencoderank/coderank/internal/store"
	"github.com/opencoderank/coderank/internal/tokencount"
)

// GoParser extracts function, method, and type declarations from Go source
// using tree-sitter's Go grammar, preserving each declaration as a single
// chunk rather than splitting on lines or regex boundaries.
type GoParser struct {
	tokens *tokencount.Counter
}

// NewGoParser builds a parser that annotates each chunk's token_count with
// a real BPE count.
func NewGoParser() *GoParser {
	return &GoParser{tokens: tokencount.New()}
}

func (p *GoParser) Language() string { return "go" }

func (p *GoParser) Parse(ctx context.Context, content []byte, path, fileHash string) (Result, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return Result{Outcome: OutcomeFailure}, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		chunks := p.walk(root, content, path, fileHash)
		if len(chunks) == 0 {
			return Result{Outcome: OutcomeFailure}, nil
		}
		return Result{Chunks: chunks, Outcome: OutcomePartial}, nil
	}

	chunks := p.walk(root, content, path, fileHash)
	return Result{Chunks: chunks, Outcome: OutcomeSuccess}, nil
}

func (p *GoParser) walk(root *sitter.Node, content []byte, path, fileHash string) []store.Chunk {
	var chunks []store.Chunk
	breadcrumb := packageNameOf(root, content)

	n := int(root.ChildCount())
	for i := 0; i < n; i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_declaration":
			chunks = append(chunks, p.chunkFromDecl(child, content, path, fileHash, store.KindFunction, breadcrumb))
		case "method_declaration":
			chunks = append(chunks, p.chunkFromDecl(child, content, path, fileHash, store.KindMethod, breadcrumb))
		case "type_declaration":
			chunks = append(chunks, p.chunksFromTypeDecl(child, content, path, fileHash, breadcrumb)...)
		}
	}
	return chunks
}

func packageNameOf(root *sitter.Node, content []byte) string {
	n := int(root.ChildCount())
	for i := 0; i < n; i++ {
		child := root.Child(i)
		if child.Type() == "package_clause" {
			return strings.TrimSpace(child.Content(content))
		}
	}
	return ""
}

func (p *GoParser) chunkFromDecl(n *sitter.Node, content []byte, path, fileHash string, kind store.Kind, breadcrumb string) store.Chunk {
	body := n.Content(content)
	startLine := int(n.StartPoint().Row) + 1
	endLine := int(n.EndPoint().Row) + 1

	name := declName(n, content)
	signature := firstLine(body)
	docComment := precedingComment(n, content)

	c := NewChunk(chunkID(path, startLine, endLine), path, []byte(body), fileHash, kind)
	c.StartLine = startLine
	c.EndLine = endLine
	c.Signature = signature
	c.Breadcrumb = breadcrumb
	c.DocComment = docComment
	c.Language = "go"
	c.TokenCount = p.tokens.Count(body)
	if name != "" {
		c.Symbols = []string{name}
	}
	c.IsTypeDeclaration = false
	c.References = extractIdentifierRefs(n, content)
	return c
}

func (p *GoParser) chunksFromTypeDecl(n *sitter.Node, content []byte, path, fileHash string, breadcrumb string) []store.Chunk {
	var out []store.Chunk
	docComment := precedingComment(n, content)
	startLine := int(n.StartPoint().Row) + 1
	endLine := int(n.EndPoint().Row) + 1
	body := n.Content(content)

	childCount := int(n.ChildCount())
	for i := 0; i < childCount; i++ {
		spec := n.Child(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		name := ""
		if nameNode != nil {
			name = nameNode.Content(content)
		}

		c := NewChunk(chunkID(path, startLine, endLine), path, []byte(body), fileHash, store.KindType)
		c.StartLine = startLine
		c.EndLine = endLine
		c.Signature = firstLine(body)
		c.Breadcrumb = breadcrumb
		c.DocComment = docComment
		c.Language = "go"
		c.TokenCount = p.tokens.Count(body)
		if name != "" {
			c.Symbols = []string{name}
		}
		c.IsTypeDeclaration = true
		c.Conformances = nil // Go has no declared conformance list; interface satisfaction is structural.
		out = append(out, c)
	}
	return out
}

func declName(n *sitter.Node, content []byte) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return nameNode.Content(content)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// precedingComment walks backward over adjacent sibling comment nodes to
// recover a Go-style doc comment block immediately above a declaration.
func precedingComment(n *sitter.Node, content []byte) string {
	prev := n.PrevSibling()
	var lines []string
	for prev != nil && prev.Type() == "comment" {
		lines = append([]string{strings.TrimSpace(prev.Content(content))}, lines...)
		prev = prev.PrevSibling()
	}
	return strings.Join(lines, "\n")
}

func extractIdentifierRefs(n *sitter.Node, content []byte) []string {
	seen := map[string]struct{}{}
	var refs []string
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node.Type() == "identifier" || node.Type() == "type_identifier" {
			name := node.Content(content)
			if name != "" && unicode.IsUpper(rune(name[0])) {
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					refs = append(refs, name)
				}
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(n)
	return refs
}

func chunkID(path string, startLine, endLine int) string {
	return hash.String(fmt.Sprintf("%s:%d:%d", path, startLine, endLine))
}

var _ Parser = (*GoParser)(nil)
