// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transform rewrites native note markup (ENML) into
// renderer-neutral intermediate markup. ENML is XML with extension
// elements (en-media, en-todo, en-crypt) that no downstream renderer
// understands; the transformer replaces them with plain HTML using the
// note's resource map, and unwraps the en-note root.
package transform

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/make0x0/enex2md/pkg/types"
)

// ResourceFolder is the fixed per-note subfolder resource links point
// into. The resource processor and the transformer must agree on it.
const ResourceFolder = "note_contents"

// Error reports malformed note markup. It is a per-note failure; the
// batch continues with the next note.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transforming content: %v", e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Transform rewrites content into intermediate markup using resources,
// keyed by content hash. It returns the inner markup of the root
// en-note element; the wrapping root itself is discarded.
func Transform(content string, resources map[string]*types.ProcessedResource) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	root, err := parseTree(content)
	if err != nil {
		return "", &Error{Err: err}
	}
	rewrite(root, resources)

	target := findElement(root, "en-note")
	if target == nil {
		target = root
	}
	var b strings.Builder
	for c := target.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", &Error{Err: err}
		}
	}
	return b.String(), nil
}

// parseTree parses the XML document into an html.Node tree. Strict XML
// parsing keeps malformed markup detectable, which the tolerant HTML
// parser would silently repair; rendering still goes through html.Render
// so escaping and void elements come out right.
func parseTree(content string) (*html.Node, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.Entity = xml.HTMLEntity

	root := &html.Node{Type: html.DocumentNode}
	stack := []*html.Node{root}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		parent := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			node := element(t.Name.Local)
			for _, a := range t.Attr {
				node.Attr = append(node.Attr, html.Attribute{Key: a.Name.Local, Val: a.Value})
			}
			parent.AppendChild(node)
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 1 {
				return nil, fmt.Errorf("unbalanced end element </%s>", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			parent.AppendChild(&html.Node{Type: html.TextNode, Data: string(t)})
		}
		// ProcInst, Directive, Comment: not part of the output.
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].Data)
	}
	return root, nil
}

func element(name string, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: name, Attr: attrs}
}

func attr(key, val string) html.Attribute { return html.Attribute{Key: key, Val: val} }

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

// rewrite replaces extension elements throughout the tree.
func rewrite(n *html.Node, resources map[string]*types.ProcessedResource) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		rewrite(c, resources)
		if c.Type != html.ElementNode {
			continue
		}
		var repl *html.Node
		switch c.Data {
		case "en-media":
			repl = mediaNode(c, resources)
		case "en-todo":
			repl = todoNode(c)
		case "en-crypt":
			repl = cryptNode(c)
		default:
			continue
		}
		if repl == nil {
			n.RemoveChild(c)
			continue
		}
		n.InsertBefore(repl, c)
		n.RemoveChild(c)
	}
}

// mediaNode resolves a media reference by content hash. Image types
// become inline images, displayable documents an embeddable preview with
// a fallback link, everything else a plain download link. References to
// unknown hashes are dropped.
func mediaNode(media *html.Node, resources map[string]*types.ProcessedResource) *html.Node {
	res, ok := resources[getAttr(media, "hash")]
	if !ok {
		return nil
	}
	link := ResourceFolder + "/" + res.FileName
	mime := getAttr(media, "type")
	if mime == "" {
		mime = res.Mime
	}

	switch {
	case strings.HasPrefix(mime, "image/"):
		return element("img", attr("src", link), attr("alt", res.FileName))

	case mime == "application/pdf":
		obj := element("object",
			attr("data", link),
			attr("type", mime),
			attr("width", "100%"),
			attr("height", "600px"),
		)
		fallback := element("p")
		fallback.AppendChild(&html.Node{Type: html.TextNode, Data: "Document cannot be displayed. "})
		a := element("a", attr("href", link))
		a.AppendChild(&html.Node{Type: html.TextNode, Data: "Download " + res.FileName})
		fallback.AppendChild(a)
		obj.AppendChild(fallback)
		return obj

	default:
		a := element("a", attr("href", link))
		a.AppendChild(&html.Node{Type: html.TextNode, Data: res.FileName})
		return a
	}
}

func todoNode(todo *html.Node) *html.Node {
	input := element("input", attr("type", "checkbox"))
	if getAttr(todo, "checked") == "true" {
		input.Attr = append(input.Attr, attr("checked", "checked"))
	}
	return input
}

// cryptNode wraps encrypted content in a placeholder container carrying
// the cipher payload and optional hint; decryption itself is a
// renderer/client concern.
func cryptNode(crypt *html.Node) *html.Node {
	var cipher strings.Builder
	for c := crypt.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			cipher.WriteString(c.Data)
		}
	}
	wrapper := element("div",
		attr("class", "en-crypt-container"),
		attr("data-hint", getAttr(crypt, "hint")),
		attr("data-cipher", strings.TrimSpace(cipher.String())),
	)
	fallback := element("span", attr("class", "en-crypt-fallback"))
	fallback.AppendChild(&html.Node{Type: html.TextNode, Data: "[Encrypted Content]"})
	wrapper.AppendChild(fallback)
	return wrapper
}
