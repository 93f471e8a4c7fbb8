package event

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Node is a small DOM-like tree built by walking an encoding/xml token
// stream, used to expose text/event-xml bodies without requiring callers
// to know FreeSWITCH's XML event schema up front.
type Node struct {
	Name     string
	Attrs    []xml.Attr
	Text     string
	Children []*Node
}

// Child returns the first direct child named name, if any.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// XML parses the body as XML, returning the root element as a Node
// tree.
func (p Projection) XML() (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(p.e.Bytes()))

	root, err := nextElement(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	return root, nil
}

func nextElement(dec *xml.Decoder) (*Node, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return buildNode(dec, start)
		}
	}
}

func buildNode(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	node := &Node{Name: start.Name.Local, Attrs: start.Attr}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := buildNode(dec, t)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)

		case xml.CharData:
			node.Text += string(t)

		case xml.EndElement:
			return node, nil
		}
	}
}
