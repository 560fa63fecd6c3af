// Package outline adds a stroked outline layer beneath SVG artwork so icons
// stay legible on dark backgrounds.
package outline

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// GroupID is the id of the inserted outline group
const GroupID = "outline"

var (
	// ErrNotSVG is returned when the document root is not an <svg> element
	ErrNotSVG = errors.New("document root is not svg")

	// ErrNothingToOutline is returned when the svg holds no drawable elements
	ErrNothingToOutline = errors.New("svg has no drawable elements")
)

// drawable lists the element tags copied into the outline layer
var drawable = map[string]bool{
	"g":        true,
	"path":     true,
	"circle":   true,
	"ellipse":  true,
	"line":     true,
	"polyline": true,
	"polygon":  true,
	"rect":     true,
	"use":      true,
	"text":     true,
}

// Transformer outlines SVG documents
type Transformer struct {
	Stroke string
	Width  float64
}

// New creates a transformer with the given stroke colour and width
func New(stroke string, width float64) *Transformer {
	if stroke == "" {
		stroke = "#FFFFFF"
	}
	if width <= 0 {
		width = 6
	}
	return &Transformer{Stroke: stroke, Width: width}
}

// Name identifies the transform in logs and metrics
func (t *Transformer) Name() string {
	return "outline"
}

// Transform returns src with an outline group inserted ahead of the drawable
// children of the root element. Documents that already carry one are returned unchanged.
func (t *Transformer) Transform(src []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(src); err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, ErrNotSVG
	}
	if root.FindElement("./g[@id='"+GroupID+"']") != nil {
		return src, nil
	}

	var shapes []*etree.Element
	for _, child := range root.ChildElements() {
		if drawable[child.Tag] {
			shapes = append(shapes, child)
		}
	}
	if len(shapes) == 0 {
		return nil, ErrNothingToOutline
	}

	group := etree.NewElement("g")
	group.CreateAttr("id", GroupID)
	for _, shape := range shapes {
		c := shape.Copy()
		t.stroke(c)
		group.AddChild(c)
	}

	// underneath the artwork: before the first drawable element
	root.InsertChildAt(shapes[0].Index(), group)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize svg: %w", err)
	}
	return out, nil
}

// stroke restyles el and its descendants as an unfilled outline
func (t *Transformer) stroke(el *etree.Element) {
	el.RemoveAttr("id")
	el.RemoveAttr("style")
	el.RemoveAttr("class")
	if el.Tag != "g" {
		el.CreateAttr("fill", "none")
		el.CreateAttr("stroke", t.Stroke)
		el.CreateAttr("stroke-width", strconv.FormatFloat(t.Width, 'f', -1, 64))
		el.CreateAttr("stroke-linejoin", "round")
		el.CreateAttr("stroke-linecap", "round")
	}
	for _, child := range el.ChildElements() {
		t.stroke(child)
	}
}
