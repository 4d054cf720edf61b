// Package labels maps classifier class ids to diagnosis names and back.
package labels

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Skufu/rxcompass/internal/apperr"
)

// Unseen is the id EncodeOrSentinel assigns to labels outside the fitted
// domain. Only evaluation code uses it; serving decodes model-native ids.
const Unseen = -1

type Codec struct {
	classes []string
	index   map[string]int
}

type document struct {
	Classes []string `yaml:"classes"`
}

// Fit builds a codec whose ids are the positions of the sorted distinct
// labels.
func Fit(labels []string) *Codec {
	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	c, _ := newCodec(classes)
	return c
}

func newCodec(classes []string) (*Codec, error) {
	index := make(map[string]int, len(classes))
	for i, name := range classes {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate class %q", name)
		}
		index[name] = i
	}
	return &Codec{classes: classes, index: index}, nil
}

// Load parses a YAML codec artifact.
func Load(data []byte) (*Codec, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode label codec: %w", err)
	}
	if len(doc.Classes) == 0 {
		return nil, fmt.Errorf("label codec has no classes")
	}
	return newCodec(doc.Classes)
}

func (c *Codec) Marshal() ([]byte, error) {
	return yaml.Marshal(document{Classes: c.classes})
}

func (c *Codec) Len() int { return len(c.classes) }

func (c *Codec) Classes() []string { return slices.Clone(c.classes) }

// Decode returns the label for id, or an apperr.Decode error when id is not
// in [0, Len()).
func (c *Codec) Decode(id int) (string, error) {
	if id < 0 || id >= len(c.classes) {
		return "", apperr.New(apperr.Decode,
			fmt.Sprintf("class id %d outside fitted domain of %d labels", id, len(c.classes)))
	}
	return c.classes[id], nil
}

func (c *Codec) DecodeAll(ids []int) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		label, err := c.Decode(id)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

func (c *Codec) Encode(label string) (int, bool) {
	id, ok := c.index[label]
	return id, ok
}

// EncodeOrSentinel encodes labels, mapping anything unseen to Unseen.
func (c *Codec) EncodeOrSentinel(labels []string) []int {
	out := make([]int, len(labels))
	for i, label := range labels {
		id, ok := c.index[label]
		if !ok {
			id = Unseen
		}
		out[i] = id
	}
	return out
}
