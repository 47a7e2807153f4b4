package article

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// metadata is the typed view of an article's front matter. Scalars keep their
// source text, so `publishedAt: 2024-01-15` stays "2024-01-15" rather than
// becoming a timestamp.
type metadata struct {
	Title       text     `yaml:"title"`
	Slug        text     `yaml:"slug"`
	Excerpt     text     `yaml:"excerpt"`
	PublishedAt text     `yaml:"publishedAt"`
	Tags        textList `yaml:"tags"`
	ReadingTime minutes  `yaml:"readingTime"`
}

// text accepts any YAML scalar and keeps its literal value. Null is empty.
type text string

func (t *text) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	if node.Tag == "!!null" {
		*t = ""
		return nil
	}
	*t = text(strings.TrimSpace(node.Value))
	return nil
}

// textList accepts a sequence of scalars or a single comma-separated scalar.
type textList []string

func (l *textList) UnmarshalYAML(node *yaml.Node) error {
	var out []string
	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected scalar list items", item.Line)
			}
			if v := strings.TrimSpace(item.Value); v != "" && item.Tag != "!!null" {
				out = append(out, v)
			}
		}
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			break
		}
		for _, part := range strings.Split(node.Value, ",") {
			if v := strings.TrimSpace(part); v != "" {
				out = append(out, v)
			}
		}
	default:
		return fmt.Errorf("line %d: expected a list", node.Line)
	}
	*l = out
	return nil
}

// minutes accepts an integer scalar. Anything unparsable counts as absent.
type minutes int

func (m *minutes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(node.Value))
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(node.Value), 64)
		if ferr != nil {
			*m = 0
			return nil
		}
		n = int(f)
	}
	*m = minutes(n)
	return nil
}
