package article

import (
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pmeyes/internal/frontmatter"
)

// Fingerprint computes the content fingerprint of an article from its raw
// front matter and body. An existing fingerprint field is excluded, and the
// remaining fields are re-serialized with sorted keys so formatting-only edits
// to the front matter do not change the result.
func Fingerprint(fm, body []byte) (string, error) {
	fields, err := frontmatter.ParseYAML(fm)
	if err != nil {
		return "", err
	}
	delete(fields, mdfp.FingerprintField)

	canonical := ""
	if len(fields) > 0 {
		out, err := yaml.Marshal(fields)
		if err != nil {
			return "", err
		}
		canonical = strings.TrimSuffix(string(out), "\n")
	}
	return mdfp.CalculateFingerprintFromParts(canonical, string(body)), nil
}
