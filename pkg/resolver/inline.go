package resolver

import (
	"regexp"

	"github.com/animalet/configobj/pkg/node"
)

// placeholder matches "${target}". Targets are limited to word characters and . / - @ #.
var placeholder = regexp.MustCompile(`\$\{([\w./\-@#]+)\}`)

// interpolate replaces every placeholder of a String node, left to right. Placeholders
// are never required: one that cannot be resolved becomes the empty string.
func (p *pass) interpolate(n *node.Node) *node.Node {
	text, _ := n.AsString()
	if !placeholder.MatchString(text) {
		return n
	}

	expanded := placeholder.ReplaceAllStringFunc(text, func(match string) string {
		target := placeholder.FindStringSubmatch(match)[1]
		value, err := p.lookup(target)
		if err != nil {
			p.failed(target, err)
			return ""
		}
		return value.Render()
	})
	return node.NewString(expanded)
}
