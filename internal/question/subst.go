package question

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var varRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// SubstRenderer is a minimal Renderer that replaces {{ NAME }} placeholders
// with the corresponding variable. Non-string values are JSON encoded.
// It exists for the CLI and tests; production deployments plug in a real
// template engine behind the Renderer interface.
type SubstRenderer struct {
	// Strict makes references to undefined variables a TemplateError.
	Strict bool
}

func (r *SubstRenderer) Render(template string, vars map[string]any) (string, error) {
	var missing string
	out := varRe.ReplaceAllStringFunc(template, func(m string) string {
		name := varRe.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	})
	if missing != "" && r.Strict {
		return "", &TemplateError{Message: "undefined variable " + missing}
	}
	return out, nil
}
