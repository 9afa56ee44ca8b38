package advisor

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/ritzau/kube-playground/pkg/manifest"
)

// CheckRecords reports schema-level concerns about parsed manifests:
// dropped documents, missing apiVersion or name, names Kubernetes would
// reject, unknown kinds and duplicated resources.
func CheckRecords(res *manifest.Result) []Advice {
	var out []Advice
	add := func(rule string, sev Severity, doc, line int, format string, args ...any) {
		out = append(out, Advice{
			Rule:     rule,
			Severity: sev,
			Document: doc,
			Line:     line,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	for _, e := range res.Errors {
		add("dropped-document", SeverityWarning, e.Document, e.Line, "document ignored: %v", e)
	}

	seen := make(map[string]int)
	for i := range res.Records {
		rec := &res.Records[i]
		if rec.APIVersion == "" {
			add("missing-api-version", SeverityWarning, rec.Document, rec.Line, "%s has no apiVersion", rec.Kind)
		}
		if !rec.Type.Known() {
			add("unknown-kind", SeverityInfo, rec.Document, rec.Line, "kind %s is kept on the canvas but not regenerated", rec.Kind)
		}

		if rec.Name == "" {
			add("missing-name", SeverityWarning, rec.Document, rec.Line, "%s has no metadata.name", rec.Kind)
			continue
		}
		if errs := validation.IsDNS1123Subdomain(rec.Name); len(errs) > 0 {
			add("invalid-name", SeverityWarning, rec.Document, rec.Line, "%s name %q is invalid: %s", rec.Kind, rec.Name, strings.Join(errs, "; "))
		}

		key := fmt.Sprintf("%s/%s/%s", rec.Type, rec.Namespace, rec.Name)
		if first, dup := seen[key]; dup {
			add("duplicate-resource", SeverityWarning, rec.Document, rec.Line, "%s %q is already defined on line %d", rec.Kind, rec.Name, first)
		} else {
			seen[key] = rec.Line
		}
	}
	return out
}

// CheckText parses text and returns its CheckManifest advice.
func CheckText(text string) []Advice {
	return CheckManifest(manifest.Parse(text), text)
}

// CheckManifest returns CheckRecords advice for res, the parse result of
// text, followed by the duplicate mapping keys of text.
func CheckManifest(res *manifest.Result, text string) []Advice {
	return append(CheckRecords(res), DuplicateKeys(text)...)
}

// DuplicateKeys reports mapping keys that appear twice in one mapping. The
// parser silently keeps the last value.
func DuplicateKeys(text string) []Advice {
	var out []Advice
	dec := yaml.NewDecoder(strings.NewReader(text))
	for doc := 0; ; doc++ {
		var root yaml.Node
		err := dec.Decode(&root)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Syntax errors are reported per document by the parser.
			break
		}
		walkMappings(&root, func(key *yaml.Node, first int) {
			out = append(out, Advice{
				Rule:     "duplicate-key",
				Severity: SeverityWarning,
				Line:     key.Line,
				Message:  fmt.Sprintf("key %q repeats line %d; the last value wins", key.Value, first),
			})
		})
	}
	return out
}

func walkMappings(n *yaml.Node, dup func(key *yaml.Node, first int)) {
	if n.Kind == yaml.MappingNode {
		seen := make(map[string]int, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if first, ok := seen[key.Value]; ok {
				dup(key, first)
			} else {
				seen[key.Value] = key.Line
			}
		}
	}
	for _, c := range n.Content {
		walkMappings(c, dup)
	}
}
