// Package manifest converts between multi-document Kubernetes YAML and
// component records, and renders a graph back to YAML.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	"github.com/ritzau/kube-playground/pkg/finder"
	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/logging"
)

// Reason classifies why a document was dropped.
type Reason string

const (
	ReasonSyntax      Reason = "syntax"
	ReasonNotObject   Reason = "not-an-object"
	ReasonMissingKind Reason = "missing-kind"
)

// DocumentError describes a single document that could not be turned into a
// record. It never aborts the batch.
type DocumentError struct {
	// Document is the zero-based position of the document in the input text.
	Document int
	// Line is the one-based line the document starts on.
	Line   int
	Reason Reason
	Err    error
}

func (e *DocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document %d: %s: %v", e.Document, e.Reason, e.Err)
	}
	return fmt.Sprintf("document %d: %s", e.Document, e.Reason)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// ComponentRecord is one parsed manifest document.
type ComponentRecord struct {
	Kind            string
	Type            kinds.ComponentType
	APIVersion      string
	Name            string
	Namespace       string
	Labels          map[string]string
	OwnerReferences []metav1.OwnerReference
	Object          *unstructured.Unstructured

	// Index is the position of the record among accepted records.
	Index int
	// Document is the position of the source document in the input text,
	// Line the one-based line it starts on.
	Document int
	Line     int
}

// Spec returns the record's spec mapping, or nil.
func (r *ComponentRecord) Spec() map[string]any {
	spec, _, _ := unstructured.NestedMap(r.Object.Object, "spec")
	return spec
}

// Result is the outcome of parsing one text blob.
type Result struct {
	Records []ComponentRecord
	Errors  []*DocumentError
	// Documents counts the non-empty documents seen.
	Documents int
}

// SyntaxOnly reports whether the text held documents and every one of them
// failed to parse as YAML.
func (r *Result) SyntaxOnly() bool {
	if r.Documents == 0 || len(r.Records) > 0 {
		return false
	}
	for _, e := range r.Errors {
		if e.Reason != ReasonSyntax {
			return false
		}
	}
	return true
}

// Err joins the per-document errors, or returns nil.
func (r *Result) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Parse splits text on document separators and decodes each document in
// textual order. Empty documents are skipped; malformed ones and those
// without a kind are dropped and reported in Result.Errors.
func Parse(text string) *Result {
	res := &Result{}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	reader := utilyaml.NewYAMLReader(bufio.NewReader(strings.NewReader(text)))
	lines := &lineTracker{text: text}

	for doc := 0; ; doc++ {
		chunk, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A separator line followed by content; the rest of the text
			// cannot be split reliably.
			res.Errors = append(res.Errors, &DocumentError{Document: doc, Line: lines.cursorLine(), Reason: ReasonSyntax, Err: err})
			break
		}
		line := lines.locate(chunk)
		if len(bytes.TrimSpace(chunk)) == 0 {
			continue
		}

		rec, docErr, empty := decodeDocument(chunk, doc)
		if empty {
			continue
		}
		res.Documents++
		if docErr != nil {
			docErr.Line = line
			logging.Warn("Dropping manifest document", "document", doc, "line", line, "reason", docErr.Reason, "error", docErr.Err)
			res.Errors = append(res.Errors, docErr)
			continue
		}
		rec.Index = len(res.Records)
		rec.Line = line
		res.Records = append(res.Records, *rec)
	}

	logging.Debug("Parsed manifest", "documents", res.Documents, "records", len(res.Records), "dropped", len(res.Errors))
	return res
}

// lineTracker maps the chunks returned by the document reader back to
// their starting line in the source text. Chunks are consumed in order, so
// each one is searched for after the end of the previous one.
type lineTracker struct {
	text   string
	cursor int
}

func (t *lineTracker) locate(chunk []byte) int {
	needle := strings.TrimSuffix(string(chunk), "\n")
	pos := strings.Index(t.text[t.cursor:], needle)
	if pos < 0 {
		return t.cursorLine()
	}
	start := t.cursor + pos
	t.cursor = start + len(needle)
	return 1 + strings.Count(t.text[:start], "\n")
}

func (t *lineTracker) cursorLine() int {
	return 1 + strings.Count(t.text[:t.cursor], "\n")
}

func decodeDocument(chunk []byte, doc int) (*ComponentRecord, *DocumentError, bool) {
	js, err := yaml.YAMLToJSON(chunk)
	if err != nil {
		return nil, &DocumentError{Document: doc, Reason: ReasonSyntax, Err: err}, false
	}
	if string(bytes.TrimSpace(js)) == "null" {
		// Comments only.
		return nil, nil, true
	}

	var decoded any
	if err := utiljson.Unmarshal(js, &decoded); err != nil {
		return nil, &DocumentError{Document: doc, Reason: ReasonSyntax, Err: err}, false
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, &DocumentError{Document: doc, Reason: ReasonNotObject, Err: fmt.Errorf("got %T", decoded)}, false
	}
	kind, ok := obj["kind"].(string)
	if !ok || strings.TrimSpace(kind) == "" {
		return nil, &DocumentError{Document: doc, Reason: ReasonMissingKind}, false
	}

	u := &unstructured.Unstructured{Object: obj}
	return &ComponentRecord{
		Kind:            kind,
		Type:            kinds.Normalize(kind),
		APIVersion:      u.GetAPIVersion(),
		Name:            u.GetName(),
		Namespace:       u.GetNamespace(),
		Labels:          u.GetLabels(),
		OwnerReferences: u.GetOwnerReferences(),
		Object:          u,
		Document:        doc,
	}, nil, false
}

// FileResult is the parse result of one file.
type FileResult struct {
	Path   string
	Result *Result
	Err    error
}

// ParseFile reads and parses a single manifest file.
func ParseFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(string(data)), nil
}

// ParsePath parses a file, or every .yaml/.yml file of a directory
// (non-recursive, sorted by name). Only path access errors are returned
// directly; per-file failures are reported in the results.
func ParsePath(path string) ([]FileResult, error) {
	files, err := finder.FindManifests(path)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		res, err := ParseFile(f)
		results = append(results, FileResult{Path: f, Result: res, Err: err})
	}
	return results, nil
}

// ReadPath concatenates the manifests found at path into one text blob.
func ReadPath(path string) (string, error) {
	files, err := finder.FindManifests(path)
	if err != nil {
		return "", err
	}

	var docs []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("failed to read %q: %w", f, err)
		}
		docs = append(docs, strings.TrimSpace(string(data)))
	}
	return strings.Join(docs, "\n---\n"), nil
}
