package validate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed document.schema.yaml
var documentSchemaYAML []byte

const documentSchemaURL = "document.schema.json"

var documentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var raw any
	if err := yaml.Unmarshal(documentSchemaYAML, &raw); err != nil {
		return nil, fmt.Errorf("parse document schema: %w", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal document schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(documentSchemaURL, strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("add document schema: %w", err)
	}
	schema, err := compiler.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return schema, nil
})

// schemaIssues checks the document shape against the embedded JSON Schema.
func schemaIssues(doc *document.Document) []diag.Issue {
	schema, err := documentSchema()
	if err != nil {
		return []diag.Issue{diag.Errorf(diag.Schema, "document schema unavailable: %v", err)}
	}

	err = schema.Validate(jsonValue(doc.Root))
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []diag.Issue{diag.Errorf(diag.Schema, "%v", err)}
	}

	var found []string
	collectLeaves(verr, &found)
	sort.Strings(found)

	issues := make([]diag.Issue, 0, len(found))
	for i, msg := range found {
		if i > 0 && found[i-1] == msg {
			continue
		}
		issues = append(issues, diag.Errorf(diag.Schema, "%s", msg))
	}
	return issues
}

// collectLeaves flattens a validation error tree. oneOf and anyOf failures are
// reported once at their own location instead of once per branch.
func collectLeaves(e *jsonschema.ValidationError, out *[]string) {
	loc := instancePath(e.InstanceLocation)
	if strings.HasSuffix(e.KeywordLocation, "/oneOf") || strings.HasSuffix(e.KeywordLocation, "/anyOf") {
		*out = append(*out, loc+": value does not match any allowed form")
		return
	}
	if len(e.Causes) == 0 {
		*out = append(*out, loc+": "+e.Message)
		return
	}
	for _, c := range e.Causes {
		collectLeaves(c, out)
	}
}

// instancePath turns a JSON pointer into a dotted path.
func instancePath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "document"
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

// jsonValue converts loaded values into the JSON data model the schema
// validator expects. Non-finite floats become strings.
func jsonValue(v any) any {
	switch t := v.(type) {
	case document.Mapping:
		out := make(map[string]any, len(t))
		for _, e := range t {
			k, ok := e.Key.(string)
			if !ok {
				k = fmt.Sprint(e.Key)
			}
			out[k] = jsonValue(e.Value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = jsonValue(item)
		}
		return out
	case int:
		return json.Number(strconv.Itoa(t))
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case uint64:
		return json.Number(strconv.FormatUint(t, 10))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return strconv.FormatFloat(t, 'g', -1, 64)
		}
		return json.Number(strconv.FormatFloat(t, 'g', -1, 64))
	case nil, bool, string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
