package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// schemaURL is the resource name each tool schema is compiled under.
const schemaURL = "input.json"

var printer = message.NewPrinter(language.English)

// compileSchema compiles a tool input schema.
func compileSchema(s mcp.ToolInputSchema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft7)
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return compiled, nil
}

// Violation is one schema violation in a tool call's arguments.
type Violation struct {
	// Loc is the path to the offending value; empty for the arguments
	// object itself.
	Loc []string `json:"loc"`

	// Msg describes the violation.
	Msg string `json:"msg"`

	// Type is the failing schema keyword, e.g. "required" or "type".
	Type string `json:"type"`
}

// validateArgs checks args against schema. It returns nil or the
// violations sorted by location.
func validateArgs(schema *jsonschema.Schema, args map[string]any) ([]Violation, error) {
	// Round-trip through the validator's own decoder so numbers match what
	// it expects.
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}

	var out []Violation
	collectViolations(ve, &out)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.Join(out[i].Loc, "/") < strings.Join(out[j].Loc, "/")
	})
	return out, nil
}

func collectViolations(ve *jsonschema.ValidationError, out *[]Violation) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectViolations(c, out)
		}
		return
	}

	loc := make([]string, 0, len(ve.InstanceLocation))
	for _, part := range ve.InstanceLocation {
		if part != "" {
			loc = append(loc, part)
		}
	}
	keyword := ""
	if path := ve.ErrorKind.KeywordPath(); len(path) > 0 {
		keyword = path[len(path)-1]
	}
	*out = append(*out, Violation{
		Loc:  loc,
		Msg:  truncate(ve.ErrorKind.LocalizedString(printer), maxErrorDetail),
		Type: keyword,
	})
}
