package primitives

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/chicogong/tagforge/pkg/tags"
)

var errInvalidJSON = errors.New("invalid JSON")

func jsonPrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "jsonify", Usage: "{jsonify:text}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			data, err := json.Marshal(call.Args)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}},
		{Name: "jsonpretty", Usage: "{jsonpretty:json}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(strings.TrimSpace(call.Args)), "", "  "); err != nil {
				return nil, errInvalidJSON
			}
			return buf.String(), nil
		}},
		{Name: "jsonschema", Usage: "{jsonschema:json|schema}", Fn: validateSchema},
		{Name: "traversejson", Aliases: []string{"jsonget"}, Usage: "{traversejson:path|json}", Fn: traverseJSON},
		{Name: "type", Usage: "{type:value}", Fn: transform(valueType)},
		{Name: "jsonkeys", Usage: "{jsonkeys:json object}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			doc, err := parseDoc(call.Args)
			if err != nil {
				return nil, err
			}
			if !doc.IsObject() {
				return nil, errors.New("expected a JSON object")
			}
			keys := []string{}
			doc.ForEach(func(k, _ gjson.Result) bool {
				keys = append(keys, k.String())
				return true
			})
			data, _ := json.Marshal(keys)
			return string(data), nil
		}},
		{Name: "jsonlen", Usage: "{jsonlen:json}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			doc, err := parseDoc(call.Args)
			if err != nil {
				return nil, err
			}
			switch {
			case doc.IsArray():
				return strconv.Itoa(len(doc.Array())), nil
			case doc.IsObject():
				return strconv.Itoa(len(doc.Map())), nil
			case doc.Type == gjson.String:
				return strconv.Itoa(len([]rune(doc.Str))), nil
			}
			return nil, errors.New("value has no length")
		}},
	}
}

func parseDoc(s string) (gjson.Result, error) {
	s = strings.TrimSpace(s)
	if !gjson.Valid(s) {
		return gjson.Result{}, errInvalidJSON
	}
	return gjson.Parse(s), nil
}

// traverseJSON resolves a gjson path such as "users.0.name" or
// "items.#.id".
func traverseJSON(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{traversejson:path|json}")
	}
	path := strings.TrimSpace(call.Part(0))
	doc := strings.TrimSpace(strings.Join(call.Parts()[1:], "|"))
	if !gjson.Valid(doc) {
		return nil, errInvalidJSON
	}
	res := gjson.Get(doc, path)
	if !res.Exists() {
		return nil, fmt.Errorf("path '%s' not found", path)
	}
	if res.IsObject() || res.IsArray() {
		return res.Raw, nil
	}
	return res.String(), nil
}

// valueType names the JSON type of v; text that is not JSON is a string.
func valueType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || !gjson.Valid(v) {
		return "string"
	}
	res := gjson.Parse(v)
	switch {
	case res.IsObject():
		return "object"
	case res.IsArray():
		return "array"
	}
	switch res.Type {
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	}
	return "string"
}

// validateSchema returns "valid", or the first validation failure as an
// error.
func validateSchema(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{jsonschema:json|schema}")
	}
	var doc any
	dec := json.NewDecoder(strings.NewReader(call.Part(0)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errInvalidJSON
	}

	c := jsonschema.NewCompiler()
	c.LoadURL = func(string) (io.ReadCloser, error) {
		return nil, errors.New("remote schemas are not allowed")
	}
	if err := c.AddResource("schema.json", strings.NewReader(call.Part(1))); err != nil {
		return nil, fmt.Errorf("invalid schema: %v", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %v", err)
	}

	err = schema.Validate(doc)
	var ve *jsonschema.ValidationError
	switch {
	case err == nil:
		return "valid", nil
	case errors.As(err, &ve):
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return nil, fmt.Errorf("%s: %s", loc, leaf.Message)
	}
	return nil, err
}
