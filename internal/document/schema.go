package document

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// checkSchema validates a generic decoded document against #Program.
// A fresh CUE context is used per call; contexts are not safe for
// concurrent use.
func checkSchema(data any) []ValidationError {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		// The embedded schema is fixed at build time.
		panic(fmt.Sprintf("document: invalid embedded schema: %v", err))
	}
	program := schema.LookupPath(cue.ParsePath("#Program"))

	value := ctx.Encode(data)
	if err := value.Err(); err != nil {
		return []ValidationError{{Field: "document", Message: err.Error(), Code: ErrCodeSchema}}
	}

	err := program.Unify(value).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out []ValidationError
	seen := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "document"
		}
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		key := field + "\x00" + msg
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ValidationError{Field: field, Message: msg, Code: ErrCodeSchema})
	}
	return out
}
