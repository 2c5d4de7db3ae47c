package updater

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/release.schema.json
var releaseSchemaBytes []byte

var (
	releaseSchema     *jsonschema.Schema
	releaseSchemaOnce sync.Once
	releaseSchemaErr  error
	printer           = message.NewPrinter(language.English)
)

// getReleaseSchema compiles the embedded release schema once.
func getReleaseSchema() (*jsonschema.Schema, error) {
	releaseSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(releaseSchemaBytes))
		if err != nil {
			releaseSchemaErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("release.schema.json", doc); err != nil {
			releaseSchemaErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		releaseSchema, releaseSchemaErr = c.Compile("release.schema.json")
		if releaseSchemaErr != nil {
			releaseSchemaErr = fmt.Errorf("compiling schema: %w", releaseSchemaErr)
		}
	})
	return releaseSchema, releaseSchemaErr
}

// validateRelease checks a raw response body against the release schema.
// The returned error lists the failing instance locations.
func validateRelease(body []byte) error {
	schema, err := getReleaseSchema()
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parsing release JSON: %w", err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validating release JSON: %w", err)
	}

	var issues []string
	collectSchemaIssues(verr, &issues)
	if len(issues) == 0 {
		return fmt.Errorf("release metadata does not match schema")
	}
	return fmt.Errorf("release metadata does not match schema: %s", strings.Join(issues, "; "))
}

// collectSchemaIssues walks the error tree and records leaf errors as
// "<instance path>: <message>".
func collectSchemaIssues(ve *jsonschema.ValidationError, issues *[]string) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectSchemaIssues(cause, issues)
		}
		return
	}
	if ve.ErrorKind == nil {
		return
	}
	path := "/" + strings.Join(ve.InstanceLocation, "/")
	*issues = append(*issues, fmt.Sprintf("%s: %s", path, ve.ErrorKind.LocalizedString(printer)))
}
