package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaOnce = sync.OnceValues(func() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})
	schema.Title = "agentdesk configuration"
	return json.MarshalIndent(schema, "", "  ")
})

// JSONSchema returns the JSON Schema of the configuration file.
func JSONSchema() ([]byte, error) {
	return schemaOnce()
}
