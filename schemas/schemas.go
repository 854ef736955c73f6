// Package schemas embeds the JSON Schemas for model artifacts and the
// project configuration file.
package schemas

import _ "embed"

//go:embed model.schema.json
var ModelSchemaJSON string

//go:embed config.schema.json
var ConfigSchemaJSON string
