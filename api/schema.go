package api

import "github.com/xeipuuv/gojsonschema"

// subtitleStyleSchema is shared by JobRequest and the retry override body.
const subtitleStyleSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"font_family": {"type": "string"},
		"font_size": {"type": "number"},
		"outline_color": {"type": "string"},
		"fill_color": {"type": "string"}
	}
}`

const optionsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"target_count": {"type": "integer"},
		"min_sec": {"type": "number"},
		"max_sec": {"type": "number"},
		"language": {"type": "string"},
		"whisper_model": {"type": "string", "enum": ["tiny", "base", "small", "medium"]},
		"force_rule_based": {"type": "boolean"},
		"subtitle_style": ` + subtitleStyleSchema + `
	}
}`

// jobRequestSchema enforces the "unknown enum/field -> reject" rule from §3
// via additionalProperties: false at every level, per the strict-mode
// recommendation in §9.
const jobRequestSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["source_type"],
	"properties": {
		"source_type": {"type": "string", "enum": ["drive", "url"]},
		"drive_file_id": {"type": "string"},
		"source_url": {"type": "string"},
		"title_hint": {"type": "string"},
		"options": ` + optionsSchema + `
	}
}`

const retryRequestSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"options": ` + optionsSchema + `
	}
}`

var inputSchemas = map[string]string{
	"JobRequest":   jobRequestSchema,
	"RetryRequest": retryRequestSchema,
}

func compileJSONSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(inputSchemas))
	for name, text := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			panic(err) // fix schema text
		}
		compiled[name] = schema
	}
	return compiled
}

var inputSchemasCompiled = compileJSONSchemas()
