package llm

import "encoding/json"

// Response schemas for structured output. Kept additionalProperties: false so
// strict mode accepts them.

var languageSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"language": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["language", "confidence"],
	"additionalProperties": false
}`)

var qualitySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"quality": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["quality"],
	"additionalProperties": false
}`)

var classificationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"category": {"type": "string"},
		"literary": {"type": "boolean"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["category", "literary", "confidence"],
	"additionalProperties": false
}`)

var titleSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"author": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["title", "author", "confidence"],
	"additionalProperties": false
}`)

var namesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"names": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["names"],
	"additionalProperties": false
}`)

var summarySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"refused": {"type": "boolean"}
	},
	"required": ["summary", "refused"],
	"additionalProperties": false
}`)

var profilesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"characters": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"aliases": {"type": "array", "items": {"type": "string"}},
					"age": {"type": "string"},
					"role": {"type": "string"},
					"physical": {"type": "array", "items": {"type": "string"}},
					"personality": {"type": "array", "items": {"type": "string"}},
					"events": {"type": "array", "items": {"type": "string"}},
					"relations": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"target_name": {"type": "string"},
								"kind": {"type": "string"},
								"strength": {"type": "number", "minimum": 0, "maximum": 1},
								"description": {"type": "string"}
							},
							"required": ["target_name", "kind", "strength", "description"],
							"additionalProperties": false
						}
					}
				},
				"required": ["name", "aliases", "age", "role", "physical", "personality", "events", "relations"],
				"additionalProperties": false
			}
		}
	},
	"required": ["characters"],
	"additionalProperties": false
}`)
