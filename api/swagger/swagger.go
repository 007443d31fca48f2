package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Institute Timetable API",
        "description": "Generates conflict-free weekly timetables for departments, batches, faculty and rooms.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Timetables", "description": "Generation runs and stored timetables"},
        {"name": "Health", "description": "Liveness and dependency checks"}
    ],
    "paths": {
        "/api/v1/timetables/generate": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Generate timetables for a scope",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "Completed, possibly with conflicts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid scope or term", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "408": {"description": "Run canceled before persistence", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Another run for the term is in progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No schedulable batches in scope", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Failed to persist", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/generate/async": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Queue a generation run",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/runs/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Status of a queued run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown or expired run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List stored timetables",
                "parameters": [
                    {"name": "departmentId", "in": "query", "type": "string"},
                    {"name": "term", "in": "query", "type": "string", "enum": ["odd", "even"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a timetable with placements and conflicts",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Timetables"],
                "summary": "Delete a timetable",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/batch/{batchId}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get the timetable of a batch",
                "parameters": [
                    {"name": "batchId", "in": "path", "required": true, "type": "string"},
                    {"name": "term", "in": "query", "type": "string", "enum": ["odd", "even"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/{id}/export": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Download a timetable",
                "produces": ["application/json", "text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Liveness and dependency check",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        }
    },
    "definitions": {
        "GenerateTimetableRequest": {
            "type": "object",
            "properties": {
                "departmentId": {"type": "string"},
                "batchIds": {"type": "array", "items": {"type": "string"}},
                "term": {"type": "string", "enum": ["odd", "even"]},
                "all": {"type": "boolean"},
                "dryRun": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
