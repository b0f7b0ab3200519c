package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Advanced Filters API",
        "description": "Saved admin changelist filters",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Advanced Filters", "description": "Saved filter management"},
        {"name": "Changelist", "description": "Entity listings narrowed by saved filters"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Observability"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["Observability"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Saved filter service counters",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/advanced-filters": {
            "get": {
                "tags": ["Advanced Filters"],
                "summary": "List saved filters",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "q", "in": "query", "type": "string", "description": "Search over title and model name"},
                    {"name": "model_name", "in": "query", "type": "string"},
                    {"name": "model", "in": "query", "type": "string", "description": "app.Model label"},
                    {"name": "ajax", "in": "query", "type": "integer", "description": "1 excludes headings and orders by model name"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Advanced Filters"],
                "summary": "Save a new filter",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "model", "in": "query", "type": "string", "required": true, "description": "app.Model label"},
                    {"name": "_popup", "in": "query", "type": "string", "description": "iframe for popup editing"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdvancedFilterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "No model given", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/advanced-filters/order": {
            "put": {
                "tags": ["Advanced Filters"],
                "summary": "Reorder saved filters of one model",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReorderRequest"}}
                ],
                "responses": {"204": {"description": "Reordered"}}
            }
        },
        "/api/v1/advanced-filters/{id}": {
            "get": {
                "tags": ["Advanced Filters"],
                "summary": "Get a saved filter",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "_popup", "in": "query", "type": "string", "description": "iframe for the reduced view"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not shared with the caller", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Advanced Filters"],
                "summary": "Update a saved filter",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "_save_goto", "in": "query", "type": "integer", "description": "1 redirects to the filtered changelist"},
                    {"name": "_popup", "in": "query", "type": "string", "description": "iframe for popup editing"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdvancedFilterRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "303": {"description": "Redirect to the changelist with the filter applied"}
                }
            },
            "delete": {
                "tags": ["Advanced Filters"],
                "summary": "Delete a saved filter",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "_popup", "in": "query", "type": "string"}
                ],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/admin/{app}/{model}/": {
            "get": {
                "tags": ["Changelist"],
                "summary": "Entity changelist",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "app", "in": "path", "type": "string", "required": true},
                    {"name": "model", "in": "path", "type": "string", "required": true},
                    {"name": "_afilter", "in": "query", "type": "string", "description": "Saved filter ID"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/{app}/{model}/lookups": {
            "get": {
                "tags": ["Changelist"],
                "summary": "Saved filter menu of an entity",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "app", "in": "path", "type": "string", "required": true},
                    {"name": "model", "in": "path", "type": "string", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "QueryNode": {
            "type": "object",
            "properties": {
                "connector": {"type": "string", "enum": ["AND", "OR"]},
                "negated": {"type": "boolean"},
                "children": {"type": "array", "items": {"$ref": "#/definitions/QueryNode"}},
                "field": {"type": "string"},
                "lookup": {"type": "string"},
                "value": {},
                "type": {"type": "string", "enum": ["date", "datetime"]}
            }
        },
        "AdvancedFilterRequest": {
            "type": "object",
            "required": ["title"],
            "properties": {
                "title": {"type": "string", "maxLength": 255},
                "url": {"type": "string"},
                "is_heading": {"type": "boolean"},
                "query": {"$ref": "#/definitions/QueryNode"},
                "order": {"type": "integer"},
                "users": {"type": "array", "items": {"type": "string", "format": "uuid"}},
                "groups": {"type": "array", "items": {"type": "string", "format": "uuid"}}
            }
        },
        "ReorderRequest": {
            "type": "object",
            "required": ["model", "items"],
            "properties": {
                "model": {"type": "string"},
                "items": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "id": {"type": "string", "format": "uuid"},
                            "order": {"type": "integer"}
                        }
                    }
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
