package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Scheduler API",
        "description": "Recurring schedule engine: series, occurrences and conflicts",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Series", "description": "Recurring series lifecycle"},
        {"name": "Groups", "description": "Series group reads, deletes and exports"},
        {"name": "Occurrences", "description": "Per-occurrence cancel/reschedule/membership"},
        {"name": "Conflicts", "description": "Double-booking preview"}
    ],
    "paths": {
        "/conflicts/preview": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Preview double-booking conflicts for candidate ranges",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConflictPreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/series": {
            "post": {
                "tags": ["Series"],
                "summary": "Create a recurring series",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSeriesRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/series/{id}/expand": {
            "post": {
                "tags": ["Series"],
                "summary": "Queue series materialization",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ExpandRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/series/{id}/split": {
            "post": {
                "tags": ["Series"],
                "summary": "Split a series at a date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SplitSeriesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/series/{id}/template": {
            "patch": {
                "tags": ["Series"],
                "summary": "Merge a delta into the series template",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateTemplateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/series/{id}/schedule": {
            "put": {
                "tags": ["Series"],
                "summary": "Replace the series schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/series/{id}": {
            "delete": {
                "tags": ["Series"],
                "summary": "Delete a series version with its occurrences",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups": {
            "get": {
                "tags": ["Groups"],
                "summary": "List series groups",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/{id}/summary": {
            "get": {
                "tags": ["Groups"],
                "summary": "Aggregate view of one group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/groups/{id}/export": {
            "get": {
                "tags": ["Groups"],
                "summary": "Export a group's occurrence history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/groups/{id}": {
            "delete": {
                "tags": ["Groups"],
                "summary": "Delete a group with every version and occurrence",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/occurrences/cancel": {
            "post": {
                "tags": ["Occurrences"],
                "summary": "Cancel one occurrence",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CancelOccurrenceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/occurrences/reschedule": {
            "post": {
                "tags": ["Occurrences"],
                "summary": "Move one occurrence to a new time range",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RescheduleOccurrenceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/occurrences/membership": {
            "get": {
                "tags": ["Occurrences"],
                "summary": "Report series membership of a record",
                "parameters": [
                    {"name": "record_type", "in": "query", "required": true, "type": "string"},
                    {"name": "record_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TimeRange": {
            "type": "object",
            "properties": {
                "start": {"type": "string", "format": "date-time"},
                "end": {"type": "string", "format": "date-time"}
            }
        },
        "CreateSeriesRequest": {
            "type": "object",
            "properties": {
                "group_name": {"type": "string"},
                "description": {"type": "string"},
                "color": {"type": "string"},
                "record_type": {"type": "string"},
                "template": {"type": "object"},
                "rule": {"type": "string"},
                "anchor": {"type": "string", "format": "date-time"},
                "duration_minutes": {"type": "integer"},
                "timezone": {"type": "string"},
                "time_field": {"type": "string"},
                "scope_field": {"type": "string"},
                "expand_now": {"type": "boolean"}
            },
            "required": ["group_name", "record_type", "rule", "anchor", "duration_minutes"]
        },
        "ExpandRequest": {
            "type": "object",
            "properties": {
                "until": {"type": "string", "format": "date-time"}
            }
        },
        "SplitSeriesRequest": {
            "type": "object",
            "properties": {
                "split_date": {"type": "string", "format": "date-time"},
                "new_anchor": {"type": "string", "format": "date-time"},
                "new_duration_minutes": {"type": "integer"},
                "template_delta": {"type": "object"}
            },
            "required": ["split_date", "new_anchor"]
        },
        "UpdateTemplateRequest": {
            "type": "object",
            "properties": {
                "template_delta": {"type": "object"},
                "skip_exceptions": {"type": "boolean"}
            },
            "required": ["template_delta"]
        },
        "UpdateScheduleRequest": {
            "type": "object",
            "properties": {
                "new_anchor": {"type": "string", "format": "date-time"},
                "new_duration_minutes": {"type": "integer"},
                "new_rule": {"type": "string"}
            },
            "required": ["new_anchor", "new_duration_minutes", "new_rule"]
        },
        "CancelOccurrenceRequest": {
            "type": "object",
            "properties": {
                "record_type": {"type": "string"},
                "record_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["record_type", "record_id"]
        },
        "RescheduleOccurrenceRequest": {
            "type": "object",
            "properties": {
                "record_type": {"type": "string"},
                "record_id": {"type": "string"},
                "new_start": {"type": "string", "format": "date-time"},
                "new_end": {"type": "string", "format": "date-time"},
                "time_field": {"type": "string"}
            },
            "required": ["record_type", "record_id", "new_start", "new_end"]
        },
        "ConflictPreviewRequest": {
            "type": "object",
            "properties": {
                "record_type": {"type": "string"},
                "scope_field": {"type": "string"},
                "scope_value": {"type": "string"},
                "time_field": {"type": "string"},
                "ranges": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/TimeRange"}
                }
            },
            "required": ["record_type", "scope_field", "scope_value", "time_field", "ranges"]
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
