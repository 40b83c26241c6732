package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Timetable API",
        "description": "Timetable generation, validation and publishing for school classes.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Timetables", "description": "Generate, save, publish and export class timetables"},
        {"name": "Timetable Roster", "description": "Teachers available to the timetable solver"},
        {"name": "Observability", "description": "Solver and request statistics"}
    ],
    "paths": {
        "/timetables/generate": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Generate a timetable proposal for one class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "Solved, infeasible or timed out; see result.status", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Request rejected before search", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/sessions": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Generate proposals for several classes sharing teachers",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/sessions/async": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Queue a session for background generation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateSessionRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Queue full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/jobs/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a background session job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown or expired job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/save": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Persist a solved proposal as a new timetable version",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveTimetableRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Proposal expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Proposal unsolved or clashes with a published timetable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/validate": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Check supplied lessons against the hard constraints",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List stored timetables",
                "parameters": [
                    {"name": "className", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["DRAFT", "PUBLISHED", "ARCHIVED"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}": {
            "delete": {
                "tags": ["Timetables"],
                "summary": "Delete a draft timetable",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Timetable is not a draft", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}/slots": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List the lessons of a stored timetable",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}/export": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Download a stored timetable as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV grid, one row per period"}
                }
            }
        },
        "/timetables/{id}/publish": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Publish a timetable and archive the previous version",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Clashes with another published timetable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable-teachers": {
            "get": {
                "tags": ["Timetable Roster"],
                "summary": "List active roster teachers",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Timetable Roster"],
                "summary": "Create or replace a roster teacher",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RosterTeacherRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable-teachers/{id}": {
            "delete": {
                "tags": ["Timetable Roster"],
                "summary": "Remove a teacher from the active roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deactivated"}
                }
            }
        },
        "/timetable-teachers/{id}/schedule": {
            "get": {
                "tags": ["Timetable Roster"],
                "summary": "Published lessons of one teacher across every class",
                "description": "Admins may read any teacher; a teacher may read their own week.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Another teacher's schedule", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown teacher", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Aggregated request, cache and solver statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TeacherInput": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "employmentType": {"type": "string", "enum": ["FT", "PT"]},
                "availableDays": {"type": "array", "items": {"type": "string"}},
                "subjectSpecialization": {"type": "array", "items": {"type": "string"}}
            }
        },
        "GenerateTimetableRequest": {
            "type": "object",
            "properties": {
                "className": {"type": "string"},
                "subjects": {"type": "array", "items": {"type": "string"}},
                "teachers": {"type": "array", "items": {"$ref": "#/definitions/TeacherInput"}},
                "teacherIds": {"type": "array", "items": {"type": "string"}},
                "periodsPerDay": {"type": "integer"},
                "days": {"type": "array", "items": {"type": "string"}},
                "subjectPeriods": {"type": "object", "additionalProperties": {"type": "integer"}},
                "subjectTimeBands": {"type": "object", "additionalProperties": {"type": "string", "enum": ["Morning", "Afternoon", "Either"]}},
                "preferredSlots": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "string"}}}
            }
        },
        "GenerateSessionRequest": {
            "type": "object",
            "required": ["classes"],
            "properties": {
                "classes": {"type": "array", "items": {"$ref": "#/definitions/GenerateTimetableRequest"}},
                "parallel": {"type": "boolean"}
            }
        },
        "SaveTimetableRequest": {
            "type": "object",
            "required": ["proposalId"],
            "properties": {
                "proposalId": {"type": "string"},
                "publish": {"type": "boolean"}
            }
        },
        "Assignment": {
            "type": "object",
            "properties": {
                "class": {"type": "string"},
                "day": {"type": "string"},
                "period": {"type": "integer"},
                "subject": {"type": "string"},
                "teacherId": {"type": "string"},
                "teacherName": {"type": "string"}
            }
        },
        "ValidateTimetableRequest": {
            "type": "object",
            "properties": {
                "class": {"$ref": "#/definitions/GenerateTimetableRequest"},
                "lessons": {"type": "array", "items": {"$ref": "#/definitions/Assignment"}},
                "respectPublished": {"type": "boolean"}
            }
        },
        "RosterTeacherRequest": {
            "type": "object",
            "required": ["name", "employmentType", "subjects"],
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "employmentType": {"type": "string", "enum": ["FT", "PT"]},
                "availableDays": {"type": "array", "items": {"type": "string"}},
                "subjects": {"type": "array", "items": {"type": "string"}},
                "active": {"type": "boolean"}
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
