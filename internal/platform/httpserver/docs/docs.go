// Package docs holds the swagger document served under /swagger/.
// Regenerate with: swag init -g internal/platform/httpserver/server.go -o internal/platform/httpserver/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/votings": {
            "get": {
                "produces": ["application/json"],
                "tags": ["votings"],
                "summary": "List votings by state",
                "parameters": [
                    {"type": "string", "description": "active, completed or archived", "name": "state", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VotingListResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["votings"],
                "summary": "Create a voting",
                "parameters": [
                    {"type": "string", "description": "client supplied key", "name": "Idempotency-Key", "in": "header", "required": true},
                    {"description": "ballot", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.CreateVotingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.CreateVotingResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/votings/reconcile": {
            "post": {
                "produces": ["application/json"],
                "tags": ["votings"],
                "summary": "Close every due voting and send pending notifications",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SweepResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/votings/{voting_id}/votes": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["votes"],
                "summary": "Cast a vote",
                "parameters": [
                    {"type": "string", "description": "voting id", "name": "voting_id", "in": "path", "required": true},
                    {"description": "selected option indices", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.CastVoteRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.CastVoteResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/votings/{voting_id}/export.csv": {
            "get": {
                "produces": ["text/csv"],
                "tags": ["votings"],
                "summary": "Export voting results as CSV",
                "parameters": [
                    {"type": "string", "description": "voting id", "name": "voting_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}}
                }
            }
        }
    },
    "definitions": {
        "http.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "http.CreateVotingRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "options": {"type": "array", "items": {"type": "string"}},
                "is_multiple_choice": {"type": "boolean"},
                "end_date": {"type": "string"}
            }
        },
        "http.CastVoteRequest": {
            "type": "object",
            "properties": {
                "option_indices": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "http.OptionResult": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "option": {"type": "string"},
                "votes": {"type": "integer"},
                "percentage": {"type": "string"}
            }
        },
        "http.VotingResponse": {
            "type": "object",
            "properties": {
                "voting_id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "options": {"type": "array", "items": {"type": "string"}},
                "is_multiple_choice": {"type": "boolean"},
                "end_date": {"type": "string"},
                "status": {"type": "string"},
                "archived": {"type": "boolean"},
                "votes": {"type": "object", "additionalProperties": {"type": "integer"}},
                "total_votes": {"type": "integer"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/http.OptionResult"}},
                "created_by": {"type": "string"},
                "created_at": {"type": "string"},
                "completed_at": {"type": "string"},
                "archived_at": {"type": "string"}
            }
        },
        "http.CreateVotingResponse": {
            "type": "object",
            "properties": {
                "voting": {"$ref": "#/definitions/http.VotingResponse"},
                "replayed": {"type": "boolean"}
            }
        },
        "http.VotingListResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/http.VotingResponse"}}
            }
        },
        "http.VoteRecordResponse": {
            "type": "object",
            "properties": {
                "voter_email": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "plot_number": {"type": "string"},
                "selected_options": {"type": "array", "items": {"type": "integer"}},
                "cast_at": {"type": "string"}
            }
        },
        "http.CastVoteResponse": {
            "type": "object",
            "properties": {
                "voting": {"$ref": "#/definitions/http.VotingResponse"},
                "record": {"$ref": "#/definitions/http.VoteRecordResponse"}
            }
        },
        "http.SweepResponse": {
            "type": "object",
            "properties": {
                "completed": {"type": "integer"},
                "notified": {"type": "integer"},
                "failed": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "SNT portal voting API",
	Description:      "Ballots, votes and results for the cooperative portal.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
