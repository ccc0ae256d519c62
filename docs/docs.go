// Package docs holds the swagger description of the classboard gateway
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "Server is up"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "Store of record answers"},
                    "503": {"description": "Store of record or Redis unavailable"}
                }
            }
        },
        "/api/v1/{table}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["tables"],
                "summary": "List rows",
                "description": "Equality filters are passed as query parameters; order=<column>[.desc] may repeat.",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "enum": ["boards", "columns", "posts", "reactions", "comments", "profiles"], "name": "table", "in": "path", "required": true},
                    {"type": "string", "name": "order", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Rows visible to the caller"},
                    "400": {"description": "Unknown column", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/MessageResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["tables"],
                "summary": "Insert a row",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "table", "in": "path", "required": true},
                    {"name": "row", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "201": {"description": "Confirmed row"},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "403": {"description": "Not allowed on this board", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "409": {"description": "Constraint violated", "schema": {"$ref": "#/definitions/MessageResponse"}}
                }
            }
        },
        "/api/v1/{table}/{id}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "tags": ["tables"],
                "summary": "Update columns of a row",
                "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "table", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "fields", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "204": {"description": "Updated"},
                    "403": {"description": "Not allowed", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "404": {"description": "No such row", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "405": {"description": "Table is not updatable", "schema": {"$ref": "#/definitions/MessageResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["tables"],
                "summary": "Delete a row",
                "parameters": [
                    {"type": "string", "name": "table", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "403": {"description": "Not allowed", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "404": {"description": "No such row", "schema": {"$ref": "#/definitions/MessageResponse"}}
                }
            }
        },
        "/api/v1/realtime": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["realtime"],
                "summary": "Subscribe to board changes",
                "description": "Upgrades to a websocket that carries one JSON Change per frame.",
                "parameters": [
                    {"type": "string", "name": "board_id", "in": "query", "required": true},
                    {"type": "string", "name": "access_token", "in": "query"}
                ],
                "responses": {
                    "101": {"description": "Switching protocols"},
                    "404": {"description": "Board not visible", "schema": {"$ref": "#/definitions/MessageResponse"}}
                }
            }
        }
    },
    "definitions": {
        "MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type 'Bearer' followed by a space and JWT token"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Classboard Gateway API",
	Description:      "Tables and realtime change feed behind the classboard sync core",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
