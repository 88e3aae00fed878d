package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Key API",
        "description": "Physical key management with QR handoff and realtime updates",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session management"},
        {"name": "Keys", "description": "Key inventory and take/return transitions"},
        {"name": "Handoff", "description": "QR handoff token issue and scan"},
        {"name": "Realtime", "description": "Websocket event stream"},
        {"name": "Exports", "description": "Key status reports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/api/v1/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/keys": {
            "get": {
                "tags": ["Keys"],
                "summary": "List keys",
                "parameters": [
                    {"name": "block", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Keys"],
                "summary": "Create key (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateKeyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/keys/my-taken": {
            "get": {
                "tags": ["Keys"],
                "summary": "List keys held by the current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/keys/{id}": {
            "get": {
                "tags": ["Keys"],
                "summary": "Get key",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Keys"],
                "summary": "Update key (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateKeyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Keys"],
                "summary": "Delete key (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/keys/{id}/take": {
            "post": {
                "tags": ["Keys"],
                "summary": "Take a key",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Key not available"}
                }
            }
        },
        "/api/v1/keys/{id}/return": {
            "post": {
                "tags": ["Keys"],
                "summary": "Return a key",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Key not taken"}
                }
            }
        },
        "/api/v1/keys/{id}/collective-return": {
            "post": {
                "tags": ["Keys"],
                "summary": "Return a key on behalf of an absent holder",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/CollectiveReturnRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Requires security or admin role"}
                }
            }
        },
        "/api/v1/keys/{id}/toggle-frequent": {
            "post": {
                "tags": ["Keys"],
                "summary": "Toggle the frequently-used flag",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/qr/request-token": {
            "post": {
                "tags": ["Handoff"],
                "summary": "Generate a take handoff token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/KeyIDRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Key not available"}
                }
            }
        },
        "/api/v1/qr/return-token": {
            "post": {
                "tags": ["Handoff"],
                "summary": "Generate a return handoff token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/KeyIDRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Key not taken"}
                }
            }
        },
        "/api/v1/qr/batch-return-token": {
            "post": {
                "tags": ["Handoff"],
                "summary": "Generate a batch return handoff token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchReturnRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/qr/validate": {
            "post": {
                "tags": ["Handoff"],
                "summary": "Validate a handoff token without consuming it",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/qr/scan/request": {
            "post": {
                "tags": ["Handoff"],
                "summary": "Scan a take token (security)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Token already used or expired"}
                }
            }
        },
        "/api/v1/qr/scan/return": {
            "post": {
                "tags": ["Handoff"],
                "summary": "Scan a return token (security)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Token already used or expired"}
                }
            }
        },
        "/api/v1/qr/scan/batch-return": {
            "post": {
                "tags": ["Handoff"],
                "summary": "Scan a batch return token (security)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Token already used or expired"}
                }
            }
        },
        "/ws": {
            "get": {
                "tags": ["Realtime"],
                "summary": "Open the realtime event stream",
                "parameters": [
                    {"name": "token", "in": "query", "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/v1/keys/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the key inventory",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "block", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "Key": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "key_number": {"type": "string"},
                "name": {"type": "string"},
                "location": {"type": "string"},
                "category": {"type": "string"},
                "block": {"type": "string"},
                "description": {"type": "string"},
                "status": {"type": "string", "enum": ["AVAILABLE", "UNAVAILABLE"]},
                "holder": {"$ref": "#/definitions/KeyHolder"},
                "taken_at": {"type": "string"},
                "returned_at": {"type": "string"},
                "frequently_used": {"type": "boolean"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "KeyHolder": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateKeyRequest": {
            "type": "object",
            "properties": {
                "key_number": {"type": "string"},
                "name": {"type": "string"},
                "location": {"type": "string"},
                "category": {"type": "string"},
                "block": {"type": "string"},
                "description": {"type": "string"}
            },
            "required": ["key_number", "name", "location"]
        },
        "UpdateKeyRequest": {
            "type": "object",
            "properties": {
                "key_number": {"type": "string"},
                "name": {"type": "string"},
                "location": {"type": "string"},
                "category": {"type": "string"},
                "block": {"type": "string"},
                "description": {"type": "string"}
            },
            "required": ["key_number", "name", "location"]
        },
        "KeyIDRequest": {
            "type": "object",
            "properties": {
                "key_id": {"type": "string"}
            },
            "required": ["key_id"]
        },
        "CollectiveReturnRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "BatchReturnRequest": {
            "type": "object",
            "properties": {
                "key_ids": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["key_ids"]
        },
        "ScanRequest": {
            "type": "object",
            "properties": {
                "token": {"type": "string"}
            },
            "required": ["token"]
        },
        "IssuedToken": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "kind": {"type": "string", "enum": ["request", "return", "batch-return"]},
                "token_id": {"type": "string"},
                "expires_at": {"type": "string"},
                "ttl": {"type": "integer"}
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
