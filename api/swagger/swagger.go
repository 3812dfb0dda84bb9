package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "MunLink Claim Desk API",
        "description": "Claim ticket issuance and verification for document pickup",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Claims", "description": "Staff claim desk"},
        {"name": "Resident Claims", "description": "Resident ticket viewer"}
    ],
    "paths": {
        "/admin/documents/requests/{id}/ready-for-pickup": {
            "post": {
                "tags": ["Claims"],
                "summary": "Mark a request ready for pickup and issue its claim ticket",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/IssueClaimRequest"}}
                ],
                "responses": {
                    "200": {"description": "Issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Request not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "RequestNotEligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/documents/requests/{id}/claim-token": {
            "post": {
                "tags": ["Claims"],
                "summary": "Issue or regenerate a claim ticket",
                "description": "Any live ticket for the request is invalidated. The code and token are shown only in this response.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/IssueClaimRequest"}}
                ],
                "responses": {
                    "200": {"description": "Issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Request not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "RequestNotEligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/documents/requests/{id}/status": {
            "put": {
                "tags": ["Claims"],
                "summary": "Move a document request to a new status",
                "description": "Moving a pickup request to picked_up consumes its claim ticket.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "INVALID_TRANSITION or TicketAlreadyConsumed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/claim/verify": {
            "post": {
                "tags": ["Claims"],
                "summary": "Verify a claim ticket without consuming it",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyClaimRequest"}}
                ],
                "responses": {
                    "200": {"description": "Valid", "schema": {"$ref": "#/definitions/VerifyClaimResponse"}},
                    "400": {"description": "VALIDATION_ERROR", "schema": {"$ref": "#/definitions/VerifyClaimResponse"}},
                    "404": {"description": "TicketNotFound", "schema": {"$ref": "#/definitions/VerifyClaimResponse"}},
                    "409": {"description": "TicketAlreadyConsumed, TicketNotYetValid or RequestNotEligible", "schema": {"$ref": "#/definitions/VerifyClaimResponse"}},
                    "410": {"description": "TicketExpired", "schema": {"$ref": "#/definitions/VerifyClaimResponse"}}
                }
            }
        },
        "/documents/requests/{id}/claim-ticket": {
            "get": {
                "tags": ["Resident Claims"],
                "summary": "Get the claim ticket of my request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "reveal", "in": "query", "type": "string", "description": "Set to 1 to include the plain code"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No ticket", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Reveal throttled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/requests/{id}/claim-ticket.pdf": {
            "get": {
                "tags": ["Resident Claims"],
                "summary": "Download a printable claim ticket",
                "produces": ["application/pdf"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "PDF document"},
                    "404": {"description": "No ticket", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/claims/qr/{signature}": {
            "get": {
                "tags": ["Resident Claims"],
                "summary": "Render a claim ticket QR code from a signed link",
                "produces": ["image/png"],
                "parameters": [
                    {"name": "signature", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PNG image"},
                    "404": {"description": "Link invalid, expired or ticket no longer live", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "IssueClaimRequest": {
            "type": "object",
            "properties": {
                "window_start": {"type": "string", "format": "date-time"},
                "window_end": {"type": "string", "format": "date-time"}
            }
        },
        "VerifyClaimRequest": {
            "type": "object",
            "properties": {
                "token": {"type": "string", "description": "Raw token or the full QR payload"},
                "code": {"type": "string"},
                "request_id": {"type": "integer"}
            }
        },
        "VerifyClaimResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "request": {
                    "type": "object",
                    "properties": {
                        "id": {"type": "integer"},
                        "request_number": {"type": "string"},
                        "resident": {"type": "string"},
                        "document": {"type": "string"},
                        "status": {"type": "string"}
                    }
                },
                "municipality": {"type": "string"},
                "window_start": {"type": "string", "format": "date-time"},
                "window_end": {"type": "string", "format": "date-time"},
                "error": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "UpdateStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["pending", "approved", "processing", "ready", "picked_up", "completed", "rejected", "cancelled"]},
                "notes": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
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
