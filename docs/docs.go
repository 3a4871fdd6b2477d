// Package docs registers the OpenAPI document served under /swagger/.
// Regenerate with: swag init -g cmd/gate/main.go
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
        "/agent": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["agent"],
                "summary": "Ask the agent",
                "parameters": [
                    {"description": "Agent request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.AgentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.AgentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.HealthResponse"}}
                }
            }
        },
        "/receipts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "List payment receipts",
                "parameters": [
                    {"type": "integer", "description": "Maximum receipts (default 50, max 500)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.ReceiptsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/sessions/{id}/clear": {
            "post": {
                "produces": ["application/json"],
                "tags": ["agent"],
                "summary": "Clear session history",
                "parameters": [
                    {"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SuccessResponse"}}
                }
            }
        },
        "/sessions/{id}/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["agent"],
                "summary": "Session history",
                "parameters": [
                    {"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SessionMessagesResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["agent"],
                "summary": "Append to session history",
                "parameters": [
                    {"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true},
                    {"description": "Message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.SessionMessage"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.SuccessResponse"}}
                }
            }
        },
        "/tools": {
            "get": {
                "produces": ["application/json"],
                "tags": ["tools"],
                "summary": "List tools",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/tools.Info"}}}
                }
            }
        },
        "/tools/{tool}": {
            "post": {
                "description": "Runs a tool. Priced tools answer 402 with X-Payment-Required until the request carries a valid X-Payment proof.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["tools"],
                "summary": "Call a tool",
                "parameters": [
                    {"type": "string", "description": "Tool name", "name": "tool", "in": "path", "required": true},
                    {"type": "string", "description": "Signed payment proof (JSON)", "name": "X-Payment", "in": "header"},
                    {"description": "Tool input", "name": "request", "in": "body", "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.ToolResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.ErrorResponse"}},
                    "402": {"description": "Payment Required", "schema": {"$ref": "#/definitions/model.PaymentRequiredResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        },
        "/vault-swap": {
            "get": {
                "produces": ["application/json"],
                "tags": ["vault"],
                "summary": "Vault status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.VaultStatusResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["vault"],
                "summary": "Swap against the vault",
                "parameters": [
                    {"description": "Swap request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.VaultSwapRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.VaultSwapResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/model.ErrorResponse"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/model.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "model.AgentRequest": {
            "type": "object",
            "properties": {
                "walletPubkey": {"type": "string"},
                "message": {"type": "string"},
                "mode": {"type": "string"},
                "sessionId": {"type": "string"},
                "context": {"type": "object"}
            }
        },
        "model.AgentResponse": {
            "type": "object",
            "properties": {
                "assistantText": {"type": "string"},
                "intent": {"type": "string"},
                "actionProposals": {"type": "array", "items": {"type": "object"}},
                "clarifyingQuestion": {"type": "string"},
                "payment": {"type": "object"}
            }
        },
        "model.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "model.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "policy": {"type": "string"},
                "network": {"type": "string"},
                "pricing": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "model.PaymentReceipt": {
            "type": "object",
            "properties": {
                "paymentId": {"type": "string"},
                "amount": {"type": "string"},
                "tokenMint": {"type": "string"},
                "timestamp": {"type": "integer"},
                "tool": {"type": "string"},
                "signature": {"type": "string"},
                "payer": {"type": "string"}
            }
        },
        "model.PaymentRequiredResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "requirements": {"$ref": "#/definitions/model.PaymentRequirements"}
            }
        },
        "model.PaymentRequirements": {
            "type": "object",
            "properties": {
                "paymentId": {"type": "string"},
                "amount": {"type": "string"},
                "tokenMint": {"type": "string"},
                "recipient": {"type": "string"},
                "network": {"type": "string"},
                "expiresAt": {"type": "integer"},
                "tool": {"type": "string"}
            }
        },
        "model.ReceiptsResponse": {
            "type": "object",
            "properties": {
                "receipts": {"type": "array", "items": {"$ref": "#/definitions/model.PaymentReceipt"}}
            }
        },
        "model.SessionMessage": {
            "type": "object",
            "properties": {
                "role": {"type": "string"},
                "content": {"type": "string"},
                "timestamp": {"type": "integer"}
            }
        },
        "model.SessionMessagesResponse": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/model.SessionMessage"}}
            }
        },
        "model.SuccessResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"}
            }
        },
        "model.ToolResponse": {
            "type": "object",
            "properties": {
                "tool": {"type": "string"},
                "result": {"type": "object"}
            }
        },
        "model.VaultSwapRequest": {
            "type": "object",
            "properties": {
                "direction": {"type": "string", "enum": ["SOL_TO_USDC", "USDC_TO_SOL"]},
                "amount": {"type": "string"},
                "userWallet": {"type": "string"},
                "inputTx": {"type": "string"}
            }
        },
        "model.VaultSwapResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "direction": {"type": "string"},
                "inputAmount": {"type": "string"},
                "outputAmount": {"type": "string"},
                "price": {"type": "string"},
                "txSignature": {"type": "string"},
                "explorerUrl": {"type": "string"}
            }
        },
        "model.VaultStatusResponse": {
            "type": "object",
            "properties": {
                "vaultAddress": {"type": "string"},
                "balances": {"type": "object", "properties": {"SOL": {"type": "string"}, "USDC": {"type": "string"}}},
                "currentPrice": {"type": "string"},
                "priceSource": {"type": "string"},
                "network": {"type": "string"}
            }
        },
        "tools.Info": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "schema": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Allowance Gate API",
	Description:      "Pay-per-call tools behind a payment handshake, plus vault swaps.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
