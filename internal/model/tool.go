package model

import "encoding/json"

// ToolResponse represents response for POST /tools/{toolName}
type ToolResponse struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// ToolRequest is the raw JSON body handed to a tool handler.
type ToolRequest struct {
	Tool string
	Body json.RawMessage
}
