// Package mcp contains the protocol data types and constants this server
// speaks: the initialize handshake, tool listing and tool invocation. It
// mirrors the wire representation of the Model Context Protocol while keeping
// the surface Go-friendly (exported structs with json tags, string constants
// for method names).
//
// The package is free of transport logic. The stdio transport implements
// framing; the engine builds responses from these types and hands them to
// the JSON-RPC layer for serialization.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
//
// # Compatibility
//
// ProtocolVersion is the protocol date this server advertises. It is fixed;
// no version negotiation takes place.
package mcp
