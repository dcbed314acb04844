// Package tools defines the ITool interface of the tools the assistants can call.
//
// Tools served by an MCP server are bound in the mcptool subpackage,
// the calculator subpackage provides the Add and Sub tools of the demo server.
package tools
