// Package server exposes carnet-tools over MCP (Model Context Protocol).
//
// The server speaks JSON-RPC 2.0 over stdio, one request per line:
//   - Input: JSON-RPC requests on stdin
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Barcodes:
//   - barcode_generate: Issue and store an employee barcode
//   - service_generate: Issue and store a service barcode
//
// Records:
//   - records_list, record_get, record_delete, records_stats
//
// Carnets:
//   - template_variables: Placeholders of an HTML template
//   - carnet_render: Render one carnet to PNG or PDF
//   - carnet_verify: OCR check of a rendered carnet
//
// Bulk and diagnostics:
//   - import_validate: Dry-run of an Excel import
//   - ocr_info: Tesseract installation details
//
// Tool results are JSON documents wrapped in MCP text content. Tool failures
// are JSON-RPC errors with code -32000.
package server
