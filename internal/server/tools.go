package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func schema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Barcodes
		{
			Name:        "barcode_generate",
			Description: "Issue a barcode for an employee: mint a unique ID, draw and verify the barcode image, and store the record.",
			InputSchema: schema(map[string]interface{}{
				"first_names":   prop("string", "Employee first names"),
				"last_names":    prop("string", "Employee last names"),
				"employee_code": prop("string", "Employee code, stored as the record description"),
				"format":        prop("string", "Code128 (default), EAN13, EAN8 or Code39"),
				"prefix_name":   prop("boolean", "Prefix the ID with up to three letters of the name"),
				"custom_text":   prop("string", "Fixed ID text instead of random characters"),
			}, "employee_code"),
		},
		{
			Name:        "service_generate",
			Description: "Issue a barcode for a service. The caption under the bars is the service name.",
			InputSchema: schema(map[string]interface{}{
				"name":       prop("string", "Service name"),
				"format":     prop("string", "Code128 (default), EAN13, EAN8 or Code39"),
				"caption_px": prop("integer", "Caption size in pixels (minimum 10)"),
			}, "name"),
		},

		// Records
		{
			Name:        "records_list",
			Description: "List employee records, newest first, optionally filtered by a search term.",
			InputSchema: schema(map[string]interface{}{
				"search": prop("string", "Only records whose ID, names or employee code contain this text"),
			}),
		},
		{
			Name:        "record_get",
			Description: "Get one employee record by its unique ID.",
			InputSchema: schema(map[string]interface{}{
				"unique_id": prop("string", "Unique ID printed under the barcode"),
			}, "unique_id"),
		},
		{
			Name:        "record_delete",
			Description: "Delete one employee record after backing the database up.",
			InputSchema: schema(map[string]interface{}{
				"id":         prop("integer", "Database id of the record"),
				"keep_image": prop("boolean", "Leave the barcode image on disk"),
			}, "id"),
		},
		{
			Name:        "records_stats",
			Description: "Count stored records and distinct barcode formats.",
			InputSchema: schema(map[string]interface{}{}),
		},

		// Carnets
		{
			Name:        "template_variables",
			Description: "List the {{placeholders}} of an HTML carnet template and which of them are user-editable.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Absolute path to the HTML template"),
			}, "path"),
		},
		{
			Name:        "carnet_render",
			Description: "Render one carnet from an HTML template for a stored record and write it as PNG (600 DPI) or PDF (1200 DPI).",
			InputSchema: schema(map[string]interface{}{
				"unique_id": prop("string", "Unique ID of the record"),
				"template":  prop("string", "Absolute path to the HTML template"),
				"output":    prop("string", "Output file; defaults to the carnets directory"),
				"format":    prop("string", "png (default) or pdf"),
				"verify":    prop("boolean", "Check the result with OCR (default true)"),
				"values": map[string]interface{}{
					"type":                 "object",
					"description":          "Values for user-editable placeholders",
					"additionalProperties": map[string]interface{}{"type": "string"},
				},
			}, "unique_id", "template"),
		},
		{
			Name:        "carnet_verify",
			Description: "Run OCR on a carnet image or PDF and report which expected fields are legible.",
			InputSchema: schema(map[string]interface{}{
				"path":          prop("string", "Absolute path to the PNG, JPEG or PDF"),
				"first_names":   prop("string", "Expected first names"),
				"last_names":    prop("string", "Expected last names"),
				"employee_code": prop("string", "Expected employee code"),
				"unique_id":     prop("string", "Expected unique ID"),
			}, "path"),
		},

		// Bulk and diagnostics
		{
			Name:        "import_validate",
			Description: "Validate an Excel import without writing anything: counts new rows, duplicates, invalid existing barcodes and row errors.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Absolute path to the .xlsx file"),
			}, "path"),
		},
		{
			Name:        "ocr_info",
			Description: "Report whether Tesseract is installed, its version and languages.",
			InputSchema: schema(map[string]interface{}{}),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
