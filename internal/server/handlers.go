package server

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ironsheep/carnet-tools/internal/barcode"
	"github.com/ironsheep/carnet-tools/internal/carnet"
	"github.com/ironsheep/carnet-tools/internal/issue"
	"github.com/ironsheep/carnet-tools/internal/minter"
	"github.com/ironsheep/carnet-tools/internal/ocr"
	"github.com/ironsheep/carnet-tools/internal/render"
	"github.com/ironsheep/carnet-tools/internal/store"
	"github.com/ironsheep/carnet-tools/internal/xlsx"
)

// Backend is the set of services the tools call into.
type Backend struct {
	Store    *store.Store
	Issuer   *issue.Issuer
	Importer *xlsx.Importer
	Verifier *ocr.Verifier
	OCRInfo  func() ocr.OCRInfo
	// Carnets returns the orchestrator, starting the browser on first use.
	Carnets func(ctx context.Context) (*carnet.Orchestrator, error)
	// LoadTemplate reads a template with the configured card geometry.
	LoadTemplate func(path string) (*render.Template, error)
	CarnetsDir   string
	Format       barcode.Format
	CaptionPx    int
}

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "barcode_generate", "carnet_render").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Barcodes
	case "barcode_generate":
		return s.handleBarcodeGenerate(ctx, args)
	case "service_generate":
		return s.handleServiceGenerate(ctx, args)

	// Records
	case "records_list":
		return s.handleRecordsList(ctx, args)
	case "record_get":
		return s.handleRecordGet(ctx, args)
	case "record_delete":
		return s.handleRecordDelete(ctx, args)
	case "records_stats":
		return s.backend.Store.Stats(ctx)

	// Carnets
	case "template_variables":
		return s.handleTemplateVariables(args)
	case "carnet_render":
		return s.handleCarnetRender(ctx, args)
	case "carnet_verify":
		return s.handleCarnetVerify(args)

	// Bulk and diagnostics
	case "import_validate":
		return s.handleImportValidate(ctx, args)
	case "ocr_info":
		if s.backend.OCRInfo == nil {
			return ocr.OCRInfo{Backend: "gosseract"}, nil
		}
		return s.backend.OCRInfo(), nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// recordView is the JSON shape of a stored record.
type recordView struct {
	ID           int64     `json:"id"`
	BarcodeValue string    `json:"barcode_value"`
	UniqueID     string    `json:"unique_id"`
	CreatedAt    time.Time `json:"created_at"`
	FirstNames   string    `json:"first_names"`
	LastNames    string    `json:"last_names"`
	EmployeeCode string    `json:"employee_code"`
	Format       string    `json:"format"`
	Image        string    `json:"image,omitempty"`
}

func (s *Server) view(r store.BarcodeRecord) recordView {
	v := recordView{
		ID:           r.ID,
		BarcodeValue: r.BarcodeValue,
		UniqueID:     r.UniqueID,
		CreatedAt:    r.CreatedAt,
		FirstNames:   r.FirstNames,
		LastNames:    r.LastNames,
		EmployeeCode: r.EmployeeCode,
		Format:       string(r.Format),
	}
	if r.ImageFilename != "" {
		v.Image = s.backend.Store.ImagePath(r.ImageFilename)
	}
	return v
}

// === Barcode Handlers ===

type barcodeGenerateArgs struct {
	FirstNames   string `json:"first_names"`
	LastNames    string `json:"last_names"`
	EmployeeCode string `json:"employee_code"`
	Format       string `json:"format"`
	PrefixName   bool   `json:"prefix_name"`
	CustomText   string `json:"custom_text"`
}

func (s *Server) format(name string) (barcode.Format, error) {
	if name == "" {
		if s.backend.Format != "" {
			return s.backend.Format, nil
		}
		return barcode.Code128, nil
	}
	return barcode.ParseFormat(name)
}

func (s *Server) handleBarcodeGenerate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a barcodeGenerateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	f, err := s.format(a.Format)
	if err != nil {
		return nil, err
	}
	got, err := s.backend.Issuer.Issue(ctx, issue.Request{
		FirstNames:   a.FirstNames,
		LastNames:    a.LastNames,
		EmployeeCode: a.EmployeeCode,
		Format:       f,
		Mint:         minter.Options{IncludeName: a.PrefixName, CustomText: a.CustomText},
		CaptionPx:    s.backend.CaptionPx,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"record":   s.view(got.Record),
		"warnings": got.Audit.Warnings,
	}, nil
}

type serviceGenerateArgs struct {
	Name      string `json:"name"`
	Format    string `json:"format"`
	CaptionPx int    `json:"caption_px"`
}

func (s *Server) handleServiceGenerate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a serviceGenerateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	f, err := s.format(a.Format)
	if err != nil {
		return nil, err
	}
	if a.CaptionPx == 0 {
		a.CaptionPx = s.backend.CaptionPx
	}
	svc, err := s.backend.Issuer.IssueService(ctx, issue.ServiceRequest{Name: a.Name, Format: f, CaptionPx: a.CaptionPx})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":         svc.ID,
		"unique_id":  svc.UniqueID,
		"service":    svc.ServiceName,
		"format":     string(svc.Format),
		"caption_px": svc.CaptionPx,
		"image":      s.backend.Store.ImagePath(svc.ImageFilename),
	}, nil
}

// === Record Handlers ===

type recordsListArgs struct {
	Search string `json:"search"`
}

func (s *Server) handleRecordsList(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a recordsListArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	records, err := s.backend.Store.Search(ctx, a.Search)
	if err != nil {
		return nil, err
	}
	out := make([]recordView, len(records))
	for i, r := range records {
		out[i] = s.view(r)
	}
	return map[string]interface{}{"count": len(out), "records": out}, nil
}

type recordGetArgs struct {
	UniqueID string `json:"unique_id"`
}

func (s *Server) handleRecordGet(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a recordGetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	rec, err := s.backend.Store.FindByUniqueID(ctx, a.UniqueID)
	if err != nil {
		return nil, err
	}
	return s.view(rec), nil
}

type recordDeleteArgs struct {
	ID        int64 `json:"id"`
	KeepImage bool  `json:"keep_image"`
}

func (s *Server) handleRecordDelete(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a recordDeleteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	ok, err := s.backend.Store.Delete(ctx, a.ID, !a.KeepImage)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": a.ID, "deleted": ok}, nil
}

// === Carnet Handlers ===

type templateArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleTemplateVariables(args json.RawMessage) (interface{}, error) {
	var a templateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	tpl, err := s.loadTemplate(a.Path)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"variables": tpl.Variables(),
		"editable":  tpl.UserVariables(),
	}, nil
}

func (s *Server) loadTemplate(path string) (*render.Template, error) {
	if s.backend.LoadTemplate != nil {
		return s.backend.LoadTemplate(path)
	}
	return render.LoadTemplate(path)
}

type carnetRenderArgs struct {
	UniqueID string            `json:"unique_id"`
	Template string            `json:"template"`
	Output   string            `json:"output"`
	Format   string            `json:"format"`
	Verify   *bool             `json:"verify"`
	Values   map[string]string `json:"values"`
}

func (s *Server) handleCarnetRender(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a carnetRenderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Format == "" {
		a.Format = string(carnet.PNG)
	}
	f, err := carnet.ParseFormat(a.Format)
	if err != nil {
		return nil, err
	}
	tpl, err := s.loadTemplate(a.Template)
	if err != nil {
		return nil, err
	}
	rec, err := s.backend.Store.FindByUniqueID(ctx, a.UniqueID)
	if err != nil {
		return nil, err
	}
	if s.backend.Carnets == nil {
		return nil, fmt.Errorf("carnet rendering is not configured")
	}
	orch, err := s.backend.Carnets(ctx)
	if err != nil {
		return nil, err
	}

	output := a.Output
	if output == "" {
		output = filepath.Join(s.backend.CarnetsDir, carnet.EntryName(rec, f))
	}
	res, err := orch.RenderOne(ctx, carnet.Job{
		Record:   rec,
		Template: tpl,
		Vars:     render.Variables(a.Values),
		Output:   output,
		Format:   f,
		Verify:   a.Verify == nil || *a.Verify,
	}, nil)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"path":            res.Path,
		"verified":        res.Verified,
		"warning":         res.Warning,
		"render_attempts": res.RenderAttempts,
		"ocr_attempts":    res.OCRAttempts,
	}, nil
}

type carnetVerifyArgs struct {
	Path         string `json:"path"`
	FirstNames   string `json:"first_names"`
	LastNames    string `json:"last_names"`
	EmployeeCode string `json:"employee_code"`
	UniqueID     string `json:"unique_id"`
}

func (s *Server) handleCarnetVerify(args json.RawMessage) (interface{}, error) {
	var a carnetVerifyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res := s.backend.Verifier.Verify(a.Path, ocr.Expected{
		FirstNames:   a.FirstNames,
		LastNames:    a.LastNames,
		EmployeeCode: a.EmployeeCode,
		UniqueID:     a.UniqueID,
	})
	return map[string]interface{}{
		"ok":      res.OK,
		"message": res.Message,
		"fields":  res.Fields,
	}, nil
}

// === Import Handlers ===

func (s *Server) handleImportValidate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a templateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	rep, err := s.backend.Importer.Validate(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"total":            rep.Total,
		"to_generate":      rep.ToGenerate,
		"duplicates":       rep.Duplicates,
		"invalid_existing": rep.InvalidExisting,
		"errors":           rep.Errors,
		"error_list":       rep.ErrorList,
	}, nil
}
