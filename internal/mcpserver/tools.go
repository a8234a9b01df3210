// Package mcpserver registers MCP tools that expose the read-only sync
// operations. It adapts the syncer package to the MCP SDK's tool handler
// interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexjbarnes/studio-sync/internal/syncer"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools adds all sync tools to the given MCP server.
func RegisterTools(server *mcp.Server, e *syncer.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_diff",
		Description: "Compare exported scripts against the files on disk. Returns changed scripts with the local text and a unified patch, scripts with no local file, and files too large to read. Never writes.",
	}, diffHandler(e))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_diff_instances",
		Description: "Compare exported instance trees against the files on disk. Local files may be partial: omitted properties and children are filled in from the export before comparing. Never writes.",
	}, diffInstancesHandler(e))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_local_index",
		Description: "List script or instance files in the output folder with the logical path each maps back to. Pass studio_paths to resolve legacy file names.",
	}, indexHandler(e))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_local_get",
		Description: "Read one script or instance file from the output folder. Instance files are returned in canonical form.",
	}, getHandler(e))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report which exported files were edited or deleted locally since the last export.",
	}, statusHandler(e))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ScriptItemInput is one exported script.
type ScriptItemInput struct {
	Name   string   `json:"name" jsonschema:"required,script name"`
	Class  string   `json:"class" jsonschema:"required,Script, LocalScript or ModuleScript"`
	Path   []string `json:"path" jsonschema:"required,path from the service root, including the script itself"`
	Source string   `json:"source" jsonschema:"script source as exported"`
}

// ScriptRootInput groups scripts under one service.
type ScriptRootInput struct {
	Service string            `json:"service" jsonschema:"required,service name, e.g. ServerScriptService"`
	Items   []ScriptItemInput `json:"items"`
}

// DiffInput holds parameters for sync_diff.
type DiffInput struct {
	OutputFolder string            `json:"outputFolderName,omitempty" jsonschema:"output folder, defaults to the configured one"`
	Roots        []ScriptRootInput `json:"roots" jsonschema:"required,exported scripts grouped by service"`
}

// InstanceItemInput is one exported instance tree.
type InstanceItemInput struct {
	Service string         `json:"service" jsonschema:"required,service name, e.g. Workspace"`
	Name    string         `json:"name" jsonschema:"required,instance name"`
	Class   string         `json:"class" jsonschema:"required,instance class"`
	Path    []string       `json:"path" jsonschema:"required,path from the service root"`
	Tree    map[string]any `json:"tree" jsonschema:"required,tree with class, name, props, attrs and children"`
}

// DiffInstancesInput holds parameters for sync_diff_instances.
type DiffInstancesInput struct {
	OutputFolder string              `json:"outputFolderName,omitempty" jsonschema:"output folder, defaults to the configured one"`
	Instances    []InstanceItemInput `json:"instances" jsonschema:"required,exported instance trees"`
}

// IndexInput holds parameters for sync_local_index.
type IndexInput struct {
	OutputFolder string     `json:"outputFolderName,omitempty" jsonschema:"output folder, defaults to the configured one"`
	Instances    bool       `json:"instances,omitempty" jsonschema:"index instance files instead of scripts"`
	Services     []string   `json:"services,omitempty" jsonschema:"only include these services"`
	StudioPaths  [][]string `json:"studio_paths,omitempty" jsonschema:"authoritative paths, each starting with its service"`
}

// GetInput holds parameters for sync_local_get.
type GetInput struct {
	OutputFolder string `json:"outputFolderName,omitempty" jsonschema:"output folder, defaults to the configured one"`
	RelPath      string `json:"relPath" jsonschema:"required,file path relative to the output folder"`
	Instance     bool   `json:"instance,omitempty" jsonschema:"read as an instance tree"`
}

// StatusInput holds parameters for sync_status.
type StatusInput struct {
	OutputFolder string `json:"outputFolderName,omitempty" jsonschema:"output folder, defaults to the configured one"`
}

// GetResult is the output of sync_local_get. Pretty is set for instances.
type GetResult struct {
	RelPath string `json:"relPath"`
	Source  string `json:"source,omitempty"`
	Pretty  string `json:"pretty,omitempty"`
}

// --- Handlers ---

// reparse hands tool input to the same lenient decoder the HTTP
// transport uses.
func reparse[T any](input any, parse func([]byte) (T, error)) (T, error) {
	data, err := json.Marshal(input)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("encoding input: %w", err)
	}

	return parse(data)
}

func diffHandler(e *syncer.Engine) mcp.ToolHandlerFor[DiffInput, *syncer.DiffResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input DiffInput) (*mcp.CallToolResult, *syncer.DiffResult, error) {
		p, err := reparse(input, syncer.ParseScriptPayload)
		if err != nil {
			return nil, nil, err
		}

		dir, err := e.Open(p.OutputFolder)
		if err != nil {
			return nil, nil, err
		}

		result, err := e.DiffScripts(dir, p)
		if err != nil {
			return nil, nil, err
		}

		return textResult(result), result, nil
	}
}

func diffInstancesHandler(e *syncer.Engine) mcp.ToolHandlerFor[DiffInstancesInput, *syncer.DiffResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input DiffInstancesInput) (*mcp.CallToolResult, *syncer.DiffResult, error) {
		if input.Instances == nil {
			input.Instances = []InstanceItemInput{}
		}

		p, err := reparse(input, syncer.ParseInstancePayload)
		if err != nil {
			return nil, nil, err
		}

		dir, err := e.Open(p.OutputFolder)
		if err != nil {
			return nil, nil, err
		}

		result, err := e.DiffInstances(dir, p)
		if err != nil {
			return nil, nil, err
		}

		return textResult(result), result, nil
	}
}

func indexHandler(e *syncer.Engine) mcp.ToolHandlerFor[IndexInput, *syncer.IndexResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input IndexInput) (*mcp.CallToolResult, *syncer.IndexResult, error) {
		dir, err := e.Open(input.OutputFolder)
		if err != nil {
			return nil, nil, err
		}

		req := syncer.IndexRequest{
			OutputFolder: input.OutputFolder,
			Services:     input.Services,
			StudioPaths:  input.StudioPaths,
		}

		index := e.LocalIndex
		if input.Instances {
			index = e.LocalIndexInstances
		}

		result, err := index(dir, req)
		if err != nil {
			return nil, nil, err
		}

		return textResult(result), result, nil
	}
}

func getHandler(e *syncer.Engine) mcp.ToolHandlerFor[GetInput, *GetResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input GetInput) (*mcp.CallToolResult, *GetResult, error) {
		dir, err := e.Open(input.OutputFolder)
		if err != nil {
			return nil, nil, err
		}

		var result *GetResult

		if input.Instance {
			f, err := e.GetInstance(dir, input.RelPath)
			if err != nil {
				return nil, nil, err
			}

			result = &GetResult{RelPath: f.RelPath, Pretty: f.Pretty}
		} else {
			f, err := e.GetScript(dir, input.RelPath)
			if err != nil {
				return nil, nil, err
			}

			result = &GetResult{RelPath: f.RelPath, Source: f.Source}
		}

		return textResult(result), result, nil
	}
}

func statusHandler(e *syncer.Engine) mcp.ToolHandlerFor[StatusInput, *syncer.StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, *syncer.StatusResult, error) {
		dir, err := e.Open(input.OutputFolder)
		if err != nil {
			return nil, nil, err
		}

		result := e.Status(dir)

		return textResult(result), result, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
