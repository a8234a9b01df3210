package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alexjbarnes/studio-sync/internal/syncer"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSetup creates a temp output folder, registers tools on an MCP
// server, and returns a connected client session for calling tools.
func testSetup(t *testing.T) (*mcp.ClientSession, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "output")

	files := map[string]string{
		"ServerScriptService/Main.server.lua":      "print('local')",
		"ReplicatedStorage/Util.module.lua":        "return {}\r\n",
		"Workspace/Car.Model":                      `{"class":"Model","name":"Car","props":{"Scale":0.11372549019607843}}`,
		"Workspace/Broken.Part":                    "{nope",
		"StarterPlayer/StarterPlayerScripts/a.txt": "not a script",
	}
	for path, content := range files {
		abs := filepath.Join(out, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
	}

	e := syncer.New(syncer.Options{
		OutputDir:    out,
		Decimals:     5,
		MaxReadBytes: syncer.DefaultMaxReadBytes,
	}, slog.New(slog.DiscardHandler))

	server := mcp.NewServer(
		&mcp.Implementation{Name: "studio-sync-mcp-test", Version: "test"},
		nil,
	)
	RegisterTools(server, e)

	ctx := context.Background()
	t1, t2 := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := mcp.NewClient(
		&mcp.Implementation{Name: "test-client", Version: "test"},
		nil,
	)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return session, out
}

// callTool is a helper that calls a tool and returns the result.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	return result
}

// extractJSON unmarshals the first text content from a CallToolResult.
func extractJSON(t *testing.T, result *mcp.CallToolResult, dest interface{}) {
	t.Helper()
	require.NotEmpty(t, result.Content, "result has no content")
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "first content is not TextContent")
	require.NoError(t, json.Unmarshal([]byte(tc.Text), dest))
}

// --- tool registration ---

func TestListTools(t *testing.T) {
	session, _ := testSetup(t)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"sync_diff", "sync_diff_instances", "sync_local_index", "sync_local_get", "sync_status",
	}, names)
}

// --- sync_diff ---

func TestDiff_ChangedAndMissing(t *testing.T) {
	session, _ := testSetup(t)
	result := callTool(t, session, "sync_diff", map[string]interface{}{
		"roots": []interface{}{
			map[string]interface{}{
				"service": "ServerScriptService",
				"items": []interface{}{
					map[string]interface{}{"name": "Main", "class": "Script", "path": []string{"ServerScriptService", "Main"}, "source": "print('remote')"},
					map[string]interface{}{"name": "Other", "class": "Script", "path": []string{"ServerScriptService", "Other"}, "source": ""},
				},
			},
			map[string]interface{}{
				"service": "ReplicatedStorage",
				"items": []interface{}{
					map[string]interface{}{"name": "Util", "class": "ModuleScript", "path": []string{"ReplicatedStorage", "Util"}, "source": "return {}\n"},
				},
			},
		},
	})
	require.False(t, result.IsError)

	var out syncer.DiffResult
	extractJSON(t, result, &out)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, "Main", out.Changes[0].Name)
	assert.Equal(t, "print('local')", out.Changes[0].LocalSource)
	assert.Contains(t, out.Changes[0].Patch, "+print('local')")
	require.Len(t, out.MissingLocal, 1)
	assert.Equal(t, "Other", out.MissingLocal[0].Name)
	assert.Empty(t, out.SkippedLarge)
}

// --- sync_diff_instances ---

func TestDiffInstances_PartialAndInvalid(t *testing.T) {
	session, _ := testSetup(t)
	result := callTool(t, session, "sync_diff_instances", map[string]interface{}{
		"instances": []interface{}{
			map[string]interface{}{
				"service": "Workspace", "name": "Car", "class": "Model", "path": []string{"Workspace", "Car"},
				"tree": map[string]interface{}{"class": "Model", "name": "Car", "props": map[string]interface{}{"Scale": 0.113725513, "Anchored": true}},
			},
			map[string]interface{}{
				"service": "Workspace", "name": "Broken", "class": "Part", "path": []string{"Workspace", "Broken"},
				"tree": map[string]interface{}{"class": "Part", "name": "Broken"},
			},
		},
	})
	require.False(t, result.IsError)

	var out syncer.DiffResult
	extractJSON(t, result, &out)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, "Broken", out.Changes[0].Name)
	assert.Empty(t, out.MissingLocal)
}

// --- sync_local_index ---

func TestLocalIndex_Scripts(t *testing.T) {
	session, _ := testSetup(t)
	result := callTool(t, session, "sync_local_index", nil)
	require.False(t, result.IsError)

	var out syncer.IndexResult
	extractJSON(t, result, &out)

	rels := map[string]string{}
	for _, item := range out.Items {
		rels[item.RelPath] = item.Class
	}
	assert.Equal(t, map[string]string{
		"ServerScriptService/Main.server.lua": "Script",
		"ReplicatedStorage/Util.module.lua":   "ModuleScript",
	}, rels)
}

func TestLocalIndex_ServiceFilter(t *testing.T) {
	session, _ := testSetup(t)
	result := callTool(t, session, "sync_local_index", map[string]interface{}{
		"services": []string{"ReplicatedStorage"},
	})
	require.False(t, result.IsError)

	var out syncer.IndexResult
	extractJSON(t, result, &out)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Util", out.Items[0].Name)
}

func TestLocalIndex_Instances(t *testing.T) {
	session, _ := testSetup(t)
	result := callTool(t, session, "sync_local_index", map[string]interface{}{"instances": true})
	require.False(t, result.IsError)

	var out syncer.IndexResult
	extractJSON(t, result, &out)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Workspace/Car.Model", out.Items[0].RelPath)
	assert.Equal(t, []string{"Workspace", "Car"}, out.Items[0].Path)
}

// --- sync_local_get ---

func TestLocalGet_Script(t *testing.T) {
	session, _ := testSetup(t)
	result := callTool(t, session, "sync_local_get", map[string]interface{}{
		"relPath": "ReplicatedStorage/Util.module.lua",
	})
	require.False(t, result.IsError)

	var out GetResult
	extractJSON(t, result, &out)
	assert.Equal(t, "return {}\n", out.Source)
	assert.Empty(t, out.Pretty)
}

func TestLocalGet_InstanceIsCanonical(t *testing.T) {
	session, _ := testSetup(t)
	result := callTool(t, session, "sync_local_get", map[string]interface{}{
		"relPath":  "Workspace/Car.Model",
		"instance": true,
	})
	require.False(t, result.IsError)

	var out GetResult
	extractJSON(t, result, &out)
	assert.Contains(t, out.Pretty, `"Scale": 0.11373`)
	assert.Empty(t, out.Source)
}

func TestLocalGet_Errors(t *testing.T) {
	session, _ := testSetup(t)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing", map[string]interface{}{"relPath": "nope.lua"}},
		{"escape", map[string]interface{}{"relPath": "../../etc/passwd"}},
		{"invalid tree", map[string]interface{}{"relPath": "Workspace/Broken.Part", "instance": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Errors from ToolHandlerFor are returned as tool errors (IsError=true),
			// not as protocol errors.
			result := callTool(t, session, "sync_local_get", tt.args)
			assert.True(t, result.IsError)
		})
	}
}

// --- sync_status ---

func TestStatus_NoManifest(t *testing.T) {
	session, out := testSetup(t)
	result := callTool(t, session, "sync_status", nil)
	require.False(t, result.IsError)

	var res syncer.StatusResult
	extractJSON(t, result, &res)
	resolved, err := filepath.EvalSymlinks(out)
	require.NoError(t, err)
	assert.Equal(t, resolved, res.Output)
	assert.Empty(t, res.Entries)
}

// --- textResult ---

func TestTextResult_Unmarshalable(t *testing.T) {
	result := textResult(make(chan int))
	assert.True(t, result.IsError)
}
