package server

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ironsheep/nrea-snr-mcp/internal/config"
)

func TestNew(t *testing.T) {
	s := New()
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cache == nil {
		t.Fatal("New() did not initialize cache")
	}
	if s.cfg == nil {
		t.Fatal("New() did not install the default config")
	}
	if s.cfg.NREA.KernelRadius != 50 {
		t.Errorf("default kernel radius: got %d, want 50", s.cfg.NREA.KernelRadius)
	}
}

func TestNew_Options(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.NREA.KernelRadius = 7
	s := New(WithConfig(cfg), WithVersion("1.2.3"), WithConfig(nil))

	if s.cfg != cfg {
		t.Error("WithConfig(nil) must keep the previous config")
	}
	resp := s.handleInitialize(&MCPRequest{ID: 1})
	info := resp.Result.(map[string]interface{})["serverInfo"].(map[string]interface{})
	if info["version"] != "1.2.3" {
		t.Errorf("serverInfo.version: got %v, want 1.2.3", info["version"])
	}
}

func TestRun(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`not json`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"bogus"}`,
	}, "\n"))
	var out, logs bytes.Buffer
	logger := zerolog.New(&logs)

	s := New(WithIO(in, &out), WithLogger(logger))
	if err := s.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d responses, want 3:\n%s", len(lines), out.String())
	}
	var last MCPResponse
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if last.Error == nil || last.Error.Code != codeMethodNotFound {
		t.Errorf("last response: got %+v, want method not found", last.Error)
	}
	if !strings.Contains(logs.String(), "failed to parse request") {
		t.Errorf("parse failure not logged: %s", logs.String())
	}
	if !strings.Contains(logs.String(), `"component":"server"`) {
		t.Errorf("logger not tagged with component: %s", logs.String())
	}
}

func TestToolCallRequest_Decode(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		wantID interface{}
		tool   string
		args   interface{}
		want   interface{}
	}{
		{
			"device estimate with string id",
			`{"jsonrpc":"2.0","id":"est-1","method":"tools/call","params":{"name":"snr_estimate","arguments":{"path":"/frames/img_1.tiff","device":"OV","variant":"cropped2"}}}`,
			"est-1",
			"snr_estimate",
			&snrEstimateArgs{},
			&snrEstimateArgs{Path: "/frames/img_1.tiff", regionArgs: regionArgs{Device: "OV", Variant: "cropped2"}},
		},
		{
			"accumulate with number id",
			`{"jsonrpc":"2.0","id":42,"method":"tools/call","params":{"name":"nrea_accumulate","arguments":{"folder":"/frames","prefix_len":8,"kernel":"GB","kernel_radius":25,"archive_path":"/out/acc.cbor"}}}`,
			float64(42), // JSON numbers decode as float64
			"nrea_accumulate",
			&accumulateArgs{},
			&accumulateArgs{
				batchArgs:   batchArgs{Folder: "/frames"},
				kernelArgs:  kernelArgs{Kernel: "GB", KernelRadius: 25},
				PrefixLen:   8,
				ArchivePath: "/out/acc.cbor",
			},
		},
		{
			"kernel sweep with null id",
			`{"jsonrpc":"2.0","id":null,"method":"tools/call","params":{"name":"snr_kernel_sweep","arguments":{"paths":["a.tiff","b.tiff"],"kernels":["CA"],"radii":[10,50],"device":"Arducam"}}}`,
			nil,
			"snr_kernel_sweep",
			&kernelSweepArgs{},
			&kernelSweepArgs{
				batchArgs:  batchArgs{Paths: []string{"a.tiff", "b.tiff"}},
				regionArgs: regionArgs{Device: "Arducam"},
				Kernels:    []string{"CA"},
				Radii:      []int{10, 50},
			},
		},
		{
			"similarity of two folders",
			`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"image_similarity","arguments":{"folder_a":"/custom","folder_b":"/native","blur_radius":20}}}`,
			float64(7),
			"image_similarity",
			&similarityArgs{},
			&similarityArgs{FolderA: "/custom", FolderB: "/native", BlurRadius: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.JSONRPC != "2.0" || req.Method != "tools/call" {
				t.Errorf("envelope: got %s %s", req.JSONRPC, req.Method)
			}

			var params ToolCallParams
			if err := json.Unmarshal(req.Params, &params); err != nil {
				t.Fatalf("Failed to unmarshal params: %v", err)
			}
			if params.Name != tt.tool {
				t.Errorf("tool: got %s, want %s", params.Name, tt.tool)
			}
			if err := decodeArgs(params.Arguments, tt.args); err != nil {
				t.Fatalf("decodeArgs failed: %v", err)
			}
			if !reflect.DeepEqual(tt.args, tt.want) {
				t.Errorf("arguments:\n got %+v\nwant %+v", tt.args, tt.want)
			}
		})
	}
}

func TestMCPResponse_Encode(t *testing.T) {
	tests := []struct {
		name      string
		resp      *MCPResponse
		wantKeys  []string
		wantCode  int
		wantError string
	}{
		{
			"tool result",
			&MCPResponse{JSONRPC: "2.0", ID: 1, Result: map[string]interface{}{"content": []interface{}{}}},
			[]string{"id", "jsonrpc", "result"},
			0,
			"",
		},
		{
			"invalid params",
			New().errorResponse("c-1", codeInvalidParams, "Invalid params", "background_offset -2 must not be negative"),
			[]string{"error", "id", "jsonrpc"},
			-32602,
			"background_offset -2 must not be negative",
		},
		{
			"tool failure",
			New().errorResponse(3, codeToolFailed, "Tool execution failed", "accumulate: invalid input: batch is empty"),
			[]string{"error", "id", "jsonrpc"},
			-32000,
			"accumulate: invalid input: batch is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var raw map[string]json.RawMessage
			if err := json.Unmarshal(data, &raw); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			var keys []string
			for k := range raw {
				keys = append(keys, k)
			}
			if !reflect.DeepEqual(sorted(keys), tt.wantKeys) {
				t.Errorf("keys: got %v, want %v", sorted(keys), tt.wantKeys)
			}

			var decoded MCPResponse
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if tt.wantCode == 0 {
				if decoded.Error != nil {
					t.Errorf("unexpected error: %+v", decoded.Error)
				}
				return
			}
			if decoded.Error == nil || decoded.Error.Code != tt.wantCode {
				t.Fatalf("Error: got %+v, want code %d", decoded.Error, tt.wantCode)
			}
			if decoded.Error.Data != tt.wantError {
				t.Errorf("Error.Data: got %v, want %s", decoded.Error.Data, tt.wantError)
			}
		})
	}
}

func TestHandleRequest(t *testing.T) {
	s := New()

	tests := []struct {
		method   string
		id       interface{}
		wantNil  bool
		wantCode int
		check    func(t *testing.T, result map[string]interface{})
	}{
		{
			method: "initialize",
			id:     "init-1",
			check: func(t *testing.T, result map[string]interface{}) {
				if result["protocolVersion"] != "2024-11-05" {
					t.Errorf("protocolVersion: got %v", result["protocolVersion"])
				}
				info := result["serverInfo"].(map[string]interface{})
				if info["name"] != ServerName || info["version"] != "0.1.0" {
					t.Errorf("serverInfo: got %v", info)
				}
			},
		},
		{method: "ping", id: "ping-1"},
		{
			method: "tools/list",
			id:     2,
			check: func(t *testing.T, result map[string]interface{}) {
				tools, ok := result["tools"].([]Tool)
				if !ok {
					t.Fatal("tools should be a slice of Tool")
				}
				if len(tools) != len(GetToolDefinitions()) {
					t.Errorf("Tool count: got %d, want %d", len(tools), len(GetToolDefinitions()))
				}
			},
		},
		{method: "notifications/initialized", wantNil: true},
		{method: "resources/list", id: 4, wantCode: codeMethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: tt.id, Method: tt.method})
			if tt.wantNil {
				if resp != nil {
					t.Errorf("%s should not be answered", tt.method)
				}
				return
			}
			if resp == nil {
				t.Fatal("handleRequest returned nil")
			}
			if resp.ID != tt.id || resp.JSONRPC != "2.0" {
				t.Errorf("envelope: got id %v jsonrpc %s", resp.ID, resp.JSONRPC)
			}
			if tt.wantCode != 0 {
				if resp.Error == nil || resp.Error.Code != tt.wantCode {
					t.Errorf("Error: got %+v, want code %d", resp.Error, tt.wantCode)
				}
				return
			}
			if resp.Error != nil {
				t.Fatalf("Unexpected error: %v", resp.Error)
			}
			if tt.check != nil {
				tt.check(t, resp.Result.(map[string]interface{}))
			}
		})
	}
}
