package server

import (
	"reflect"
	"sort"
	"testing"
)

func toolsByName(t *testing.T) map[string]Tool {
	t.Helper()
	toolMap := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		if _, dup := toolMap[tool.Name]; dup {
			t.Errorf("tool %s defined twice", tool.Name)
		}
		toolMap[tool.Name] = tool
	}
	return toolMap
}

func TestGetToolDefinitions(t *testing.T) {
	// Required arguments per tool; nil means none.
	expected := map[string][]string{
		"image_load":        {"path"},
		"image_dimensions":  {"path"},
		"image_crop":        {"path", "x1", "y1", "x2", "y2"},
		"image_crop_center": {"path"},
		"nrea_lowpass":      {"path", "output_path"},
		"nrea_compensate":   {"path", "output_path"},
		"nrea_accumulate":   nil,
		"snr_estimate":      {"path"},
		"snr_batch":         nil,
		"snr_trend":         nil,
		"snr_kernel_sweep":  nil,
		"image_similarity":  nil,
		"image_stack":       {"output_path"},
		"roi_overlay":       {"path"},
		"device_list":       nil,
	}

	toolMap := toolsByName(t)
	if len(toolMap) != len(expected) {
		t.Errorf("Tool count: got %d, want %d", len(toolMap), len(expected))
	}

	for name, wantRequired := range expected {
		t.Run(name, func(t *testing.T) {
			tool, ok := toolMap[name]
			if !ok {
				t.Fatalf("Expected tool %s not found", name)
			}
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema properties should be a map")
			}

			got, _ := tool.InputSchema["required"].([]string)
			if !reflect.DeepEqual(sorted(got), sorted(wantRequired)) {
				t.Errorf("required: got %v, want %v", got, wantRequired)
			}
			for _, r := range got {
				if _, ok := props[r]; !ok {
					t.Errorf("required %s is not a declared property", r)
				}
			}
		})
	}
}

func sorted(s []string) []string {
	out := append([]string{}, s...)
	sort.Strings(out)
	return out
}

func TestToolDefinitions_PropertyGroups(t *testing.T) {
	toolMap := toolsByName(t)

	groups := []struct {
		name  string
		props []string
		tools []string
	}{
		{
			"kernel",
			[]string{"kernel", "kernel_radius"},
			[]string{"nrea_lowpass", "nrea_compensate", "nrea_accumulate", "snr_trend"},
		},
		{
			"region",
			[]string{"center_x", "center_y", "radius", "device", "variant", "roi_shape", "noise_mode", "background_offset"},
			[]string{"nrea_accumulate", "snr_estimate", "snr_batch", "snr_trend", "snr_kernel_sweep", "roi_overlay"},
		},
		{
			"batch",
			[]string{"paths", "folder", "format", "channel"},
			[]string{"nrea_accumulate", "snr_batch", "snr_trend", "snr_kernel_sweep", "image_stack"},
		},
		{
			"output",
			[]string{"bit_depth", "normalize"},
			[]string{"nrea_lowpass", "nrea_compensate", "nrea_accumulate", "snr_kernel_sweep", "image_stack"},
		},
		{
			"similarity sides",
			[]string{"path_a", "path_b", "folder_a", "folder_b", "blur_radius"},
			[]string{"image_similarity"},
		},
		{
			"sweep",
			[]string{"kernels", "radii", "output_dir", "csv_path"},
			[]string{"snr_kernel_sweep"},
		},
	}

	for _, g := range groups {
		for _, name := range g.tools {
			props := toolMap[name].InputSchema["properties"].(map[string]interface{})
			for _, p := range g.props {
				if _, ok := props[p]; !ok {
					t.Errorf("%s: missing %s property %s", name, g.name, p)
				}
			}
		}
	}

	kernel := toolMap["nrea_accumulate"].InputSchema["properties"].(map[string]interface{})["kernel"].(map[string]interface{})
	if enum, _ := kernel["enum"].([]string); !reflect.DeepEqual(enum, []string{"CA", "GB"}) {
		t.Errorf("kernel enum got %v, want [CA GB]", enum)
	}
}

func TestToolDefinitions_OptionalDefaults(t *testing.T) {
	toolMap := toolsByName(t)

	toolDefaults := map[string]map[string]interface{}{
		"image_crop":        {"scale": 1.0},
		"image_crop_center": {"factor": 2},
		"snr_trend":         {"cumulative": true},
		"image_stack":       {"method": "mean", "sigma": 2.0},
		"roi_overlay":       {"signal_color": "#00ff00", "background_color": "#ff0000", "alpha": 0.3, "show_center": true},
	}

	for toolName, expectedDefaults := range toolDefaults {
		props := toolMap[toolName].InputSchema["properties"].(map[string]interface{})
		for paramName, expected := range expectedDefaults {
			param, ok := props[paramName].(map[string]interface{})
			if !ok {
				t.Errorf("%s.%s: parameter not found or not a map", toolName, paramName)
				continue
			}
			if actual, ok := param["default"]; !ok || actual != expected {
				t.Errorf("%s.%s: default got %v (%T), want %v (%T)", toolName, paramName, actual, actual, expected, expected)
			}
		}
	}
}
