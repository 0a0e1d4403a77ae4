package railscan

import "strings"

// ErrorCategory represents the classification of runtime errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryModel indicates inference model or inference config failures
	ErrCategoryModel ErrorCategory = iota
	// ErrCategoryResource indicates missing files, devices or permissions
	ErrCategoryResource
	// ErrCategoryCodec indicates decode, caps negotiation or format failures
	ErrCategoryCodec
	// ErrCategoryNetwork indicates connection failures of network sources
	ErrCategoryNetwork
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryModel:
		return "model"
	case ErrCategoryResource:
		return "resource"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Hint returns a short operator-facing troubleshooting line for the category.
func (e ErrorCategory) Hint() string {
	switch e {
	case ErrCategoryModel:
		return "check inference.config_file_path and the model/engine files it references"
	case ErrCategoryResource:
		return "check that the input file, display and GPU devices exist and are readable"
	case ErrCategoryCodec:
		return "check that the input codec is supported and aggregator resolution is valid"
	case ErrCategoryNetwork:
		return "check that the stream URI is reachable and set aggregator.live_source for live inputs"
	default:
		return "re-run with --debug and GST_DEBUG=3 for details"
	}
}

var categoryKeywords = []struct {
	category ErrorCategory
	keywords []string
}{
	// Priority order: most specific first
	{ErrCategoryModel, []string{
		"model", "engine file", "onnx", "tensorrt", "nvinfer", "config file", "config-file",
		"infer", "labelfile", "custom-lib", "parse-bbox",
	}},
	{ErrCategoryNetwork, []string{
		"connection", "timeout", "timed out", "unreachable", "network", "dns", "resolve",
		"socket", "rtsp", "could not connect", "failed to connect",
	}},
	{ErrCategoryResource, []string{
		"not found", "no such file", "permission", "could not open", "resource",
		"device", "egl", "display", "out of memory", "cuda",
	}},
	{ErrCategoryCodec, []string{
		"codec", "decode", "format", "negotiation", "not negotiated", "not-negotiated", "caps", "h264", "h265",
		"no decoder", "missing plugin", "demux",
	}},
}

// ClassifyError analyzes an error reported on the bus and categorizes it.
//
// Classification is based on keyword heuristics over the message and the
// debug string, because engine error domains are not exposed uniformly.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.category
			}
		}
	}
	return ErrCategoryUnknown
}
