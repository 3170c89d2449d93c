package security

import (
	"strings"

	"github.com/hupe1980/secmesh/tool"
)

// VectorToolName is the name of the attack vector explainer.
const VectorToolName = "explain_vector"

var vectorExplanations = map[string]string{
	"code":    "Code issue: This typically involves input validation errors, the use of insecure libraries, or general logic flaws in the application code.",
	"network": "Network issue: This often points to exposed ports, misconfigured firewalls, or weak network segmentation that allows for unauthorized access.",
	"config":  "Configuration issue: This is usually caused by default credentials, unsafe file permissions, or improperly configured logging and monitoring.",
}

const unknownVectorText = "Unknown vector. Valid options are 'code', 'network', or 'config'."

// VectorArgs are the arguments of explain_vector.
type VectorArgs struct {
	Vector string `json:"vector" description:"The vulnerability vector: code, network or config"`
}

// ExplainVector returns the explanation for vector (case-insensitive).
func ExplainVector(vector string) string {
	if text, ok := vectorExplanations[strings.ToLower(strings.TrimSpace(vector))]; ok {
		return text
	}
	return unknownVectorText
}

// NewVectorTool returns the explain_vector tool.
func NewVectorTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		VectorToolName,
		"Provides a detailed explanation for a given vulnerability vector. "+
			"Use this to understand the nature of a vulnerability (e.g., 'code', 'network', 'config').",
		VectorArgs{},
		func(_ *tool.Context, args map[string]any) (string, error) {
			vector, _ := args["vector"].(string)
			return ExplainVector(vector), nil
		},
	)
}
