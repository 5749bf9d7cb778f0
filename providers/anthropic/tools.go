package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haowjy/meridian-stream-go"
)

// convertToolsToAnthropicTools converts library function tools to Anthropic
// custom tools.
func convertToolsToAnthropicTools(tools []llmprovider.Tool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for i := range tools {
		if tools[i].Function.Name == "" {
			return nil, fmt.Errorf("tool %d: function name is required", i)
		}
		result = append(result, convertCustomTool(&tools[i]))
	}
	return result, nil
}

// convertCustomTool maps an OpenAI-style JSON schema (parameters) onto
// Anthropic's input_schema: properties and required are lifted, every other
// schema keyword is carried in ExtraFields.
func convertCustomTool(tool *llmprovider.Tool) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{
		Properties:  tool.Function.Parameters["properties"],
		ExtraFields: make(map[string]any),
	}

	switch required := tool.Function.Parameters["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		for _, v := range required {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	for key, value := range tool.Function.Parameters {
		if key != "type" && key != "properties" && key != "required" {
			schema.ExtraFields[key] = value
		}
	}

	toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
	if tool.Function.Description != "" {
		toolParam.OfTool.Description = anthropic.String(tool.Function.Description)
	}
	return toolParam
}

// convertToolChoice converts library ToolChoice to Anthropic format.
func convertToolChoice(choice *llmprovider.ToolChoice) (*anthropic.ToolChoiceUnionParam, error) {
	if err := choice.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tool choice: %w", err)
	}

	switch choice.Mode {
	case llmprovider.ToolChoiceModeAuto:
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, nil

	case llmprovider.ToolChoiceModeRequired:
		// Anthropic calls this "any"
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, nil

	case llmprovider.ToolChoiceModeNone:
		noneParam := anthropic.NewToolChoiceNoneParam()
		return &anthropic.ToolChoiceUnionParam{OfNone: &noneParam}, nil

	case llmprovider.ToolChoiceModeSpecific:
		unionParam := anthropic.ToolChoiceParamOfTool(*choice.ToolName)
		return &unionParam, nil

	default:
		return nil, fmt.Errorf("unsupported tool choice mode: %s", choice.Mode)
	}
}
