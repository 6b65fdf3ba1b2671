// ABOUTME: Small builders for tool input schemas
// ABOUTME: Objects are closed; ids accept decimal strings or whole numbers

package tools

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/inline-mcp/internal/inline"
)

// maxBase64Length admits a 25 MiB payload plus a data URI prefix.
const maxBase64Length = 36 << 20

func object(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

func idProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Types: []string{"string", "integer"}, Description: description}
}

func stringProp(description string, minLen, maxLen int) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string", Description: description}
	if minLen > 0 {
		s.MinLength = jsonschema.Ptr(minLen)
	}
	if maxLen > 0 {
		s.MaxLength = jsonschema.Ptr(maxLen)
	}
	return s
}

func intProp(description string, minimum, maximum float64) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "integer",
		Description: description,
		Minimum:     jsonschema.Ptr(minimum),
		Maximum:     jsonschema.Ptr(maximum),
	}
}

func boolProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: description}
}

func enumProp(description string, values ...string) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{Type: "string", Description: description, Enum: enum}
}

func timeProp(field string) *jsonschema.Schema {
	return stringProp(field+` bound: epoch seconds, YYYY-MM-DD, "today", "yesterday" or "<N><s|m|h|d|w> ago"`, 1, 64)
}

// withTarget adds the chatId/userId pair shared by chat-addressed tools.
func withTarget(props map[string]*jsonschema.Schema) map[string]*jsonschema.Schema {
	props["chatId"] = idProp("Chat id. Provide exactly one of chatId or userId.")
	props["userId"] = idProp("User id of a direct message peer. Provide exactly one of chatId or userId.")
	return props
}

// withMediaSource adds the upload source and naming arguments.
func withMediaSource(props map[string]*jsonschema.Schema) map[string]*jsonschema.Schema {
	props["base64"] = stringProp("File bytes as base64 or a data:<mime>;base64, URI. Provide exactly one of base64 or url.", 1, maxBase64Length)
	props["url"] = stringProp("Public https URL to fetch the file from. Provide exactly one of base64 or url.", 1, 2048)
	props["fileName"] = stringProp("File name to present", 1, 255)
	props["contentType"] = stringProp("MIME type, overriding the inferred one", 1, 255)
	props["kind"] = enumProp("Upload kind", "auto", "photo", "video", "document")
	props["extension"] = stringProp("Extension for a synthesized file name", 1, 16)
	props["width"] = intProp("Video width in pixels", 1, 16384)
	props["height"] = intProp("Video height in pixels", 1, 16384)
	props["duration"] = intProp("Video duration in seconds", 0, 86400)
	return props
}

// withSendOptions adds the per-message reply, markdown and send mode arguments.
func withSendOptions(props map[string]*jsonschema.Schema) map[string]*jsonschema.Schema {
	props["replyToMessageId"] = idProp("Message to reply to")
	props["parseMarkdown"] = boolProp("Render markdown in the text. Omit for the server default.")
	props["sendMode"] = enumProp("Delivery mode; silent sends without a notification", inline.SendModeNormal, inline.SendModeSilent)
	return props
}
