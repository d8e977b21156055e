// Package transcript pulls lead-submission tool calls out of conversation
// transcripts and normalizes their messy argument payloads into one shape.
package transcript

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/pkg/voiceapi"
)

// leadToolNames are the agent tool identifiers that represent a
// lead-submission action. Agent versions have shipped under different
// names, so all of them are recognized.
var leadToolNames = map[string]bool{
	"submit_lead":     true,
	"create_lead":     true,
	"collect_contact": true,
}

// Key aliases seen across agent versions; matched after lowercasing and
// underscore stripping.
var (
	nameKeys  = map[string]bool{"fullname": true, "name": true, "contactname": true}
	phoneKeys = map[string]bool{"phone": true, "phonenumber": true, "contactphone": true}
)

// Extraction is one lead-submission tool call found in a transcript.
type Extraction struct {
	MessageIndex int
	ToolName     string
	Payload      model.LeadPayload
}

// ExtractLeadPayloads scans every message of a conversation's transcript
// for lead-submission tool calls and returns their parsed payloads.
// Malformed argument payloads are skipped, not fatal: one broken tool call
// must not hide the rest of the transcript. Absent or empty transcripts
// yield an empty result.
func ExtractLeadPayloads(conv *voiceapi.Conversation) []Extraction {
	if conv == nil || len(conv.Transcript) == 0 {
		return nil
	}

	var out []Extraction
	for i, msg := range conv.Transcript {
		for _, tc := range msg.ToolCalls {
			if !leadToolNames[tc.ToolName] {
				continue
			}
			args, err := decodeArguments(tc.Arguments)
			if err != nil {
				zap.L().Debug("transcript: skipping unparseable tool call",
					zap.String("conversation_id", conv.ConversationID),
					zap.String("tool", tc.ToolName),
					zap.Int("message_index", i),
					zap.Error(err),
				)
				continue
			}
			out = append(out, Extraction{
				MessageIndex: i,
				ToolName:     tc.ToolName,
				Payload:      payloadFromArgs(args),
			})
		}
	}
	return out
}

// decodeArguments accepts both argument encodings the platform emits: a
// JSON object, or a JSON string containing JSON (older agent versions
// double-encode). Anything else is an error.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, json.Unmarshal(raw, &struct{}{})
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(encoded), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// payloadFromArgs picks the name and phone fields out of an argument map,
// tolerating the key casings different call sites use (FullName, full_name,
// name, Phone, phone_number, ...). Non-string values are ignored.
func payloadFromArgs(args map[string]any) model.LeadPayload {
	var p model.LeadPayload
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		key := strings.ReplaceAll(strings.ToLower(k), "_", "")
		switch {
		case nameKeys[key] && p.Name == "":
			p.Name = s
		case phoneKeys[key] && p.Phone == "":
			p.Phone = s
		}
	}
	return p
}
