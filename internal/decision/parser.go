package decision

import (
	"fmt"
	"strings"

	"agentra/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const replySchema = `{
	"type": "object",
	"required": ["decision", "reason", "confidence"],
	"properties": {
		"decision":    {"type": "string", "enum": ["BUY", "SELL", "HOLD"]},
		"reason":      {"type": "string"},
		"stop_loss":   {"type": ["number", "null"]},
		"take_profit": {"type": ["number", "null"]},
		"confidence":  {"type": "integer", "minimum": 0, "maximum": 10}
	}
}`

var compiledReplySchema = mustCompileReplySchema()

func mustCompileReplySchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("reply.json", strings.NewReader(replySchema)); err != nil {
		panic(fmt.Sprintf("decision: reply schema resource: %v", err))
	}
	return compiler.MustCompile("reply.json")
}

// ParseReply turns raw oracle output into a Decision. Extraction tolerates
// markdown fences and surrounding prose; coercion tolerates the usual model
// sloppiness (lowercase verdicts, "action" instead of "decision", numbers as
// strings). The result is still schema-validated before it is trusted.
func ParseReply(raw string) (Decision, error) {
	block, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Decision{}, fmt.Errorf("decision: no JSON object in oracle reply")
	}
	if !gjson.Valid(block) {
		return Decision{}, fmt.Errorf("decision: oracle reply is not valid JSON")
	}
	parsed := gjson.Parse(block)
	if !parsed.IsObject() {
		return Decision{}, fmt.Errorf("decision: oracle reply root must be an object")
	}

	canonical := coerceReply(parsed)
	if err := compiledReplySchema.Validate(canonical); err != nil {
		return Decision{}, fmt.Errorf("decision: oracle reply failed schema: %w", err)
	}

	d := Decision{
		Action:     Action(canonical["decision"].(string)),
		Reason:     canonical["reason"].(string),
		Confidence: int(canonical["confidence"].(float64)),
	}
	if v, ok := canonical["stop_loss"].(float64); ok {
		d.StopLoss = &v
	}
	if v, ok := canonical["take_profit"].(float64); ok {
		d.TakeProfit = &v
	}
	return d, nil
}

// coerceReply normalizes the parsed object into the canonical shape the
// schema expects.
func coerceReply(parsed gjson.Result) map[string]any {
	out := make(map[string]any, 5)

	verdict := parsed.Get("decision")
	if !verdict.Exists() {
		verdict = parsed.Get("action")
	}
	out["decision"] = strings.ToUpper(strings.TrimSpace(verdict.String()))

	reason := parsed.Get("reason")
	if !reason.Exists() {
		reason = parsed.Get("reasoning")
	}
	if r := strings.TrimSpace(reason.String()); r != "" {
		out["reason"] = r
	}

	if conf := parsed.Get("confidence"); conf.Exists() {
		out["confidence"] = float64(int(conf.Float()))
	}
	if v, ok := numberField(parsed, "stop_loss"); ok {
		out["stop_loss"] = v
	}
	if v, ok := numberField(parsed, "take_profit"); ok {
		out["take_profit"] = v
	}
	return out
}

// numberField reads a possibly string-encoded number, treating null, absent,
// empty and non-positive values as "not provided".
func numberField(parsed gjson.Result, key string) (float64, bool) {
	field := parsed.Get(key)
	if !field.Exists() || field.Type == gjson.Null {
		return 0, false
	}
	if field.Type == gjson.String && strings.TrimSpace(field.String()) == "" {
		return 0, false
	}
	v := field.Float()
	if v <= 0 {
		return 0, false
	}
	return v, true
}
