package wait

import (
	"encoding/json"
	"strings"

	regexp "github.com/wasilibs/go-re2"
)

// maxDetailLen bounds verdict details carried into history and wake text.
const maxDetailLen = 200

// Verdict is the parsed form of a vision model reply.
type Verdict struct {
	Resolved bool
	Detail   string
}

// finalJSONRe matches the structured reply trailer: FINAL_JSON: {...}.
var finalJSONRe = regexp.MustCompile(`(?is)FINAL_JSON\s*:\s*(\{.*\})`)

type finalJSONPayload struct {
	Decision string `json:"decision"`
	Summary  string `json:"summary"`
}

// ParseVerdict turns a free-form model reply into a verdict. It prefers the
// structured FINAL_JSON trailer, falls back to the legacy YES-prefix form,
// and treats everything else as still watching. It never fails; malformed
// input yields a watching verdict carrying the reply text.
func ParseVerdict(reply string) Verdict {
	text := strings.TrimSpace(reply)
	if text == "" {
		return Verdict{Resolved: false, Detail: "Empty response"}
	}

	if m := finalJSONRe.FindStringSubmatch(text); m != nil {
		var payload finalJSONPayload
		if err := json.Unmarshal([]byte(m[1]), &payload); err == nil {
			detail := strings.TrimSpace(payload.Summary)
			if detail == "" {
				detail = truncateDetail(text)
			}
			resolved := strings.EqualFold(strings.TrimSpace(payload.Decision), "resolved")
			return Verdict{Resolved: resolved, Detail: detail}
		}
		// Malformed JSON falls through to the legacy parser.
	}

	if strings.HasPrefix(strings.ToUpper(text), "YES") {
		detail := strings.TrimSpace(text[3:])
		detail = strings.TrimSpace(strings.TrimPrefix(detail, ":"))
		if detail == "" {
			detail = "Condition met"
		}
		return Verdict{Resolved: true, Detail: truncateDetail(detail)}
	}

	if upper := strings.ToUpper(text); upper == "NO" || strings.HasPrefix(upper, "NO:") || strings.HasPrefix(upper, "NO ") {
		detail := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text[2:]), ":"))
		if detail == "" {
			detail = "Condition not yet met"
		}
		return Verdict{Resolved: false, Detail: truncateDetail(detail)}
	}

	return Verdict{Resolved: false, Detail: truncateDetail(text)}
}

func truncateDetail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen]
}
