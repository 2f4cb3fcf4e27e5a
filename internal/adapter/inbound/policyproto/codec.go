// Package policyproto implements the Postfix smtpd_access_policy wire
// protocol: a framed key=value attribute block terminated by a blank line,
// answered with a single framed verdict line.
package policyproto

import (
	"bytes"
	"fmt"
	"strings"
)

// Attributes is the parsed inquiry attribute map. Keys not in the protocol's
// recognized set are preserved but play no role in version detection or
// the validity gate; rule conditions may still reference any key.
type Attributes map[string]string

// RequiredRequestKey/Value is the validity gate: every well-formed inquiry
// must carry this pair.
const (
	RequiredRequestKey   = "request"
	RequiredRequestValue = "smtpd_access_policy"
)

// ErrInvalidRequest indicates the inquiry failed the validity gate.
var ErrInvalidRequest = fmt.Errorf("invalid request: missing %s=%s", RequiredRequestKey, RequiredRequestValue)

// frameTerminator marks end-of-inquiry on the wire: a blank line after the
// last key=value line.
const frameTerminator = "\n\n"

// FrameComplete reports whether buf ends with a full inquiry frame.
func FrameComplete(buf []byte) bool {
	return bytes.HasSuffix(buf, []byte(frameTerminator))
}

// ParseInquiry parses one framed key=value block. Only the first '=' on
// each line separates key from value; blank lines within the block (other
// than the terminating one) are ignored. Leading/trailing whitespace on
// both key and value is stripped.
func ParseInquiry(frame []byte) (Attributes, error) {
	text := strings.TrimRight(string(frame), "\n")
	attrs := make(Attributes)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return attrs, nil
}

// Validate applies the validity gate: ParseInquiry never errors on
// malformed lines, but a request missing request=smtpd_access_policy is
// rejected before reaching the Decision Pipeline.
func Validate(attrs Attributes) error {
	if attrs[RequiredRequestKey] != RequiredRequestValue {
		return ErrInvalidRequest
	}
	return nil
}

// FormatVerdict renders a verdict line: "<action> <customText>\n\n", with
// the separating space collapsed away when customText is empty.
func FormatVerdict(action, customText string) []byte {
	verdict := action
	if customText != "" {
		verdict = action + " " + customText
	}
	return []byte(verdict + frameTerminator)
}

// InvalidRequestResponse is the fixed response for a request that fails
// the validity gate.
func InvalidRequestResponse() []byte {
	return []byte("REJECT Invalid request" + frameTerminator)
}
