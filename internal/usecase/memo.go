package usecase

import "strings"

// MemoCodec extracts payment identifiers from free-text transfer memos.
// A memo carries "<SYSTEM_CODE><payment id>" somewhere in its text; banks may
// upper-case it and wrap it in arbitrary words, but they keep the run contiguous.
// Matching is ASCII case-insensitive and the id is returned lower-cased.
type MemoCodec struct {
	prefix string // upper-cased system code
	idLen  int
}

func NewMemoCodec(systemCode string, idLength int) *MemoCodec {
	return &MemoCodec{
		prefix: asciiUpper(strings.TrimSpace(systemCode)),
		idLen:  idLength,
	}
}

// Encode returns the memo text a payer must include for paymentID.
func (c *MemoCodec) Encode(paymentID string) string {
	return c.prefix + asciiUpper(paymentID)
}

// Extract returns the first payment id found in content. Every occurrence of the
// prefix is tried in order; an occurrence qualifies when at least idLen ASCII
// letters or digits follow it directly.
func (c *MemoCodec) Extract(content string) (string, bool) {
	if c.prefix == "" || c.idLen <= 0 {
		return "", false
	}
	hay := asciiUpper(content)
	for from := 0; from < len(hay); {
		i := strings.Index(hay[from:], c.prefix)
		if i < 0 {
			return "", false
		}
		start := from + i + len(c.prefix)
		end := start
		for end < len(hay) && end-start < c.idLen && isAlnum(hay[end]) {
			end++
		}
		if end-start == c.idLen {
			return strings.ToLower(hay[start:end]), true
		}
		from = from + i + 1
	}
	return "", false
}

// asciiUpper folds a-z only so byte offsets stay aligned with the input.
func asciiUpper(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'a' && ch <= 'z' {
			b[i] = ch - 'a' + 'A'
		}
	}
	return string(b)
}

func isAlnum(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}
