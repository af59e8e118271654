package dispatch

import "strings"

// Response classification for voice-agent callbacks.
//
// The provider reports a call status plus, when the conversation produced one,
// a free-text driver response. Classification is conservative: silence on a
// completed call is never treated as acceptance.

var affirmativeTokens = []string{
	"yes", "accept", "confirm", "sure", "okay", "ok", "haan", "ha",
}

var negativeTokens = []string{
	"no", "decline", "reject", "cannot", "can't", "cant", "busy", "not available", "nahi",
}

// failedCallStatuses are provider call states where the driver never spoke.
var failedCallStatuses = map[string]struct{}{
	"failed":    {},
	"busy":      {},
	"no-answer": {},
	"no_answer": {},
	"canceled":  {},
	"cancelled": {},
}

// ClassifyResponse maps one raw callback into exactly one Outcome.
//
// Priority order:
//  1. response text containing an affirmative token → accept
//  2. response text containing a negative token → decline
//  3. completed call with no recoverable response → no_answer
//  4. failed, busy, or unanswered call → no_answer
func ClassifyResponse(status, callStatus, driverResponse string) Outcome {
	if resp := strings.ToLower(strings.TrimSpace(driverResponse)); resp != "" {
		for _, tok := range affirmativeTokens {
			if containsToken(resp, tok) {
				return OutcomeAccept
			}
		}
		for _, tok := range negativeTokens {
			if containsToken(resp, tok) {
				return OutcomeDecline
			}
		}
	}
	if _, ok := failedCallStatuses[strings.ToLower(strings.TrimSpace(callStatus))]; ok {
		return OutcomeNoAnswer
	}
	// Completed but nothing recoverable said: the conservative default.
	return OutcomeNoAnswer
}

// containsToken reports whether text contains tok as a whole word, so that
// "no" does not match inside "know" or "notified".
func containsToken(text, tok string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], tok)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(tok)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '\''
}
