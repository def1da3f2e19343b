package scrub

import "unicode/utf8"

// Result describes one redaction pass over a buffer.
type Result struct {
	Redacted   bool
	MatchCount int
	Categories map[string]struct{}
	Content    []byte
}

// Matcher applies the enabled pattern detectors to a buffer. It holds no
// per-invocation state and is safe for concurrent use across exchanges.
type Matcher struct {
	creditCard bool
	ssn        bool
	email      bool
	phoneUS    bool
}

// NewMatcher builds a matcher for the enabled pattern set.
func NewMatcher(p Patterns) *Matcher {
	return &Matcher{
		creditCard: p.CreditCard,
		ssn:        p.SSN,
		email:      p.Email,
		phoneUS:    p.PhoneUS,
	}
}

// Redact scans input for every enabled category and returns the sanitized
// copy. Categories run in a fixed order, each over the previous category's
// output; the replacement tokens are shaped so an earlier substitution can
// never satisfy a later pattern. A buffer that is not valid UTF-8 is
// returned unchanged with a zero match count.
func (m *Matcher) Redact(input []byte) Result {
	categories := make(map[string]struct{})

	if !utf8.Valid(input) {
		return Result{
			Categories: categories,
			Content:    append([]byte(nil), input...),
		}
	}

	text := string(input)
	total := 0

	if m.creditCard {
		if next, n := redactCreditCards(text); n > 0 {
			categories[CategoryCreditCard] = struct{}{}
			total += n
			text = next
		}
	}

	if m.ssn {
		if next, n := redactSSNs(text); n > 0 {
			categories[CategorySSN] = struct{}{}
			total += n
			text = next
		}
	}

	if m.email {
		if next, n := redactEmails(text); n > 0 {
			categories[CategoryEmail] = struct{}{}
			total += n
			text = next
		}
	}

	if m.phoneUS {
		if next, n := redactPhonesUS(text); n > 0 {
			categories[CategoryPhoneUS] = struct{}{}
			total += n
			text = next
		}
	}

	return Result{
		Redacted:   total > 0,
		MatchCount: total,
		Categories: categories,
		Content:    []byte(text),
	}
}

// CategoryList returns the matched categories as a sorted slice, mainly for
// logging and audit events.
func (r Result) CategoryList() []string {
	if len(r.Categories) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Categories))
	for _, c := range []string{CategoryCreditCard, CategorySSN, CategoryEmail, CategoryPhoneUS} {
		if _, ok := r.Categories[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
