package scrub

import (
	"strings"
	"unicode"
)

// Category labels reported for redacted content.
const (
	CategoryCreditCard = "credit_card"
	CategorySSN        = "ssn"
	CategoryEmail      = "email"
	CategoryPhoneUS    = "phone_us"
)

const emailMask = "[EMAIL REDACTED]"

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// redactCreditCards masks card numbers, dashed form first so a dashed card
// is never re-matched by the bare digit-run detector.
func redactCreditCards(input string) (string, int) {
	out, dashed := redactDashedCards(input)
	out, plain := redactPlainCards(out)
	return out, dashed + plain
}

// redactDashedCards replaces DDDD-DDDD-DDDD-DDDD with XXXX-XXXX-XXXX-<last4>.
func redactDashedCards(input string) (string, int) {
	runes := []rune(input)
	out := make([]rune, 0, len(runes))
	count := 0

	for i := 0; i < len(runes); {
		if i+19 <= len(runes) && isDashedCardFormat(runes[i:i+19]) {
			out = append(out, []rune("XXXX-XXXX-XXXX-")...)
			out = append(out, runes[i+15:i+19]...)
			i += 19
			count++
			continue
		}
		out = append(out, runes[i])
		i++
	}

	return string(out), count
}

func isDashedCardFormat(rs []rune) bool {
	for idx, r := range rs {
		switch idx {
		case 4, 9, 14:
			if r != '-' {
				return false
			}
		default:
			if !isDigit(r) {
				return false
			}
		}
	}
	return true
}

// redactPlainCards replaces a run of exactly 16 digits with XXXXXXXXXXXX<last4>.
// The run must not be a substring of a longer digit run.
func redactPlainCards(input string) (string, int) {
	runes := []rune(input)
	out := make([]rune, 0, len(runes))
	count := 0

	for i := 0; i < len(runes); {
		if i+16 <= len(runes) && allDigits(runes[i:i+16]) {
			beforeOK := i == 0 || !isDigit(runes[i-1])
			afterOK := i+16 >= len(runes) || !isDigit(runes[i+16])
			if beforeOK && afterOK {
				out = append(out, []rune("XXXXXXXXXXXX")...)
				out = append(out, runes[i+12:i+16]...)
				i += 16
				count++
				continue
			}
		}
		out = append(out, runes[i])
		i++
	}

	return string(out), count
}

func allDigits(rs []rune) bool {
	for _, r := range rs {
		if !isDigit(r) {
			return false
		}
	}
	return true
}

// redactSSNs replaces DDD-DD-DDDD with XXX-XX-XXXX. The characters on both
// sides of the match must not be alphanumeric.
func redactSSNs(input string) (string, int) {
	runes := []rune(input)
	out := make([]rune, 0, len(runes))
	count := 0

	for i := 0; i < len(runes); {
		if i+11 <= len(runes) && isSSNFormat(runes[i:i+11]) {
			beforeOK := i == 0 || !isAlnum(runes[i-1])
			afterOK := i+11 >= len(runes) || !isAlnum(runes[i+11])
			if beforeOK && afterOK {
				out = append(out, []rune("XXX-XX-XXXX")...)
				i += 11
				count++
				continue
			}
		}
		out = append(out, runes[i])
		i++
	}

	return string(out), count
}

func isSSNFormat(rs []rune) bool {
	for idx, r := range rs {
		switch idx {
		case 3, 6:
			if r != '-' {
				return false
			}
		default:
			if !isDigit(r) {
				return false
			}
		}
	}
	return true
}

// redactEmails replaces addresses with a fixed token. The local part extends
// greedily left of the '@' over [alnum . _ % + -], the domain extends right
// over [alnum . -] and must contain an interior dot.
func redactEmails(input string) (string, int) {
	runes := []rune(input)
	out := make([]rune, 0, len(runes))
	count := 0

	for i := 0; i < len(runes); {
		if runes[i] == '@' {
			start := emailStart(runes, i)
			end := emailEnd(runes, i)
			if start < i && end > i+1 {
				domain := string(runes[i+1 : end])
				if strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".") {
					// The local part was already copied out; take it back.
					out = out[:len(out)-(i-start)]
					out = append(out, []rune(emailMask)...)
					i = end
					count++
					continue
				}
			}
		}
		out = append(out, runes[i])
		i++
	}

	return string(out), count
}

func emailStart(runes []rune, atPos int) int {
	start := atPos
	for j := atPos - 1; j >= 0; j-- {
		r := runes[j]
		if isAlnum(r) || r == '.' || r == '_' || r == '%' || r == '+' || r == '-' {
			start = j
		} else {
			break
		}
	}
	return start
}

func emailEnd(runes []rune, atPos int) int {
	end := atPos + 1
	for j := atPos + 1; j < len(runes); j++ {
		r := runes[j]
		if isAlnum(r) || r == '.' || r == '-' {
			end = j + 1
		} else {
			break
		}
	}
	return end
}

// redactPhonesUS replaces DDD-DDD-DDDD or DDD.DDD.DDDD with (XXX) XXX-<last4>.
// The separator must be consistent within one match and the characters on
// both sides must not be alphanumeric.
func redactPhonesUS(input string) (string, int) {
	runes := []rune(input)
	out := make([]rune, 0, len(runes))
	count := 0

	for i := 0; i < len(runes); {
		if i+12 <= len(runes) && isPhoneFormat(runes[i:i+12]) {
			beforeOK := i == 0 || !isAlnum(runes[i-1])
			afterOK := i+12 >= len(runes) || !isAlnum(runes[i+12])
			if beforeOK && afterOK {
				out = append(out, []rune("(XXX) XXX-")...)
				out = append(out, runes[i+8:i+12]...)
				i += 12
				count++
				continue
			}
		}
		out = append(out, runes[i])
		i++
	}

	return string(out), count
}

func isPhoneFormat(rs []rune) bool {
	sep := rs[3]
	if sep != '-' && sep != '.' {
		return false
	}
	for idx, r := range rs {
		switch idx {
		case 3, 7:
			if r != sep {
				return false
			}
		default:
			if !isDigit(r) {
				return false
			}
		}
	}
	return true
}
