package terms

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Parse reads a term in SPARQL notation:
// <iri>, _:label, "value", "value"@lang, "value"^^<datatype>, true, false, integers and doubles
func Parse(value string) (Term, error) {
	trimmed := strings.TrimSpace(value)
	switch {
	case trimmed == "":
		return Term{}, errors.Wrap(ErrInvalidTerm, "empty value")
	case strings.HasPrefix(trimmed, "<"):
		if !strings.HasSuffix(trimmed, ">") {
			return Term{}, errors.Wrapf(ErrInvalidTerm, "unterminated iri %q", value)
		}

		return NewIRI(trimmed[1 : len(trimmed)-1])
	case strings.HasPrefix(trimmed, "_:"):
		return NewBlankNodeWithLabel(trimmed[2:])
	case strings.HasPrefix(trimmed, `"`):
		return parseLiteral(trimmed)
	case trimmed == "true":
		return NewBoolean(true), nil
	case trimmed == "false":
		return NewBoolean(false), nil
	}

	if integer, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return NewInteger(integer), nil
	} else if double, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return NewDouble(double), nil
	}

	return Term{}, errors.Wrapf(ErrInvalidTerm, "cannot parse %q", value)
}

// MustParse parses a term and panics on error. Use it for constants and tests
func MustParse(value string) Term {
	result, err := Parse(value)
	if err != nil {
		panic(err)
	}

	return result
}

// parseLiteral reads a quoted value with escapes, then an optional language or datatype
func parseLiteral(value string) (Term, error) {
	var lexical strings.Builder
	index := 1
	closed := false
	for index < len(value) && !closed {
		current := value[index]
		switch current {
		case '"':
			closed = true
		case '\\':
			if index+1 >= len(value) {
				return Term{}, errors.Wrapf(ErrInvalidTerm, "unterminated escape in %q", value)
			}

			index++
			switch value[index] {
			case 'n':
				lexical.WriteByte('\n')
			case 'r':
				lexical.WriteByte('\r')
			case 't':
				lexical.WriteByte('\t')
			case '"', '\\', '\'':
				lexical.WriteByte(value[index])
			default:
				return Term{}, errors.Wrapf(ErrInvalidTerm, "invalid escape \\%c in %q", value[index], value)
			}
		default:
			lexical.WriteByte(current)
		}

		index++
	}

	if !closed {
		return Term{}, errors.Wrapf(ErrInvalidTerm, "unterminated literal %q", value)
	}

	suffix := value[index:]
	switch {
	case suffix == "":
		return NewPlainLiteral(lexical.String(), ""), nil
	case strings.HasPrefix(suffix, "@"):
		language := suffix[1:]
		if language == "" || strings.ContainsAny(language, " \t\"<>") {
			return Term{}, errors.Wrapf(ErrInvalidTerm, "invalid language in %q", value)
		}

		return NewPlainLiteral(lexical.String(), language), nil
	case strings.HasPrefix(suffix, "^^<") && strings.HasSuffix(suffix, ">"):
		return NewTypedLiteral(lexical.String(), suffix[3:len(suffix)-1])
	default:
		return Term{}, errors.Wrapf(ErrInvalidTerm, "unexpected content after literal in %q", value)
	}
}
