package terms

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrInvalidTerm is returned when a value cannot be a term
var ErrInvalidTerm = errors.New("invalid term")

const (
	XSD_NAMESPACE = "http://www.w3.org/2001/XMLSchema#"
	XSD_STRING    = XSD_NAMESPACE + "string"
	XSD_INTEGER   = XSD_NAMESPACE + "integer"
	XSD_DOUBLE    = XSD_NAMESPACE + "double"
	XSD_BOOLEAN   = XSD_NAMESPACE + "boolean"
	XSD_DATETIME  = XSD_NAMESPACE + "dateTime"
	RDF_LANG      = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

// Kind is the kind of a term
type Kind int8

const (
	KindIRI Kind = iota + 1
	KindBlankNode
	KindPlainLiteral
	KindTypedLiteral
	KindString
	KindInteger
	KindDouble
	KindBoolean
	KindDateTime
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindBlankNode:
		return "blank"
	case KindPlainLiteral:
		return "plain"
	case KindTypedLiteral:
		return "typed"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "datetime"
	default:
		return "unknown"
	}
}

// IsLiteral returns true for any literal kind
func (k Kind) IsLiteral() bool {
	return k >= KindPlainLiteral
}

// Term is a RDF term: an IRI, a blank node or a literal.
// Terms are values, two terms with the same content are equal with ==
type Term struct {
	kind Kind
	// value is the IRI, the blank node label or the lexical form of the literal
	value string
	// language is set for plain literals with a language tag
	language string
	// datatype is set for typed literals with an unknown datatype
	datatype string
}

// NewIRI returns an IRI term
func NewIRI(iri string) (Term, error) {
	if len(iri) == 0 || strings.ContainsAny(iri, "<>\"{}|^`\\ \t\n") {
		return Term{}, errors.Wrapf(ErrInvalidTerm, "invalid iri %q", iri)
	}

	return Term{kind: KindIRI, value: iri}, nil
}

// MustIRI returns an IRI and panics if it is invalid. Use it for constants
func MustIRI(iri string) Term {
	result, err := NewIRI(iri)
	if err != nil {
		panic(err)
	}

	return result
}

// blankNamespace is the namespace of derived blank node labels
var blankNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("txl:blank"))

// NewDerivedBlankNode returns a blank node whose label depends on parts only.
// Same parts give the same node, different parts give different nodes
func NewDerivedBlankNode(parts ...string) Term {
	id := uuid.NewSHA1(blankNamespace, []byte(strings.Join(parts, "\x00")))
	return Term{kind: KindBlankNode, value: "b" + strings.ReplaceAll(id.String(), "-", "")}
}

// NewBlankNodeWithLabel returns a blank node with that label
func NewBlankNodeWithLabel(label string) (Term, error) {
	if len(label) == 0 || strings.ContainsAny(label, " \t\n<>\"") {
		return Term{}, errors.Wrapf(ErrInvalidTerm, "invalid blank node label %q", label)
	}

	return Term{kind: KindBlankNode, value: label}, nil
}

// NewPlainLiteral returns a literal with an optional language tag
func NewPlainLiteral(value, language string) Term {
	return Term{kind: KindPlainLiteral, value: value, language: strings.ToLower(language)}
}

// NewString returns a xsd:string literal
func NewString(value string) Term {
	return Term{kind: KindString, value: value}
}

// NewInteger returns a xsd:integer literal
func NewInteger(value int64) Term {
	return Term{kind: KindInteger, value: strconv.FormatInt(value, 10)}
}

// NewDouble returns a xsd:double literal
func NewDouble(value float64) Term {
	return Term{kind: KindDouble, value: strconv.FormatFloat(value, 'g', -1, 64)}
}

// NewBoolean returns a xsd:boolean literal
func NewBoolean(value bool) Term {
	return Term{kind: KindBoolean, value: strconv.FormatBool(value)}
}

// NewDateTime returns a xsd:dateTime literal, in UTC
func NewDateTime(value time.Time) Term {
	return Term{kind: KindDateTime, value: value.UTC().Format(time.RFC3339Nano)}
}

// NewTypedLiteral returns a literal with a datatype.
// Known XSD datatypes are normalized to their dedicated kind, and their lexical form is checked
func NewTypedLiteral(value, datatype string) (Term, error) {
	switch datatype {
	case "":
		return Term{}, errors.Wrap(ErrInvalidTerm, "empty datatype")
	case XSD_STRING:
		return NewString(value), nil
	case XSD_INTEGER:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return Term{}, errors.Wrapf(ErrInvalidTerm, "invalid integer %q", value)
		}

		return NewInteger(parsed), nil
	case XSD_DOUBLE:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Term{}, errors.Wrapf(ErrInvalidTerm, "invalid double %q", value)
		}

		return NewDouble(parsed), nil
	case XSD_BOOLEAN:
		switch strings.TrimSpace(value) {
		case "true", "1":
			return NewBoolean(true), nil
		case "false", "0":
			return NewBoolean(false), nil
		default:
			return Term{}, errors.Wrapf(ErrInvalidTerm, "invalid boolean %q", value)
		}
	case XSD_DATETIME:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
		if err != nil {
			return Term{}, errors.Wrapf(ErrInvalidTerm, "invalid datetime %q", value)
		}

		return NewDateTime(parsed), nil
	}

	if _, err := NewIRI(datatype); err != nil {
		return Term{}, err
	}

	return Term{kind: KindTypedLiteral, value: value, datatype: datatype}, nil
}

// IsZero returns true for the zero value, that is not a valid term
func (t Term) IsZero() bool {
	return t.kind == 0
}

// Kind returns the kind of the term
func (t Term) Kind() Kind {
	return t.kind
}

// Value returns the IRI, the blank node label, or the lexical form of the literal
func (t Term) Value() string {
	return t.value
}

// Language returns the language tag of a plain literal, if any
func (t Term) Language() string {
	return t.language
}

// Datatype returns the datatype IRI of a literal, empty for IRIs and blank nodes
func (t Term) Datatype() string {
	switch t.kind {
	case KindPlainLiteral:
		if t.language != "" {
			return RDF_LANG
		}

		return XSD_STRING
	case KindTypedLiteral:
		return t.datatype
	case KindString:
		return XSD_STRING
	case KindInteger:
		return XSD_INTEGER
	case KindDouble:
		return XSD_DOUBLE
	case KindBoolean:
		return XSD_BOOLEAN
	case KindDateTime:
		return XSD_DATETIME
	default:
		return ""
	}
}

// Integer returns the value of an integer literal
func (t Term) Integer() (int64, bool) {
	if t.kind != KindInteger {
		return 0, false
	}

	value, err := strconv.ParseInt(t.value, 10, 64)
	return value, err == nil
}

// Double returns the value of a double literal
func (t Term) Double() (float64, bool) {
	if t.kind != KindDouble {
		return math.NaN(), false
	}

	value, err := strconv.ParseFloat(t.value, 64)
	return value, err == nil
}

// Boolean returns the value of a boolean literal
func (t Term) Boolean() (bool, bool) {
	if t.kind != KindBoolean {
		return false, false
	}

	return t.value == "true", true
}

// DateTime returns the value of a datetime literal
func (t Term) DateTime() (time.Time, bool) {
	if t.kind != KindDateTime {
		return time.Time{}, false
	}

	value, err := time.Parse(time.RFC3339Nano, t.value)
	return value, err == nil
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// String returns the term in SPARQL notation. Parse(t.String()) is t
func (t Term) String() string {
	switch t.kind {
	case KindIRI:
		return "<" + t.value + ">"
	case KindBlankNode:
		return "_:" + t.value
	case KindInteger, KindBoolean:
		return t.value
	case KindPlainLiteral:
		quoted := `"` + literalEscaper.Replace(t.value) + `"`
		if t.language != "" {
			return quoted + "@" + t.language
		}

		return quoted
	case 0:
		return ""
	default:
		return `"` + literalEscaper.Replace(t.value) + `"^^<` + t.Datatype() + ">"
	}
}
