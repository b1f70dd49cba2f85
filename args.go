package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var errMissingValue = errors.New("a value is required")

// ParsedArguments provides typed accessors for the arguments of one command.
type ParsedArguments struct {
	values    map[string][]any
	multiples map[string]bool
	order     []string
}

func newParsedArguments() ParsedArguments {
	return ParsedArguments{values: map[string][]any{}, multiples: map[string]bool{}}
}

func (a *ParsedArguments) add(arg ArgDefinition, value any) {
	if _, ok := a.values[arg.Name]; !ok {
		a.order = append(a.order, arg.Name)
	}
	a.values[arg.Name] = append(a.values[arg.Name], value)
	if arg.AllowMultiples {
		a.multiples[arg.Name] = true
	}
}

// Has reports whether the argument was supplied.
func (a ParsedArguments) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Len returns how many distinct arguments were supplied.
func (a ParsedArguments) Len() int { return len(a.values) }

// Names returns supplied argument names in first-encounter order.
func (a ParsedArguments) Names() []string {
	return append([]string(nil), a.order...)
}

// Raw returns the stored value: a single value, or a []any in input order for
// arguments that allow multiples.
func (a ParsedArguments) Raw(name string) (any, bool) {
	vals, ok := a.values[name]
	if !ok {
		return nil, false
	}
	if a.multiples[name] {
		return append([]any(nil), vals...), true
	}
	return vals[0], true
}

// Values returns every value supplied for name in input order.
func (a ParsedArguments) Values(name string) []any {
	vals, ok := a.values[name]
	if !ok {
		return nil
	}
	return append([]any(nil), vals...)
}

// Map returns a copy of all arguments keyed by name, shaped like Raw.
func (a ParsedArguments) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for name := range a.values {
		out[name], _ = a.Raw(name)
	}
	return out
}

func (a ParsedArguments) first(name string) (any, bool) {
	vals, ok := a.values[name]
	if !ok || len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

// String retrieves the first value as a string.
func (a ParsedArguments) String(name string) string {
	val, ok := a.first(name)
	if !ok {
		return ""
	}
	return stringify(val)
}

// Strings returns all values as strings.
func (a ParsedArguments) Strings(name string) []string {
	vals, ok := a.values[name]
	if !ok {
		return nil
	}
	res := make([]string, 0, len(vals))
	for _, v := range vals {
		res = append(res, stringify(v))
	}
	return res
}

// Bool retrieves a boolean value.
func (a ParsedArguments) Bool(name string) bool {
	val, ok := a.first(name)
	if !ok {
		return false
	}
	switch t := val.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	case int:
		return t != 0
	}
	return false
}

// Int retrieves an integer value.
func (a ParsedArguments) Int(name string) int {
	val, ok := a.first(name)
	if !ok {
		return 0
	}
	switch t := val.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		i, _ := strconv.Atoi(t)
		return i
	}
	return 0
}

// Float retrieves a float value.
func (a ParsedArguments) Float(name string) float64 {
	val, ok := a.first(name)
	if !ok {
		return 0
	}
	switch t := val.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}

// Duration retrieves a time.Duration value.
func (a ParsedArguments) Duration(name string) time.Duration {
	val, ok := a.first(name)
	if !ok {
		return 0
	}
	switch t := val.(type) {
	case time.Duration:
		return t
	case string:
		d, _ := time.ParseDuration(t)
		return d
	case int:
		return time.Duration(t)
	}
	return 0
}

// DecodeJSON decodes the first value into dest.
func (a ParsedArguments) DecodeJSON(name string, dest any) error {
	val, ok := a.first(name)
	if !ok {
		return fmt.Errorf("value %q not present", name)
	}
	if s, isString := val.(string); isString {
		return json.Unmarshal([]byte(s), dest)
	}
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func stringify(val any) string {
	switch t := val.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Parser matches argument tokens against a definition's schema.
type Parser struct{}

// NewParser constructs a Parser.
func NewParser() *Parser { return &Parser{} }

// ParseLine tokenizes input, resolves the leading token against registry and
// parses the remainder.
func (p *Parser) ParseLine(registry *Registry, input string) (Command, error) {
	tokens := Tokenize(input)
	if len(tokens) == 0 {
		return Command{}, &NotFoundError{Name: ""}
	}
	def, err := registry.Lookup(tokens[0])
	if err != nil {
		return Command{}, err
	}
	args, err := p.Parse(def, tokens[1:])
	if err != nil {
		return Command{}, err
	}
	return Command{Input: strings.TrimSpace(input), Definition: def, Args: args}, nil
}

// Parse parses flag-style tokens (--name value, --name=value) for def.
// Parsing stops at the first error.
func (p *Parser) Parse(def *CommandDefinition, tokens []string) (ParsedArguments, error) {
	parsed := newParsedArguments()

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if !isFlagToken(token) {
			return ParsedArguments{}, &UnexpectedTokenError{Command: def.Name, Token: token}
		}

		name := strings.TrimPrefix(token, "--")
		raw, inline := "", false
		if idx := strings.IndexByte(name, '='); idx >= 0 {
			raw, inline = name[idx+1:], true
			name = name[:idx]
		}

		arg, ok := def.Arg(name)
		if !ok {
			return ParsedArguments{}, &UnknownArgumentError{Command: def.Name, Argument: name}
		}
		if parsed.Has(name) && !arg.AllowMultiples {
			return ParsedArguments{}, &DuplicateArgumentError{Command: def.Name, Argument: name}
		}

		var value any
		switch {
		case inline:
			casted, err := castValue(arg.Type, raw, arg.EnumValues)
			if err != nil {
				return ParsedArguments{}, &InvalidArgumentValueError{Command: def.Name, Argument: name, Value: raw, Err: err}
			}
			value = casted
		case arg.Type == ArgTypeBool:
			value = true
		case i+1 < len(tokens) && !isFlagToken(tokens[i+1]):
			i++
			raw = tokens[i]
			casted, err := castValue(arg.Type, raw, arg.EnumValues)
			if err != nil {
				return ParsedArguments{}, &InvalidArgumentValueError{Command: def.Name, Argument: name, Value: raw, Err: err}
			}
			value = casted
		default:
			return ParsedArguments{}, &InvalidArgumentValueError{Command: def.Name, Argument: name, Err: errMissingValue}
		}
		parsed.add(arg, value)
	}

	if err := checkSchema(def, parsed); err != nil {
		return ParsedArguments{}, err
	}
	return parsed, nil
}

func checkSchema(def *CommandDefinition, parsed ParsedArguments) error {
	for _, arg := range def.Args {
		if arg.Required && !parsed.Has(arg.Name) {
			return &MissingRequiredArgumentError{Command: def.Name, Argument: arg.Name}
		}
	}

	var groups []string
	members := map[string][]string{}
	for _, arg := range def.Args {
		if arg.ExclusiveOrGroup == "" || !parsed.Has(arg.Name) {
			continue
		}
		if _, ok := members[arg.ExclusiveOrGroup]; !ok {
			groups = append(groups, arg.ExclusiveOrGroup)
		}
		members[arg.ExclusiveOrGroup] = append(members[arg.ExclusiveOrGroup], arg.Name)
	}
	for _, group := range groups {
		if len(members[group]) > 1 {
			return &ExclusiveArgumentConflictError{Command: def.Name, Group: group, Arguments: members[group]}
		}
	}

	if def.MustHaveArgs && parsed.Len() == 0 {
		return &NoArgumentsSuppliedError{Command: def.Name}
	}
	return nil
}

func isFlagToken(token string) bool {
	return len(token) > 2 && strings.HasPrefix(token, "--")
}

func castValue(kind ArgType, raw string, enum []string) (any, error) {
	switch kind {
	case ArgTypeString, "":
		return raw, nil
	case ArgTypeInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return i, nil
	case ArgTypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case ArgTypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	case ArgTypeDuration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		return d, nil
	case ArgTypeEnum:
		if len(enum) == 0 {
			return raw, nil
		}
		for _, candidate := range enum {
			if candidate == raw {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("%q must be one of %s", raw, strings.Join(enum, ", "))
	case ArgTypeJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return v, nil
	default:
		return raw, nil
	}
}

// Tokenize splits an input line into tokens, honouring single and double
// quotes and backslash escapes inside quotes.
func Tokenize(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingle, inDouble, pending bool

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			pending = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			pending = true
		case r == '\\' && (inSingle || inDouble) && i+1 < len(runes) && strings.ContainsRune(`"'\`, runes[i+1]):
			current.WriteRune(runes[i+1])
			i++
		case unicode.IsSpace(r) && !inSingle && !inDouble:
			if current.Len() > 0 || pending {
				tokens = append(tokens, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 || pending {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// FormatUsage renders a one-line usage string from a definition.
func FormatUsage(def *CommandDefinition) string {
	var b strings.Builder
	b.WriteString(def.Name)

	done := map[string]bool{}
	for _, arg := range def.Args {
		if done[arg.Name] {
			continue
		}
		b.WriteString(" ")
		if arg.ExclusiveOrGroup == "" {
			b.WriteString(formatArg(arg, arg.Required))
			done[arg.Name] = true
			continue
		}
		var alts []string
		required := false
		for _, member := range def.Args {
			if member.ExclusiveOrGroup != arg.ExclusiveOrGroup {
				continue
			}
			alts = append(alts, formatArg(member, true))
			required = required || member.Required
			done[member.Name] = true
		}
		if required {
			b.WriteString("(" + strings.Join(alts, " | ") + ")")
		} else {
			b.WriteString("[" + strings.Join(alts, " | ") + "]")
		}
	}
	return b.String()
}

func formatArg(arg ArgDefinition, required bool) string {
	s := "--" + arg.Name
	if arg.Type != ArgTypeBool {
		kind := string(arg.Type)
		if kind == "" {
			kind = string(ArgTypeString)
		}
		if arg.Type == ArgTypeEnum && len(arg.EnumValues) > 0 {
			kind = strings.Join(arg.EnumValues, "|")
		}
		s += " <" + kind + ">"
	}
	if arg.AllowMultiples {
		s += "..."
	}
	if !required {
		s = "[" + s + "]"
	}
	return s
}

// sortedKeys is shared by the store and help output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
