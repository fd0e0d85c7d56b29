package clickhouse

import (
	"fmt"
	"strconv"
	"strings"
)

type QueryBuilder struct {
	strings.Builder
	args []any
}

func (builder *QueryBuilder) WriteInt(i int) {
	builder.WriteString(strconv.Itoa(i))
}

// Must only be called after calling ValidateIdentifier/ValidateIdentifiers on the given identifier.
func (builder *QueryBuilder) WriteIdentifier(identifier string) {
	builder.WriteRune('`')
	builder.WriteString(identifier)
	builder.WriteRune('`')
}

// WriteIdentifiers writes the identifiers separated by commas.
func (builder *QueryBuilder) WriteIdentifiers(identifiers []string) {
	for i, identifier := range identifiers {
		if i != 0 {
			builder.WriteString(", ")
		}
		builder.WriteIdentifier(identifier)
	}
}

// WriteArg writes a positional parameter, and keeps its value for Args.
func (builder *QueryBuilder) WriteArg(value any) {
	builder.WriteByte('?')
	builder.args = append(builder.args, value)
}

func (builder *QueryBuilder) Args() []any {
	return builder.args
}

func ValidateIdentifier(identifier string) error {
	if strings.ContainsRune(identifier, '`') {
		return fmt.Errorf("'%s' contains `, which is incompatible with database", identifier)
	}

	return nil
}

func ValidateIdentifiers(identifiers ...string) error {
	for _, identifier := range identifiers {
		if err := ValidateIdentifier(identifier); err != nil {
			return err
		}
	}

	return nil
}
