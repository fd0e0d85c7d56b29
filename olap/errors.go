package olap

import (
	"errors"
	"fmt"

	"hermannm.dev/enumnames"
)

type ErrorKind uint8

const (
	ErrorKindSchemaNotInDatabase ErrorKind = iota + 1
	ErrorKindCubeNotInDatabase
	ErrorKindDimensionNotInDatabase
	ErrorKindHierarchyNotInDatabase
	ErrorKindLevelNotInDatabase
	ErrorKindIllegalDimensionType
	ErrorKindQueryAPIBadRequest
	ErrorKindQueryAPINotSupported
	ErrorKindQueryAPIServerError
	ErrorKindIllegalAPIResponse
	ErrorKindQueryAPINotProvided
	ErrorKindNoCubeDrilled
	ErrorKindOperationInProgress
)

var errorKindNames = enumnames.NewMap(map[ErrorKind]string{
	ErrorKindSchemaNotInDatabase:    "SchemaNotInDatabaseError",
	ErrorKindCubeNotInDatabase:      "CubeNotInDatabaseError",
	ErrorKindDimensionNotInDatabase: "DimensionNotInDatabaseError",
	ErrorKindHierarchyNotInDatabase: "HierarchyNotInDatabaseError",
	ErrorKindLevelNotInDatabase:     "LevelNotInDatabaseError",
	ErrorKindIllegalDimensionType:   "IllegalDimensionTypeError",
	ErrorKindQueryAPIBadRequest:     "QueryAPIBadRequestError",
	ErrorKindQueryAPINotSupported:   "QueryAPINotSupportedError",
	ErrorKindQueryAPIServerError:    "QueryAPIServerError",
	ErrorKindIllegalAPIResponse:     "IllegalAPIResponseError",
	ErrorKindQueryAPINotProvided:    "QueryAPINotProvidedError",
	ErrorKindNoCubeDrilled:          "NoCubeDrilledError",
	ErrorKindOperationInProgress:    "OperationInProgressError",
})

func (kind ErrorKind) IsValid() bool {
	return errorKindNames.ContainsEnumValue(kind)
}

func (kind ErrorKind) String() string {
	return errorKindNames.GetNameOrFallback(kind, "INVALID_ERROR_KIND")
}

func (kind ErrorKind) MarshalJSON() ([]byte, error) {
	return errorKindNames.MarshalToNameJSON(kind)
}

func (kind *ErrorKind) UnmarshalJSON(bytes []byte) error {
	return errorKindNames.UnmarshalFromNameJSON(bytes, kind)
}

// Error is a failure of a known kind. Errors of the same kind match with errors.Is, so
// callers can compare against the sentinels below regardless of message or wrapping.
type Error struct {
	Kind    ErrorKind
	Message string
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (err *Error) Error() string {
	if err.Message == "" {
		return err.Kind.String()
	}
	return err.Message
}

func (err *Error) Is(target error) bool {
	targetErr, ok := target.(*Error)
	return ok && targetErr.Kind == err.Kind
}

var (
	ErrSchemaNotInDatabase    = &Error{Kind: ErrorKindSchemaNotInDatabase}
	ErrCubeNotInDatabase      = &Error{Kind: ErrorKindCubeNotInDatabase}
	ErrDimensionNotInDatabase = &Error{Kind: ErrorKindDimensionNotInDatabase}
	ErrHierarchyNotInDatabase = &Error{Kind: ErrorKindHierarchyNotInDatabase}
	ErrLevelNotInDatabase     = &Error{Kind: ErrorKindLevelNotInDatabase}
	ErrIllegalDimensionType   = &Error{Kind: ErrorKindIllegalDimensionType}
	ErrQueryAPIBadRequest     = &Error{Kind: ErrorKindQueryAPIBadRequest}
	ErrQueryAPINotSupported   = &Error{Kind: ErrorKindQueryAPINotSupported}
	ErrQueryAPIServerError    = &Error{Kind: ErrorKindQueryAPIServerError}
	ErrIllegalAPIResponse     = &Error{Kind: ErrorKindIllegalAPIResponse}
	ErrQueryAPINotProvided    = &Error{Kind: ErrorKindQueryAPINotProvided}
	ErrNoCubeDrilled          = &Error{Kind: ErrorKindNoCubeDrilled}
	ErrOperationInProgress    = &Error{Kind: ErrorKindOperationInProgress}
)

// KindOf returns the kind of the first *Error in the chain of err.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var olapErr *Error
	if errors.As(err, &olapErr) {
		return olapErr.Kind, true
	}
	return 0, false
}
