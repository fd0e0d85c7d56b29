package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"hermannm.dev/cubes/charts"
	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/cubes/olap/clickhouse"
	"hermannm.dev/cubes/snapshots"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// Notification is the body of every error response.
type Notification struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	kindBadRequest      = "BadRequestError"
	kindNotImplemented  = "NotImplementedError"
	kindInternal        = "InternalError"
	kindChartNotFound   = "ChartNotFoundError"
	kindSnapshotMissing = "SnapshotNotFoundError"
	kindUnsupported     = "UnsupportedChartError"
	kindLastDimension   = "LastDimensionError"
	kindInvalidFacts    = "InvalidFactsError"
)

// sendError replies with a notification whose kind and status are derived from err.
func sendError(res http.ResponseWriter, err error, message string) {
	kind, statusCode := classifyError(err)
	sendNotification(res, statusCode, kind, withMessage(err, message))
}

func sendClientError(res http.ResponseWriter, err error, message string) {
	if err == nil {
		err = errors.New(message)
	} else {
		err = withMessage(err, message)
	}
	sendNotification(res, http.StatusBadRequest, kindBadRequest, err)
}

func withMessage(err error, message string) error {
	if message == "" {
		return err
	}
	return wrap.Error(err, message)
}

func sendNotImplemented(res http.ResponseWriter, message string) {
	sendNotification(res, http.StatusNotImplemented, kindNotImplemented, errors.New(message))
}

func sendNotification(res http.ResponseWriter, statusCode int, kind string, err error) {
	if statusCode >= http.StatusInternalServerError {
		log.ErrorCause(err, "request failed")
	} else {
		log.Warnf("rejected request: %s", err.Error())
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	if encodeErr := json.NewEncoder(res).Encode(Notification{
		Kind:    kind,
		Message: err.Error(),
	}); encodeErr != nil {
		log.ErrorCause(encodeErr, "failed to write error response")
	}
}

func classifyError(err error) (kind string, statusCode int) {
	if olapKind, ok := olap.KindOf(err); ok {
		switch olapKind {
		case olap.ErrorKindSchemaNotInDatabase,
			olap.ErrorKindCubeNotInDatabase,
			olap.ErrorKindDimensionNotInDatabase,
			olap.ErrorKindHierarchyNotInDatabase,
			olap.ErrorKindLevelNotInDatabase:
			statusCode = http.StatusNotFound
		case olap.ErrorKindIllegalDimensionType,
			olap.ErrorKindQueryAPIBadRequest,
			olap.ErrorKindNoCubeDrilled:
			statusCode = http.StatusBadRequest
		case olap.ErrorKindOperationInProgress:
			statusCode = http.StatusConflict
		case olap.ErrorKindQueryAPINotSupported:
			statusCode = http.StatusNotImplemented
		case olap.ErrorKindQueryAPIServerError, olap.ErrorKindIllegalAPIResponse:
			statusCode = http.StatusBadGateway
		case olap.ErrorKindQueryAPINotProvided:
			statusCode = http.StatusServiceUnavailable
		default:
			statusCode = http.StatusInternalServerError
		}
		return olapKind.String(), statusCode
	}

	var chartNotFound navigation.ChartNotFoundError
	var snapshotNotFound snapshots.NotFoundError
	var unsupportedChart charts.UnsupportedChartError
	var invalidFacts clickhouse.InvalidFactsError
	switch {
	case errors.As(err, &chartNotFound):
		return kindChartNotFound, http.StatusNotFound
	case errors.As(err, &snapshotNotFound):
		return kindSnapshotMissing, http.StatusNotFound
	case errors.As(err, &unsupportedChart):
		return kindUnsupported, http.StatusBadRequest
	case errors.As(err, &invalidFacts):
		return kindInvalidFacts, http.StatusBadRequest
	case errors.Is(err, navigation.ErrLastDimension):
		return kindLastDimension, http.StatusConflict
	default:
		return kindInternal, http.StatusInternalServerError
	}
}

func decodeJSON(req *http.Request, target any) error {
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	// An empty body leaves the target at its zero value.
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return wrap.Error(err, "invalid request body")
	}
	return nil
}

func sendJSON(res http.ResponseWriter, value any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(res).Encode(value); err != nil {
		log.ErrorCause(err, "failed to serialize response")
	}
}
