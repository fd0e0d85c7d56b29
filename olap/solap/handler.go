package solap

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"hermannm.dev/cubes/olap"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// Handler serves the wire protocol over the given query API. Requests are processed one at
// a time, since the API holds the data query between calls.
type Handler struct {
	api  olap.QueryAPI
	lock sync.Mutex
}

func NewHandler(api olap.QueryAPI) *Handler {
	return &Handler{api: api}
}

// Expects:
//   - POST body: Request, with queryType "explore" or "data"
//
// Returns:
//   - olap.Reply, always with status 200; failures are reported in the reply's error field
func (handler *Handler) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		res.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		handler.sendReply(res, errorReply(wrap.Error(err, "failed to read request body")))
		return
	}

	reply, err := handler.Process(req.Context(), body)
	if err != nil {
		log.ErrorCause(err, "query API request failed")
		reply = errorReply(err)
	}
	handler.sendReply(res, reply)
}

func (handler *Handler) sendReply(res http.ResponseWriter, reply olap.Reply) {
	res.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(res).Encode(reply); err != nil {
		log.ErrorCause(err, "failed to encode query API reply")
	}
}

// Process runs a single encoded request on the query API.
func (handler *Handler) Process(ctx context.Context, body []byte) (olap.Reply, error) {
	request, err := DecodeRequest(body)
	if err != nil {
		return errorReply(err), nil
	}

	handler.lock.Lock()
	defer handler.lock.Unlock()

	switch request.QueryType {
	case QueryTypeExplore:
		explore, err := request.Explore()
		if err != nil {
			return errorReply(err), nil
		}
		return handler.api.Explore(ctx, explore)
	default:
		query, err := request.DataQuery()
		if err != nil {
			return errorReply(err), nil
		}
		query.State().Replay(handler.api)
		return handler.api.Execute(ctx)
	}
}

func errorReply(err error) olap.Reply {
	kind, _ := olap.KindOf(err)
	switch kind {
	case olap.ErrorKindQueryAPIBadRequest, olap.ErrorKindNoCubeDrilled:
		return olap.ErrorReply(olap.ReplyStatusBadRequest, err.Error())
	case olap.ErrorKindQueryAPINotSupported:
		return olap.ErrorReply(olap.ReplyStatusNotSupported, err.Error())
	default:
		return olap.ErrorReply(olap.ReplyStatusServerError, err.Error())
	}
}
