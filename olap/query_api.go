package olap

import (
	"context"
	"encoding/json"

	"hermannm.dev/enumnames"
	"hermannm.dev/wrap"
)

// QueryAPI is a multidimensional query backend. Explore answers metadata questions; the
// remaining methods build up a data query on the backend's side which Execute then runs.
// Implementations are not safe for concurrent use.
type QueryAPI interface {
	Explore(ctx context.Context, request ExploreRequest) (Reply, error)

	Drill(cube string)
	Push(measure string)
	Pull(measure string)
	Slice(hierarchy string, members []string, isRange bool)
	Dice(hierarchies []string)
	Project(hierarchy string)
	Filter(hierarchy string, members []string, isRange bool)
	Execute(ctx context.Context) (Reply, error)
	Clear()
}

// ExploreRequest addresses a node of the metadata tree:
//
//	[]                                         schemas
//	[schema]                                   cubes
//	[schema, cube]                             dimensions
//	[schema, cube, dimension]                  hierarchies
//	[schema, cube, dimension, hierarchy]       levels
//	[…, hierarchy, level]                      members of the level
//	[…, hierarchy, level, parentMember]        descendants of the member
//
// When Members is set on a path ending at a level, only those members are returned.
type ExploreRequest struct {
	Path            []string `json:"root"`
	Members         []string `json:"members,omitempty"`
	WithProperties  bool     `json:"withProperties"`
	DescendingLevel int      `json:"granularity"`
}

type ReplyStatus uint8

const (
	ReplyStatusOK ReplyStatus = iota + 1
	ReplyStatusBadRequest
	ReplyStatusNotSupported
	ReplyStatusServerError
)

var replyStatusNames = enumnames.NewMap(map[ReplyStatus]string{
	ReplyStatusOK:           "OK",
	ReplyStatusBadRequest:   "BAD_REQUEST",
	ReplyStatusNotSupported: "NOT_SUPPORTED",
	ReplyStatusServerError:  "SERVER_ERROR",
})

func (status ReplyStatus) IsValid() bool {
	return replyStatusNames.ContainsEnumValue(status)
}

func (status ReplyStatus) String() string {
	return replyStatusNames.GetNameOrFallback(status, "INVALID_REPLY_STATUS")
}

func (status ReplyStatus) MarshalJSON() ([]byte, error) {
	return replyStatusNames.MarshalToNameJSON(status)
}

func (status *ReplyStatus) UnmarshalJSON(bytes []byte) error {
	return replyStatusNames.UnmarshalFromNameJSON(bytes, status)
}

type Reply struct {
	Error ReplyStatus     `json:"error"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func OKReply(data any) (Reply, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return Reply{}, wrap.Error(err, "failed to encode reply data")
	}
	return Reply{Error: ReplyStatusOK, Data: encoded}, nil
}

// ErrorReply creates a failed reply, with the message as data.
func ErrorReply(status ReplyStatus, message string) Reply {
	data, _ := json.Marshal(message)
	return Reply{Error: status, Data: data}
}

// DecodeReply parses a raw reply. Anything that is not an object with a known status is
// an IllegalAPIResponse.
func DecodeReply(data []byte) (Reply, error) {
	var raw struct {
		Error *ReplyStatus    `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Reply{}, NewError(
			ErrorKindIllegalAPIResponse, "query API returned malformed reply: %v", err,
		)
	}
	if raw.Error == nil {
		return Reply{}, NewError(
			ErrorKindIllegalAPIResponse, "query API reply is missing 'error' field",
		)
	}
	return Reply{Error: *raw.Error, Data: raw.Data}, nil
}

// CheckReply maps the status of a reply to the matching error kind, or nil if OK.
func CheckReply(reply Reply) error {
	switch reply.Error {
	case ReplyStatusOK:
		return nil
	case ReplyStatusBadRequest:
		return NewError(ErrorKindQueryAPIBadRequest, "query API rejected request%s", reply.message())
	case ReplyStatusNotSupported:
		return NewError(
			ErrorKindQueryAPINotSupported, "query API does not support request%s", reply.message(),
		)
	case ReplyStatusServerError:
		return NewError(ErrorKindQueryAPIServerError, "query API failed%s", reply.message())
	default:
		return NewError(ErrorKindIllegalAPIResponse, "query API reply has no valid 'error' field")
	}
}

func (reply Reply) message() string {
	var message string
	if err := json.Unmarshal(reply.Data, &message); err != nil || message == "" {
		return ""
	}
	return ": " + message
}
