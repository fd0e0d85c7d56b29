package solap

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"hermannm.dev/cubes/olap"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// Client implements olap.QueryAPI against a remote query server. The data query is built up
// locally, and only sent on Execute.
type Client struct {
	url        string
	httpClient *http.Client
	state      olap.QueryState
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (client *Client) Explore(ctx context.Context, request olap.ExploreRequest) (olap.Reply, error) {
	body, err := EncodeExplore(request)
	if err != nil {
		return olap.Reply{}, err
	}
	return client.send(ctx, body)
}

func (client *Client) Execute(ctx context.Context) (olap.Reply, error) {
	body, err := EncodeData(client.state)
	if err != nil {
		return olap.Reply{}, err
	}
	return client.send(ctx, body)
}

func (client *Client) send(ctx context.Context, body []byte) (olap.Reply, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.url, bytes.NewReader(body))
	if err != nil {
		return olap.Reply{}, wrap.Error(err, "failed to create query API request")
	}
	request.Header.Set("Content-Type", "application/json")

	log.Debug("sending query API request", slog.String("body", string(body)))

	response, err := client.httpClient.Do(request)
	if err != nil {
		return olap.Reply{}, olap.NewError(
			olap.ErrorKindQueryAPIServerError, "query API request failed: %v", err,
		)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return olap.Reply{}, wrap.Error(err, "failed to read query API response")
	}

	if response.StatusCode != http.StatusOK {
		return olap.Reply{}, olap.NewError(
			olap.ErrorKindQueryAPIServerError,
			"query API responded with status %d", response.StatusCode,
		)
	}

	return olap.DecodeReply(responseBody)
}

func (client *Client) Drill(cube string) {
	client.state.Drill(cube)
}

func (client *Client) Push(measure string) {
	client.state.Push(measure)
}

func (client *Client) Pull(measure string) {
	client.state.Pull(measure)
}

func (client *Client) Slice(hierarchy string, members []string, isRange bool) {
	client.state.Slice(hierarchy, members, isRange)
}

func (client *Client) Dice(hierarchies []string) {
	client.state.Dice(hierarchies)
}

func (client *Client) Project(hierarchy string) {
	client.state.Project(hierarchy)
}

func (client *Client) Filter(hierarchy string, members []string, isRange bool) {
	client.state.Filter(hierarchy, members, isRange)
}

func (client *Client) Clear() {
	client.state = olap.QueryState{}
}
