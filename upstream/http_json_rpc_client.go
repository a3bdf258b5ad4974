package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rpcmux/rpcmux/common"
	"github.com/rpcmux/rpcmux/util"
	"github.com/rs/zerolog"
)

// HttpJsonRpcClient sends json-rpc calls to a single node endpoint.
//
// Transport failures and timeouts are returned as typed errors; a json-rpc
// error envelope from the node is NOT an error here — it is a valid answer
// and comes back inside the response.
type HttpJsonRpcClient struct {
	logger *zerolog.Logger
	nodeId string
	url    *url.URL

	httpClient *http.Client
}

func NewHttpJsonRpcClient(logger *zerolog.Logger, nodeId string, endpoint string) (*HttpJsonRpcClient, error) {
	parsedUrl, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint for node %q: %w", nodeId, err)
	}

	var httpClient *http.Client
	if util.IsTest() {
		// Default transport so http mocks can intercept.
		httpClient = &http.Client{}
	} else {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		}
	}

	return &HttpJsonRpcClient{
		logger:     logger,
		nodeId:     nodeId,
		url:        parsedUrl,
		httpClient: httpClient,
	}, nil
}

func (c *HttpJsonRpcClient) SendRequest(ctx context.Context, req *common.JsonRpcRequest) (*common.JsonRpcResponse, error) {
	requestBody, err := common.SonicCfg.Marshal(req)
	if err != nil {
		return nil, common.NewErrUpstreamTransport(c.nodeId, err)
	}

	c.logger.Trace().RawJSON("request", requestBody).Msg("sending json-rpc request to node")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.String(), bytes.NewReader(requestBody))
	if err != nil {
		return nil, common.NewErrUpstreamTransport(c.nodeId, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeoutError(err) {
			return nil, common.NewErrUpstreamTimeout(c.nodeId, time.Since(start).Milliseconds())
		}
		return nil, common.NewErrUpstreamTransport(c.nodeId, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeoutError(err) {
			return nil, common.NewErrUpstreamTimeout(c.nodeId, time.Since(start).Milliseconds())
		}
		return nil, common.NewErrUpstreamTransport(c.nodeId, err)
	}

	c.logger.Trace().Int("status", resp.StatusCode).RawJSON("response", respBody).Msg("received json-rpc response from node")

	if resp.StatusCode >= 400 {
		return nil, common.NewErrUpstreamTransport(c.nodeId, fmt.Errorf("node responded with status %d: %s", resp.StatusCode, respBody))
	}

	jsonResp := &common.JsonRpcResponse{}
	if err := common.SonicCfg.Unmarshal(respBody, jsonResp); err != nil {
		return nil, common.NewErrUpstreamTransport(c.nodeId, fmt.Errorf("malformed json-rpc response: %w", err))
	}

	return jsonResp, nil
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
