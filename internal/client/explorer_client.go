package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"fractea_engine/internal/port"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// explorerClientImpl queries a Blockscout-compatible explorer API for receipt
// status. Used by the pending re-check worker when RPC receipts lag.
type explorerClientImpl struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// receiptStatusResponse is the gettxreceiptstatus envelope: result.status is
// "1" for success, "0" for revert, and the result is empty while unindexed.
type receiptStatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  struct {
		Status string `json:"status"`
	} `json:"result"`
}

// NewExplorerClient creates an explorer gateway over the given API base URL.
func NewExplorerClient(baseURL string, timeout time.Duration, logger *zap.Logger) port.ExplorerGateway {
	return &explorerClientImpl{
		client:  &fasthttp.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger.Named("explorer_client"),
	}
}

func (c *explorerClientImpl) ReceiptStatus(ctx context.Context, hash string) (bool, bool, error) {
	requestURL := fmt.Sprintf("%s?module=transaction&action=gettxreceiptstatus&txhash=%s", c.baseURL, hash)

	c.logger.Debug("Requesting receipt status from explorer", zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetContentTypeBytes([]byte("application/json"))

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return false, false, fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
		}
	} else {
		if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
			return false, false, fmt.Errorf("failed to execute request to %s with default timeout: %w", requestURL, err)
		}
	}

	rawBody := resp.Body()
	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Warn("Explorer API request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", rawBody))
		return false, false, fmt.Errorf("explorer API request to %s failed with status %d", requestURL, resp.StatusCode())
	}

	var parsed receiptStatusResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return false, false, fmt.Errorf("failed to unmarshal explorer response from %s: %w", requestURL, err)
	}

	switch parsed.Result.Status {
	case "1":
		return true, true, nil
	case "0":
		return true, false, nil
	default:
		// Not indexed yet.
		return false, false, nil
	}
}
