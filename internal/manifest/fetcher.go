// ABOUTME: Manifest Fetcher: GET through the HTML proxy, extract and decode the payload
// ABOUTME: Every call ends in exactly one outcome; failures degrade to an empty manifest

package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mauromedda/pkgsync/internal/async"
	pshttp "github.com/mauromedda/pkgsync/internal/http"
	pslog "github.com/mauromedda/pkgsync/internal/log"
)

// maxBodyBytes bounds the proxy response.
const maxBodyBytes = 5 * 1024 * 1024

// Outcome is the terminal state of one fetch.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransportError
	OutcomeParseError
)

// String returns the human-readable name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransportError:
		return "transport error"
	case OutcomeParseError:
		return "parse error"
	default:
		return "unknown"
	}
}

// Synthetic result codes for transport failures. They only feed diagnostics.
const (
	CodeConnection        = 601
	CodeContentProcessing = 602
	CodeProtocol          = 603
)

// TransportError is a failed request classified by synthetic result code.
type TransportError struct {
	Code int
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error %d: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Result is the single terminal outcome of a fetch. Document is always
// usable; it is empty unless Outcome is OutcomeSuccess.
type Result struct {
	Locator  string
	Document Document
	Outcome  Outcome
	Err      error
}

// Fetcher retrieves manifests through the proxy endpoint.
type Fetcher struct {
	client   *http.Client
	endpoint string
	logger   *pslog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses a hardened client with a
// 30 second timeout; an empty endpoint uses DefaultEndpoint.
func NewFetcher(client *http.Client, endpoint string, logger *pslog.Logger) *Fetcher {
	if client == nil {
		client = pshttp.SecureHTTPClient(30*time.Second, "")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = pslog.New("manifest")
	}
	return &Fetcher{client: client, endpoint: endpoint, logger: logger}
}

// Logger returns the fetcher's logger.
func (f *Fetcher) Logger() *pslog.Logger {
	return f.logger
}

// Fetch retrieves and decodes the manifest at locator. It never returns a
// Go error: failures are logged and reported through Result.
func (f *Fetcher) Fetch(ctx context.Context, locator string) Result {
	locator = NormalizeLocator(locator, f.logger)
	res := Result{Locator: locator}

	body, err := f.get(ctx, locator)
	if err != nil {
		res.Outcome, res.Err = OutcomeTransportError, err
		f.logger.Warn("%s: %v", locator, err)
		return res
	}

	payload, err := ExtractPayload(body)
	if err != nil {
		res.Outcome, res.Err = OutcomeParseError, err
		f.logger.Error("%s: %v; continuing with no available packages", locator, err)
		return res
	}

	doc, err := Decode(payload)
	if err != nil {
		res.Outcome, res.Err = OutcomeParseError, err
		f.logger.Error("%s: %v; continuing with no available packages", locator, err)
		return res
	}

	if doc.Dropped > 0 {
		f.logger.Warn("%s: dropped %d entries without a unique name", locator, doc.Dropped)
	}
	switch {
	case len(doc.Entries) > 0:
	case doc.Result != "":
		f.logger.Warn("%s: manifest lists no packages, proxy answered result %s", locator, doc.Result)
	default:
		f.logger.Warn("%s: manifest lists no packages: %s", locator, payload)
	}
	res.Document = doc
	return res
}

// FetchAsync runs Fetch on its own goroutine.
func (f *Fetcher) FetchAsync(ctx context.Context, locator string) async.Operation[Result] {
	return async.Go(ctx, func(ctx context.Context) (Result, error) {
		return f.Fetch(ctx, locator), nil
	})
}

func (f *Fetcher) get(ctx context.Context, locator string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, RequestURL(f.endpoint, locator), nil)
	if err != nil {
		return "", &TransportError{Code: CodeConnection, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &TransportError{Code: CodeConnection, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{Code: CodeProtocol, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return "", &TransportError{Code: CodeContentProcessing, Err: fmt.Errorf("reading response: %w", err)}
	}
	if len(data) > maxBodyBytes {
		return "", &TransportError{Code: CodeContentProcessing, Err: fmt.Errorf("response exceeds %d bytes", maxBodyBytes)}
	}
	return string(data), nil
}

// Code returns the synthetic result code of a transport failure, or 0.
func (r Result) Code() int {
	var te *TransportError
	if errors.As(r.Err, &te) {
		return te.Code
	}
	return 0
}
