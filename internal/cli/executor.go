package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-retryablehttp"

	apihttp "github.com/GriffinCanCode/contextify/internal/api/http"
	"github.com/GriffinCanCode/contextify/internal/contextify"
	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

// executor runs scripts either in-process or against a contextify server.
type executor interface {
	eval(ctx context.Context, seed *hostobj.Object, source, filename string) (*registry.RunResult, map[string]any, error)
	create(ctx context.Context, seed *hostobj.Object) (string, error)
	run(ctx context.Context, cid, source, filename string) (*registry.RunResult, error)
	globals(ctx context.Context, cid string) (map[string]any, error)
	close() error
}

type localExecutor struct {
	reg *registry.Manager
}

func (l *localExecutor) eval(ctx context.Context, seed *hostobj.Object, source, filename string) (*registry.RunResult, map[string]any, error) {
	return l.reg.Eval(ctx, seed, source, filename)
}

func (l *localExecutor) create(ctx context.Context, seed *hostobj.Object) (string, error) {
	info, err := l.reg.Create(seed)
	return info.ID, err
}

func (l *localExecutor) run(ctx context.Context, cid, source, filename string) (*registry.RunResult, error) {
	return l.reg.Run(ctx, cid, source, filename)
}

func (l *localExecutor) globals(ctx context.Context, cid string) (map[string]any, error) {
	return l.reg.Globals(cid)
}

func (l *localExecutor) close() error {
	return l.reg.Close()
}

// remoteError is a non-2xx answer from the server.
type remoteError struct {
	Status int
	Body   apihttp.ErrorBody
}

func (e *remoteError) Error() string {
	if e.Body.Kind != "" {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Body.Kind, e.Body.Error, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Body.Error, e.Status)
}

type remoteExecutor struct {
	client *resty.Client
	shared []string // contexts created by this run, disposed on close
}

func newRemoteExecutor(baseURL string) *remoteExecutor {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	// Hand the last response back once retries run out so server error
	// bodies still reach the report.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(time.Minute).
		SetHeader("User-Agent", "contextify-cli/"+apihttp.Version).
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient})
	client.JSONMarshal = sonic.Marshal
	client.JSONUnmarshal = sonic.Unmarshal

	return &remoteExecutor{client: client}
}

func (r *remoteExecutor) do(ctx context.Context, method, path string, body, result any) error {
	req := r.client.R().SetContext(ctx).SetError(&apihttp.ErrorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		rerr := &remoteError{Status: resp.StatusCode()}
		if body, ok := resp.Error().(*apihttp.ErrorBody); ok && body.Error != "" {
			rerr.Body = *body
		} else {
			rerr.Body.Error = http.StatusText(resp.StatusCode())
		}
		return rerr
	}
	return nil
}

func (r *remoteExecutor) eval(ctx context.Context, seed *hostobj.Object, source, filename string) (*registry.RunResult, map[string]any, error) {
	var out struct {
		Result  *registry.RunResult `json:"result"`
		Globals map[string]any      `json:"globals"`
	}
	err := r.do(ctx, http.MethodPost, "/v1/eval", apihttp.EvalRequest{
		Source:   source,
		Filename: filename,
		Globals:  seedMap(seed),
	}, &out)
	if err != nil {
		return nil, nil, err
	}
	return out.Result, out.Globals, nil
}

func (r *remoteExecutor) create(ctx context.Context, seed *hostobj.Object) (string, error) {
	var info registry.Info
	if err := r.do(ctx, http.MethodPost, "/v1/contexts", apihttp.CreateRequest{Globals: seedMap(seed)}, &info); err != nil {
		return "", err
	}
	r.shared = append(r.shared, info.ID)
	return info.ID, nil
}

func (r *remoteExecutor) run(ctx context.Context, cid, source, filename string) (*registry.RunResult, error) {
	var res registry.RunResult
	err := r.do(ctx, http.MethodPost, "/v1/contexts/"+cid+"/run", apihttp.RunRequest{Source: source, Filename: filename}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *remoteExecutor) globals(ctx context.Context, cid string) (map[string]any, error) {
	var out struct {
		Globals map[string]any `json:"globals"`
	}
	if err := r.do(ctx, http.MethodGet, "/v1/contexts/"+cid, nil, &out); err != nil {
		return nil, err
	}
	return out.Globals, nil
}

func (r *remoteExecutor) close() error {
	var result *multierror.Error
	for _, cid := range r.shared {
		if err := r.do(context.Background(), http.MethodDelete, "/v1/contexts/"+cid, nil, nil); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func seedMap(seed *hostobj.Object) map[string]any {
	if seed == nil {
		return nil
	}
	m, _ := contextify.Export(seed).(map[string]any)
	return m
}
