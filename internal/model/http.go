package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"

	"github.com/dmorgan81/customid/internal/codec"
	"github.com/dmorgan81/customid/internal/log"
	"github.com/samber/do"
)

// HTTPRuntime drives the model worker that owns the accelerator. The worker
// runs next to this process and shares its filesystem, so staged images are
// passed by path.
type HTTPRuntime struct {
	Client  *http.Client
	BaseURL string
	Token   string
}

func NewHTTPRuntime(i *do.Injector) (Runtime, error) {
	base := do.MustInvokeNamed[string](i, "worker_url")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("worker url: %w", err)
	}
	return &HTTPRuntime{
		Client:  do.MustInvoke[*http.Client](i),
		BaseURL: base,
		Token:   do.MustInvokeNamed[string](i, "worker_token"),
	}, nil
}

type componentRequest struct {
	Kind       string `json:"kind"`
	Path       string `json:"path"`
	Checkpoint string `json:"checkpoint,omitempty"`
}

type pipelineRequest struct {
	Encoder   Handle `json:"encoder"`
	Backbone  Handle `json:"backbone"`
	Device    string `json:"device"`
	DType     string `json:"dtype"`
	NumTokens int    `json:"num_tokens"`
}

type idResponse struct {
	ID Handle `json:"id"`
}

type generateRequest struct {
	ImagePath         string  `json:"image_path"`
	Prompt            string  `json:"prompt"`
	NumSamples        int     `json:"num_samples"`
	Height            int     `json:"height"`
	Width             int     `json:"width"`
	Seed              int64   `json:"seed"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

type generateResponse struct {
	Images []string `json:"images"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r *HTTPRuntime) LoadEncoder(ctx context.Context, path string) (Handle, error) {
	var out idResponse
	if err := r.do(ctx, http.MethodPost, "/v1/components", componentRequest{Kind: "encoder", Path: path}, &out); err != nil {
		return "", err
	}
	return requireID(out.ID)
}

func (r *HTTPRuntime) LoadBackbone(ctx context.Context, base, checkpoint string) (Handle, error) {
	var out idResponse
	if err := r.do(ctx, http.MethodPost, "/v1/components", componentRequest{Kind: "backbone", Path: base, Checkpoint: checkpoint}, &out); err != nil {
		return "", err
	}
	return requireID(out.ID)
}

func (r *HTTPRuntime) Compose(ctx context.Context, params ComposeParams) (Pipeline, error) {
	var out idResponse
	err := r.do(ctx, http.MethodPost, "/v1/pipelines", pipelineRequest{
		Encoder:   params.Encoder,
		Backbone:  params.Backbone,
		Device:    params.Device,
		DType:     params.DType,
		NumTokens: params.NumTokens,
	}, &out)
	if err != nil {
		return nil, err
	}
	id, err := requireID(out.ID)
	if err != nil {
		return nil, err
	}
	return &httpPipeline{runtime: r, id: id}, nil
}

func requireID(id Handle) (Handle, error) {
	if id == "" {
		return "", fmt.Errorf("worker returned an empty id")
	}
	return id, nil
}

func (r *HTTPRuntime) do(ctx context.Context, method, path string, in, out any) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("worker").With("method", method, "path", path)
	log.Debug("calling model worker")

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("worker %s %s: %s (status %d)", method, path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("worker %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("worker %s %s: decode response: %w", method, path, err)
	}
	return nil
}

type httpPipeline struct {
	runtime *HTTPRuntime
	id      Handle
}

func (p *httpPipeline) path(suffix string) string {
	return "/v1/pipelines/" + url.PathEscape(string(p.id)) + suffix
}

func (p *httpPipeline) Generate(ctx context.Context, req Request) ([]image.Image, error) {
	var out generateResponse
	err := p.runtime.do(ctx, http.MethodPost, p.path("/generate"), generateRequest{
		ImagePath:         req.ImagePath,
		Prompt:            req.Prompt,
		NumSamples:        req.Params.NumSamples,
		Height:            req.Params.Height,
		Width:             req.Params.Width,
		Seed:              req.Params.Seed,
		NumInferenceSteps: req.Params.Steps,
		GuidanceScale:     req.Params.GuidanceScale,
	}, &out)
	if err != nil {
		return nil, err
	}

	images := make([]image.Image, 0, len(out.Images))
	for i, b64 := range out.Images {
		data, err := codec.DecodeBase64(b64)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		img, _, err := codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func (p *httpPipeline) ReleaseMemory(ctx context.Context) error {
	return p.runtime.do(ctx, http.MethodPost, p.path("/release"), nil, nil)
}

func (p *httpPipeline) Close() error {
	return p.runtime.do(context.Background(), http.MethodDelete, p.path(""), nil, nil)
}
