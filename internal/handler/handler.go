package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/dmorgan81/customid/internal/codec"
	"github.com/dmorgan81/customid/internal/log"
	"github.com/dmorgan81/customid/internal/model"
	"github.com/dmorgan81/customid/internal/normalize"
	"github.com/dmorgan81/customid/internal/stage"
	"github.com/dmorgan81/customid/internal/store"
	"github.com/dmorgan81/customid/internal/validate"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Metrics struct {
	ProcessTime float64 `json:"process_time"`
	NumSamples  int     `json:"num_samples"`
	ImageSize   string  `json:"image_size"`
}

// Response is the only shape a caller ever sees. Output and Metrics are set
// on success, Error on failure.
type Response struct {
	Status  string   `json:"status"`
	Output  []string `json:"output,omitempty"`
	Metrics *Metrics `json:"metrics,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func failure(err error) Response {
	return Response{Status: StatusError, Error: err.Error()}
}

type Generator interface {
	Generate(ctx context.Context, imagePath, prompt string, params normalize.Parameters) ([]image.Image, error)
}

type Handler struct {
	normalizer *normalize.Normalizer
	stager     *stage.Stager
	generator  Generator
	archiver   store.Uploader
	now        func() time.Time
}

func NewHandler(i *do.Injector) (*Handler, error) {
	h := &Handler{
		normalizer: do.MustInvoke[*normalize.Normalizer](i),
		stager:     do.MustInvoke[*stage.Stager](i),
		generator:  do.MustInvoke[*model.Session](i),
		now:        time.Now,
	}
	if archiver, err := do.Invoke[store.Uploader](i); err == nil {
		h.archiver = archiver
	}
	return h, nil
}

// Handle processes one invocation. Per-request failures are reported in
// the response, so the returned error is always nil. Temporary files and
// device memory are released before Handle returns.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (Response, error) {
	start := h.now()
	logger := log.FromContextOrDiscard(ctx).WithGroup("Handler")
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("request_id", lc.AwsRequestID)
	}
	ctx = log.NewContext(ctx, logger)
	logger.Info("handling invocation")

	guard := h.stager.Acquire()
	defer guard.Close(ctx)

	resp := h.process(ctx, start, guard, event)
	logger.Info("invocation finished", "status", resp.Status)
	return resp, nil
}

func (h *Handler) process(ctx context.Context, start time.Time, guard *stage.Guard, event json.RawMessage) (resp Response) {
	log := log.FromContextOrDiscard(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic", "panic", r)
			resp = failure(fmt.Errorf("internal error: %v", r))
		}
	}()

	req, err := validate.Validate(event)
	if err != nil {
		log.Warn("rejected request", "error", err)
		return failure(err)
	}

	params := h.normalizer.Normalize(req)
	log.Info("normalized parameters", "samples", params.NumSamples, "size", params.ImageSize(),
		"seed", params.Seed, "steps", params.Steps, "guidance", params.GuidanceScale)

	staged, err := guard.Stage(ctx, req)
	if err != nil {
		log.Error("staging failed", "error", err)
		return failure(err)
	}

	images, err := h.generator.Generate(ctx, staged.Path, req.Prompt, params)
	if err != nil {
		log.Error("generation failed", "error", err)
		return failure(err)
	}

	pngs, err := encode(images)
	if err != nil {
		log.Error("encoding failed", "error", err)
		return failure(fmt.Errorf("error encoding output images: %w", err))
	}
	h.archive(ctx, start, req.Prompt, params, pngs)

	output := make([]string, len(pngs))
	for i, data := range pngs {
		output[i] = codec.EncodeBase64(data)
	}

	return Response{
		Status: StatusSuccess,
		Output: output,
		Metrics: &Metrics{
			ProcessTime: h.now().Sub(start).Seconds(),
			NumSamples:  params.NumSamples,
			ImageSize:   params.ImageSize(),
		},
	}
}

// encode renders every image as PNG, preserving order.
func encode(images []image.Image) ([][]byte, error) {
	pngs := make([][]byte, len(images))
	var group errgroup.Group
	for i, img := range images {
		i, img := i, img
		group.Go(func() error {
			data, err := codec.EncodePNG(img)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			pngs[i] = data
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return pngs, nil
}

// archive copies the outputs to the configured store. It never fails the
// request.
func (h *Handler) archive(ctx context.Context, start time.Time, prompt string, params normalize.Parameters, pngs [][]byte) {
	if h.archiver == nil {
		return
	}
	log := log.FromContextOrDiscard(ctx)

	id := strconv.FormatInt(start.UnixNano(), 10)
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		id = lc.AwsRequestID
	}
	metadata := map[string]string{
		"prompt":   url.QueryEscape(prompt),
		"seed":     strconv.FormatInt(params.Seed, 10),
		"steps":    strconv.Itoa(params.Steps),
		"guidance": strconv.FormatFloat(params.GuidanceScale, 'f', -1, 64),
		"size":     params.ImageSize(),
	}

	var group errgroup.Group
	for i, data := range pngs {
		i, data := i, data
		group.Go(func() error {
			return h.archiver.Upload(ctx, store.UploadParams{
				Name:        fmt.Sprintf("%s/%d.png", id, i),
				Data:        data,
				ContentType: "image/png",
				Metadata:    metadata,
			})
		})
	}
	if err := group.Wait(); err != nil {
		log.Warn("error archiving output images", "error", err)
	}
}
