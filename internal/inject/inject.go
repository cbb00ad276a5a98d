package inject

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/customid/internal/config"
	"github.com/dmorgan81/customid/internal/handler"
	"github.com/dmorgan81/customid/internal/log"
	"github.com/dmorgan81/customid/internal/model"
	"github.com/dmorgan81/customid/internal/normalize"
	"github.com/dmorgan81/customid/internal/param"
	"github.com/dmorgan81/customid/internal/stage"
	"github.com/dmorgan81/customid/internal/store"
	"github.com/samber/do"
)

// Setup registers every service. Providers are lazy: AWS clients are only
// built when the worker token lives in SSM or outputs are archived to S3.
func Setup(ctx context.Context, cfg config.Config) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, http.DefaultClient)

	do.ProvideNamedValue[string](injector, "worker_url", cfg.WorkerURL)
	do.ProvideNamedValue[string](injector, "tmp_dir", cfg.TmpDir)
	do.ProvideNamed[string](injector, "worker_token", func(i *do.Injector) (string, error) {
		if cfg.WorkerTokenParam == "" {
			return "", nil
		}
		return do.MustInvoke[param.Fetcher](i).Fetch(ctx, cfg.WorkerTokenParam)
	})

	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)
	do.Provide[model.Runtime](injector, model.NewHTTPRuntime)
	do.Provide[*model.Session](injector, func(i *do.Injector) (*model.Session, error) {
		rt, err := do.Invoke[model.Runtime](i)
		if err != nil {
			return nil, &model.InitializationError{Err: err}
		}
		return model.New(ctx, rt, model.Options{
			Artifacts: model.Artifacts{
				Backbone:   cfg.ModelPath,
				Checkpoint: cfg.TrainedCkpt,
				Encoder:    cfg.EncoderPath,
			},
			Device:    cfg.Device,
			DType:     cfg.DType,
			NumTokens: cfg.NumTokens,
		})
	})
	do.Provide[stage.Releaser](injector, func(i *do.Injector) (stage.Releaser, error) {
		session, err := do.Invoke[*model.Session](i)
		if err != nil {
			return nil, err
		}
		return session, nil
	})
	do.Provide[*stage.Stager](injector, stage.NewStager)
	do.ProvideValue[*normalize.Normalizer](injector, normalize.New())

	switch {
	case cfg.ArchiveBucket != "":
		do.Provide[store.Uploader](injector, func(i *do.Injector) (store.Uploader, error) {
			return &store.S3Uploader{Client: do.MustInvoke[*s3.Client](i), Bucket: cfg.ArchiveBucket}, nil
		})
	case cfg.ArchiveDir != "":
		do.ProvideValue[store.Uploader](injector, &store.FileUploader{Dir: cfg.ArchiveDir})
	}

	do.Provide[*handler.Handler](injector, handler.NewHandler)

	return injector
}
