package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/buildpack"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/docker"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/subdomain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/workspace"
)

// BuildFailure carries the underlying error together with the tail of the build output.
type BuildFailure struct {
	Err    error
	Output []string
}

func (e *BuildFailure) Error() string {
	if len(e.Output) == 0 {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n" + strings.Join(e.Output, "\n")
}

func (e *BuildFailure) Unwrap() error {
	return e.Err
}

// ImageBuilder turns a set of source files into a tagged image.
type ImageBuilder struct {
	runtime   Runtime
	workspace *workspace.Manager
	prefix    string
	logger    *slog.Logger
}

// NewImageBuilder constructs an ImageBuilder tagging images as <prefix>/<subdomain>:latest.
func NewImageBuilder(rt Runtime, ws *workspace.Manager, prefix string, logger *slog.Logger) ImageBuilder {
	if strings.TrimSpace(prefix) == "" {
		prefix = "catalyst"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return ImageBuilder{runtime: rt, workspace: ws, prefix: prefix, logger: logger}
}

// ImageName returns the image reference for a subdomain.
func ImageName(prefix, sub string) string {
	return fmt.Sprintf("%s/%s:latest", prefix, sub)
}

// Build writes the sources into a private workspace, adds a Dockerfile when
// the sources lack one and builds the image. onLine receives folded build output.
// The workspace is removed on every exit path.
func (b ImageBuilder) Build(ctx context.Context, bc domain.BuildContext, onLine func(string)) (domain.BuildResult, error) {
	if b.runtime == nil || b.workspace == nil {
		return domain.BuildResult{}, errors.New("image builder not initialised")
	}
	if err := subdomain.Validate(bc.Subdomain); err != nil {
		return domain.BuildResult{}, err
	}
	pack := buildpack.Detect(bc.Files)
	result := domain.BuildResult{
		ImageName: ImageName(b.prefix, bc.Subdomain),
		Framework: pack.Framework,
	}

	dir, err := b.workspace.Prepare(bc.Subdomain)
	if err != nil {
		return result, fmt.Errorf("prepare workspace: %w", err)
	}
	defer func() {
		if err := b.workspace.Cleanup(dir); err != nil {
			b.logger.Warn("workspace cleanup failed", "dir", dir, "error", err)
		}
	}()

	if err := b.workspace.Materialize(dir, bc.Files); err != nil {
		return result, fmt.Errorf("write sources: %w", err)
	}
	if !pack.HasDockerfile {
		if err := b.workspace.WriteFile(dir, "Dockerfile", buildpack.Dockerfile(pack)); err != nil {
			return result, fmt.Errorf("write dockerfile: %w", err)
		}
	}

	labels := map[string]string{
		docker.LabelManaged:   "true",
		docker.LabelSubdomain: bc.Subdomain,
	}
	output := newLogFolder(onLine)
	err = b.runtime.BuildImage(ctx, dir, result.ImageName, labels, func(line string) {
		output.Push(strings.TrimRight(line, "\r\n"))
	})
	output.Flush()
	result.BuildLogs = output.Tail(buildLogTail)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("build timed out: %w", err)
		}
		return result, &BuildFailure{Err: err, Output: result.BuildLogs}
	}
	return result, nil
}
