package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

const stageConcurrency = 4

var errEmptySource = errors.New("source is empty")

// stager makes every clip source available as a local file inside or
// alongside the workspace. Local files are used in place after a read
// check; http(s) sources are downloaded into the workspace.
type stager struct {
	ws     *Workspace
	client *http.Client
}

// stageAll stages each distinct source once and returns source -> local
// path. A failure is reported against the first clip using that source.
func (s *stager) stageAll(ctx context.Context, clips []timeline.Clip) (map[string]string, error) {
	owner := make(map[string]string)
	var sources []string
	for _, c := range clips {
		if c.Kind == timeline.KindText {
			continue
		}
		if _, ok := owner[c.Source]; ok {
			continue
		}
		owner[c.Source] = c.ID
		sources = append(sources, c.Source)
	}

	paths := make([]string, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stageConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			p, err := s.stage(gctx, i, src)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &AssetLoadError{ClipID: owner[src], Source: src, Err: err}
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(sources))
	for i, src := range sources {
		out[src] = paths[i]
	}
	return out, nil
}

func (s *stager) stage(ctx context.Context, n int, src string) (string, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return s.download(ctx, n, src)
	}

	p := util.ExpandHome(strings.TrimPrefix(src, "file://"))
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", p)
	}
	if info.Size() == 0 {
		return "", errEmptySource
	}
	if _, err := f.Read(make([]byte, 1)); err != nil {
		return "", err
	}
	return p, nil
}

func (s *stager) download(ctx context.Context, n int, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	name := fmt.Sprintf("source-%03d%s", n, util.Ext(path.Base(req.URL.Path)))
	dst := s.ws.Path(name)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	written, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	if written == 0 {
		return "", errEmptySource
	}
	return dst, nil
}
