package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/taskloom/taskloom/internal/template"
	"github.com/taskloom/taskloom/pkg/blob"
	"github.com/taskloom/taskloom/pkg/cerr"
)

const templatesPrefix = "templates"

// YAMLRepository keeps each template as a yaml document in blob storage.
// Templates are few and read rarely, so listing reads them all back.
type YAMLRepository struct {
	blobs blob.Store
}

func NewYAMLRepository(blobs blob.Store) *YAMLRepository {
	return &YAMLRepository{blobs: blobs}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", templatesPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, t *template.TaskTemplate) error {
	exists, err := r.blobs.Exists(ctx, path(t.ID))
	if err != nil {
		return cerr.WrapBlobWriteError("template", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "template already exists", nil)
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal template: %w", err))
	}
	if err := r.blobs.Write(ctx, path(t.ID), data); err != nil {
		return cerr.WrapBlobWriteError("template", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*template.TaskTemplate, error) {
	data, err := r.blobs.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapBlobReadError("template", err)
	}
	var t template.TaskTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal template: %w", err))
	}
	return &t, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*template.TaskTemplate, error) {
	paths, err := r.blobs.List(ctx, templatesPrefix)
	if err != nil {
		return nil, cerr.WrapBlobReadError("templates", err)
	}

	sort.Strings(paths)

	var all []*template.TaskTemplate
	for _, p := range paths {
		data, err := r.blobs.Read(ctx, p)
		if err != nil {
			continue
		}
		var t template.TaskTemplate
		if err := yaml.Unmarshal(data, &t); err != nil {
			continue
		}
		all = append(all, &t)
	}
	return all, nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.blobs.Delete(ctx, path(id)); err != nil {
		return cerr.WrapBlobDeleteError("template", err)
	}
	return nil
}
