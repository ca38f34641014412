package template

import "context"

type Repository interface {
	Create(ctx context.Context, t *TaskTemplate) error
	Get(ctx context.Context, id string) (*TaskTemplate, error)
	List(ctx context.Context) ([]*TaskTemplate, error)
	Delete(ctx context.Context, id string) error
}
