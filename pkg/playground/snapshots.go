package playground

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/reconcile"
)

// Save stores the canvas under key.
func (s *Session) Save(ctx context.Context, key string) Outcome {
	return s.run(ctx, "save", func() (string, error) {
		if s.store == nil {
			return "", ErrNoStore
		}
		var (
			data []byte
			err  error
		)
		s.read(func(g *model.Graph) { data, err = json.Marshal(g) })
		if err != nil {
			return "", fmt.Errorf("encode canvas: %w", err)
		}
		if err := s.store.Save(ctx, key, data); err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved snapshot %s", key), nil
	})
}

// Load replaces the canvas with the snapshot stored under key.
func (s *Session) Load(ctx context.Context, key string) Outcome {
	if s.store == nil {
		return s.run(ctx, "load", func() (string, error) { return "", ErrNoStore })
	}
	data, err := s.store.Load(ctx, key)
	if err != nil {
		return s.run(ctx, "load", func() (string, error) { return "", err })
	}

	return s.mutate(ctx, "load", func(g *model.Graph) (*change, error) {
		var loaded model.Graph
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("snapshot %s is corrupt: %w", key, err)
		}
		*g = loaded
		return &change{
			full:          true,
			replaceAdvice: true,
			reconcile:     reconcile.Deployments(g),
			message:       fmt.Sprintf("Loaded snapshot %s", key),
		}, nil
	})
}

// Snapshots lists the stored snapshot keys.
func (s *Session) Snapshots(ctx context.Context) ([]string, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.List(ctx)
}
