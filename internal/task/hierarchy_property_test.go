package task

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/internal/notification"
)

// Random attach and detach sequences must keep the parent links a forest:
// every ancestor walk terminates, and an attach is refused exactly when the
// new parent already sits below the child.
func TestHierarchyStaysAcyclic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		repo := newFakeRepo()
		bus := eventbus.New()
		svc := NewService(repo, notification.NewEmitter(&fakeNotifRepo{}, bus), bus)
		ctx := context.Background()

		n := rapid.IntRange(2, 8).Draw(t, "tasks")
		ids := make([]string, n)
		for i := range ids {
			created, err := svc.Create(ctx, CreateRequest{Title: fmt.Sprintf("node %d", i)}, "alice")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			ids[i] = created.ID
		}

		// parent[i] == -1 means root.
		parent := make([]int, n)
		for i := range parent {
			parent[i] = -1
		}
		reaches := func(from, target int) bool {
			for cur := from; cur != -1; cur = parent[cur] {
				if cur == target {
					return true
				}
			}
			return false
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			child := rapid.IntRange(0, n-1).Draw(t, "child")
			if rapid.IntRange(0, 3).Draw(t, "op") == 0 {
				if _, err := svc.DetachSubtask(ctx, ids[child], "alice"); err != nil {
					t.Fatalf("detach: %v", err)
				}
				parent[child] = -1
			} else {
				p := rapid.IntRange(0, n-1).Draw(t, "parent")
				_, err := svc.AttachSubtask(ctx, ids[child], ids[p], "alice")
				if child == p || reaches(p, child) {
					if !errors.Is(err, ErrHierarchyCycle) {
						t.Fatalf("attach %d under %d: got %v, want ErrHierarchyCycle", child, p, err)
					}
				} else {
					if err != nil {
						t.Fatalf("attach %d under %d: %v", child, p, err)
					}
					parent[child] = p
				}
			}

			// Every walk must come to a root within n hops.
			for i := 0; i < n; i++ {
				cur, hops := i, 0
				for parent[cur] != -1 {
					cur = parent[cur]
					hops++
					if hops > n {
						t.Fatalf("walk from %d exceeded %d hops", i, n)
					}
				}
			}
		}

		// Stored links agree with the model at the end.
		for i, id := range ids {
			stored, err := repo.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			want := ""
			if parent[i] != -1 {
				want = ids[parent[i]]
			}
			if stored.ParentID != want {
				t.Fatalf("task %d parent = %q, want %q", i, stored.ParentID, want)
			}
		}
	})
}
