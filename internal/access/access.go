// Package access provides the production authorization gates of the two
// storage backends.
package access

import (
	"context"
	"log/slog"

	"github.com/legamerdc/todostore/internal/docdb"
	"github.com/legamerdc/todostore/store"
)

// DirGate grants access while dir is readable and writable by this
// process.
func DirGate(dir string) store.AuthGate {
	return store.AuthFunc(func(context.Context) bool {
		return canReadWrite(dir)
	})
}

// GrantGate grants access while root holds a grant in db.
func GrantGate(db *docdb.DB, root store.Handle) store.AuthGate {
	return store.AuthFunc(func(ctx context.Context) bool {
		if root == "" {
			return false
		}
		ok, err := db.Granted(ctx, root)
		if err != nil {
			slog.Error("access: grant lookup", slog.String("root", string(root)), slog.Any("err", err))
			return false
		}
		return ok
	})
}
