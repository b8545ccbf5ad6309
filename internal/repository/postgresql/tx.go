package postgresql

import (
	"fmt"

	"github.com/Rat-cell/lockerhub/internal/db"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

// txFrom narrows a storage.Tx back to the pgx-backed transaction this
// package's statements run in.
func txFrom(tx storage.Tx) (db.Tx, error) {
	ptx, ok := tx.(db.Tx)
	if !ok {
		return nil, fmt.Errorf("unsupported transaction type: %T", tx)
	}
	return ptx, nil
}
