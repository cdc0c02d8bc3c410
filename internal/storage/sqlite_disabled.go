//go:build !sqlite

package storage

import (
	"fmt"

	"dropbot/pkg/logx"
)

func openSQLite(Config, logx.Logger) (Store, error) {
	return nil, fmt.Errorf("storage: sqlite driver not built in (build with -tags sqlite)")
}
