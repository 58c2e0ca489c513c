package fs

import (
	"os"

	"github.com/adrg/xdg"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// GetPacquetDataDir returns the directory outside of any project where
// pacquet keeps its content-addressed store and other long-lived state.
// It honors PNPM_HOME first, for pnpm-API compatibility (spec.md §6), then
// falls back to XDG_DATA_HOME (or its platform default) joined with
// "pacquet", matching how pnpm itself resolves its default store location.
func GetPacquetDataDir() turbopath.AbsoluteSystemPath {
	if home := os.Getenv("PNPM_HOME"); home != "" {
		return turbopath.AbsoluteSystemPathFromUpstream(home)
	}
	dataHome := turbopath.AbsoluteSystemPathFromUpstream(xdg.DataHome)
	return dataHome.UntypedJoin("pacquet")
}
