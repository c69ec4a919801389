// Package version хранит данные сборки, подставляемые через -ldflags:
//
//	-X github.com/vladislavdragonenkov/storefront/internal/version.version=v1.2.0
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает сборку бинарника.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает данные текущей сборки.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// String форматирует сборку для вывода командой version.
func (b Build) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", b.Version, b.Commit, b.Date)
}

// UserAgent — значение заголовка User-Agent исходящих HTTP-запросов.
func UserAgent() string {
	return "storefront/" + version
}
