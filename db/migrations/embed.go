package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect 返回指定方言目录下的迁移脚本，供 goose provider 使用。
func Dialect(name string) (fs.FS, error) {
	return fs.Sub(files, name)
}
