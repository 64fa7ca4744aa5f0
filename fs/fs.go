// Package appfs holds the files embedded in the binaries: migrations, email templates & assets.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* assets/*
var FS embed.FS
