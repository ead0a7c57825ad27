package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte

//go:embed admin.html
var AdminHTML []byte
