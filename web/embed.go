package web

import "embed"

// Content holds the embedded page: index.html, app.js and styles.css.
//
//go:embed index.html app.js styles.css
var Content embed.FS
