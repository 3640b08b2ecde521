// Package imports registers the server's tools through their init functions.
package imports

import (
	_ "github.com/sammcj/mcp-websearch/internal/tools/websearch"
)
