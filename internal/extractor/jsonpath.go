package extractor

import (
	"github.com/tidwall/gjson"
)

// JSONPath looks a path up in a JSON body with gjson. Both "$.field" and bare
// "field" forms are accepted, and "$" alone selects the whole document.
func JSONPath(body []byte, path string) (string, bool) {
	result := gjson.GetBytes(body, normalizePath(path))
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

func normalizePath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		} else if len(path) == 1 {
			return "@this"
		}
	}
	return path
}
