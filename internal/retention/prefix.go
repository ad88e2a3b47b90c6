package retention

import (
	"strings"
)

// CacheFolderName is the folder the image processor writes cached renditions under.
const CacheFolderName = "cache"

// BuildPrefixes returns the listing prefixes for a container root path.
// "cache/" is always included so objects written before a root path was
// configured are still swept. A root of "cache" also covers "cache/cache/".
func BuildPrefixes(rootPath string) []string {
	root := normalizeRoot(rootPath)

	candidates := []string{CacheFolderName + "/"}
	if root != "" {
		candidates = append(candidates, root+"/"+CacheFolderName+"/")
	}
	if strings.EqualFold(root, CacheFolderName) {
		candidates = append(candidates, CacheFolderName+"/"+CacheFolderName+"/")
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, p := range candidates {
		k := strings.ToLower(p)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

// normalizeRoot converts backslashes before trimming so a Windows style
// root such as `\site\` loses its outer separators too.
func normalizeRoot(rootPath string) string {
	root := strings.TrimSpace(rootPath)
	root = strings.ReplaceAll(root, `\`, "/")
	return strings.Trim(root, "/")
}
