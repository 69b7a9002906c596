package indexing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// IndexName returns the content-addressed name of an index:
//
//	{prefix}_{version}              for the full Data Dictionary
//	{prefix}_{version}-{8 hex}      for a subset of IDS
//
// The suffix is the first 8 hex characters of the MD5 of the sorted, comma-joined
// subset, so the same selection always maps to the same name regardless of order.
func IndexName(prefix IndexPrefix, version string, subset []string) string {
	name := fmt.Sprintf("%s_%s", prefix, version)
	if len(subset) == 0 {
		return name
	}

	sorted := append([]string(nil), subset...)
	sort.Strings(sorted)
	sum := md5.Sum([]byte(strings.Join(sorted, ",")))

	return name + "-" + hex.EncodeToString(sum[:])[:8]
}
