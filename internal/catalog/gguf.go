package catalog

import (
	"strings"

	parser "github.com/gpustack/gguf-parser-go"

	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// probeGGUF reads header metadata out of a resolved llamacpp checkpoint and
// fills info.GGUF plus a more accurate info.SizeGB than the shipped
// catalogue's static estimate. Failures are swallowed: a file that can't be
// parsed (wrong format, truncated download, future GGUF version) just leaves
// the static catalogue values in place.
func (c *Catalog) probeGGUF(info *model.Info) {
	if info.Recipe != model.RecipeLlamaCpp {
		return
	}
	path, ok := info.ResolvedPaths[model.RoleMain]
	if !ok {
		return
	}

	gf, err := parser.ParseGGUFFile(path)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Debug("gguf metadata probe failed")
		return
	}

	md := gf.Metadata()
	shards := parser.CompleteShardGGUFFilename(path)
	info.GGUF = &model.GGUFInfo{
		Architecture: strings.TrimSpace(md.Architecture),
		Parameters:   md.Parameters.String(),
		FileType:     md.FileType.String(),
		ShardCount:   len(shards),
	}

	total := float64(gf.Size)
	for _, shard := range shards {
		if strings.EqualFold(shard, path) {
			continue
		}
		if sgf, err := parser.ParseGGUFFile(shard); err == nil {
			total += float64(sgf.Size)
		}
	}
	if total > 0 {
		info.SizeGB = total / (1 << 30)
	}
}
