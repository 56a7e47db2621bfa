// Package loader turns files on disk into scripts and sandbox seeds.
//
// Scripts are found with doublestar globs, or with a fastwalk directory walk
// for seed trees. They are sniffed with mimetype so binary files are
// rejected early, then decoded to UTF-8 after charset detection. Seeds are
// JSON, YAML or TOML mappings that become *hostobj.Object trees.
package loader
