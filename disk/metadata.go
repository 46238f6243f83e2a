package disk

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/vieworks/oap-logstream/logid"
)

// Every output file carries a sidecar at <file>.metadata.yaml describing
// the destination it was created for. The sidecar exists purely so a
// restarted writer can tell whether an on-disk file still belongs to the
// same identity; it is never used for data recovery.

const metadataSuffix = ".metadata.yaml"

func metadataPath(file string) string {
	return file + metadataSuffix
}

// renderMetadata produces the canonical sidecar document. The rendering
// is stable: fixed field order, then properties in identity order, all
// values quoted.
func renderMetadata(id *logid.LogId) []byte {
	var b bytes.Buffer
	b.WriteString("---\n")
	fmt.Fprintf(&b, "filePrefixPattern: %q\n", id.FilePrefixPattern)
	fmt.Fprintf(&b, "type: %q\n", id.LogType)
	fmt.Fprintf(&b, "shard: %q\n", strconv.Itoa(id.Shard))
	fmt.Fprintf(&b, "clientHostname: %q\n", id.ClientHostname)
	for _, p := range id.Properties {
		fmt.Fprintf(&b, "%s: %q\n", p.Name, p.Value)
	}
	return b.Bytes()
}

func writeMetadataForFile(file string, id *logid.LogId) error {
	if err := os.WriteFile(metadataPath(file), renderMetadata(id), 0o640); err != nil {
		return fmt.Errorf("write metadata for %s: %w", file, err)
	}
	return nil
}

// metadataMatches reports whether the sidecar of file describes the same
// identity. Both documents go through the YAML parser so formatting
// differences do not defeat the comparison. A missing or unparseable
// sidecar is a mismatch.
func metadataMatches(file string, id *logid.LogId) bool {
	data, err := os.ReadFile(metadataPath(file))
	if err != nil {
		return false
	}
	var onDisk, current yaml.MapSlice
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return false
	}
	if err := yaml.Unmarshal(renderMetadata(id), &current); err != nil {
		return false
	}
	return reflect.DeepEqual(onDisk, current)
}

// renameMetadataForFile moves the sidecar along with its file. A file
// without a sidecar is left as-is.
func renameMetadataForFile(oldFile, newFile string) error {
	old := metadataPath(oldFile)
	if _, err := os.Stat(old); os.IsNotExist(err) {
		return nil
	}
	if err := os.Rename(old, metadataPath(newFile)); err != nil {
		return fmt.Errorf("rename metadata of %s: %w", oldFile, err)
	}
	return nil
}
