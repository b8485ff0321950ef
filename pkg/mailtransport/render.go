package mailtransport

import (
	"reflect"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// MaxMetadataDepth is how many nested levels below the top-level metadata
// value are expanded. Deeper values render as <max depth reached>.
const MaxMetadataDepth = 5

var metadataDumper = spew.ConfigState{
	Indent: "  ",
	// spew counts the top-level value as a level of its own.
	MaxDepth:                MaxMetadataDepth + 1,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// RenderMetadata dumps meta as indented, human-readable text.
func RenderMetadata(meta interface{}) string {
	return strings.TrimRight(metadataDumper.Sdump(meta), "\n")
}

// ComposeBody joins the message and rendered metadata with a blank line.
// Without metadata the message is returned verbatim; nil maps, slices and
// pointers count as no metadata.
func ComposeBody(message string, meta interface{}) string {
	if isAbsent(meta) {
		return message
	}
	return message + "\n\n" + RenderMetadata(meta)
}

func isAbsent(meta interface{}) bool {
	if meta == nil {
		return true
	}
	v := reflect.ValueOf(meta)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}
